// Package observability provides a metrics extension for Invoicing that
// records lifecycle event counts via go-utils MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCommitted = (*MetricsExtension)(nil)
	_ plugin.OnInvoicePaid      = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceVoided    = (*MetricsExtension)(nil)
	_ plugin.OnAccountParked    = (*MetricsExtension)(nil)
	_ plugin.OnAccountUnparked  = (*MetricsExtension)(nil)
	_ plugin.OnCreditConsumed   = (*MetricsExtension)(nil)
	_ plugin.OnCreditRestored   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentRequested = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an Invoicing plugin to automatically track billing metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceCommitted Counter
	InvoicePaid      Counter
	InvoiceVoided    Counter
	InvoiceItems     Histogram
	InvoiceTotal     Histogram
	RepairItems      Histogram

	// Account metrics
	AccountParked   Counter
	AccountUnparked Counter

	// Credit metrics
	CreditConsumed Counter
	CreditRestored Counter

	// Payment metrics
	PaymentRequested Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Invoice metrics
		InvoiceCommitted: factory.Counter("invoicing.invoice.committed"),
		InvoicePaid:      factory.Counter("invoicing.invoice.paid"),
		InvoiceVoided:    factory.Counter("invoicing.invoice.voided"),
		InvoiceItems:     factory.Histogram("invoicing.invoice.items"),
		InvoiceTotal:     factory.Histogram("invoicing.invoice.total_amount"),
		RepairItems:      factory.Histogram("invoicing.invoice.repair_items"),

		// Account metrics
		AccountParked:   factory.Counter("invoicing.account.parked"),
		AccountUnparked: factory.Counter("invoicing.account.unparked"),

		// Credit metrics
		CreditConsumed: factory.Counter("invoicing.credit.consumed"),
		CreditRestored: factory.Counter("invoicing.credit.restored"),

		// Payment metrics
		PaymentRequested: factory.Counter("invoicing.payment.requested"),

		// Error metrics
		StoreErrors:  factory.Counter("invoicing.store.errors"),
		PluginErrors: factory.Counter("invoicing.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCommitted implements plugin.OnInvoiceCommitted.
func (m *MetricsExtension) OnInvoiceCommitted(_ context.Context, payload interface{}) error {
	m.InvoiceCommitted.Inc()
	if inv, ok := payload.(*invoice.Invoice); ok {
		m.InvoiceItems.Observe(float64(len(inv.Items)))
		m.InvoiceTotal.Observe(float64(inv.ItemTotal().Amount))
		m.RepairItems.Observe(float64(len(inv.ItemsByKind(invoice.KindRepairAdj))))
	}
	return nil
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (m *MetricsExtension) OnInvoicePaid(_ context.Context, _ interface{}) error {
	m.InvoicePaid.Inc()
	return nil
}

// OnInvoiceVoided implements plugin.OnInvoiceVoided.
func (m *MetricsExtension) OnInvoiceVoided(_ context.Context, _ interface{}, _ string) error {
	m.InvoiceVoided.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Account state hooks
// ──────────────────────────────────────────────────

// OnAccountParked implements plugin.OnAccountParked.
func (m *MetricsExtension) OnAccountParked(_ context.Context, _, _ string) error {
	m.AccountParked.Inc()
	return nil
}

// OnAccountUnparked implements plugin.OnAccountUnparked.
func (m *MetricsExtension) OnAccountUnparked(_ context.Context, _ string) error {
	m.AccountUnparked.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (m *MetricsExtension) OnCreditConsumed(_ context.Context, _ string, _ interface{}) error {
	m.CreditConsumed.Inc()
	return nil
}

// OnCreditRestored implements plugin.OnCreditRestored.
func (m *MetricsExtension) OnCreditRestored(_ context.Context, _ string, _ interface{}) error {
	m.CreditRestored.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRequested implements plugin.OnPaymentRequested.
func (m *MetricsExtension) OnPaymentRequested(_ context.Context, _ interface{}) error {
	m.PaymentRequested.Inc()
	return nil
}
