// Package audithook bridges Invoicing lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin             = (*Extension)(nil)
	_ plugin.OnInvoiceCommitted = (*Extension)(nil)
	_ plugin.OnInvoicePaid      = (*Extension)(nil)
	_ plugin.OnInvoiceVoided    = (*Extension)(nil)
	_ plugin.OnAccountParked    = (*Extension)(nil)
	_ plugin.OnAccountUnparked  = (*Extension)(nil)
	_ plugin.OnCreditConsumed   = (*Extension)(nil)
	_ plugin.OnCreditRestored   = (*Extension)(nil)
	_ plugin.OnPaymentRequested = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Invoicing lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCommitted implements plugin.OnInvoiceCommitted.
func (e *Extension) OnInvoiceCommitted(ctx context.Context, payload interface{}) error {
	invoiceID, kv := invoiceContext(payload, "event", "invoice_committed")
	return e.record(ctx, ActionInvoiceCommitted, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceID, CategoryBilling, nil, kv...)
}

// OnInvoicePaid implements plugin.OnInvoicePaid.
func (e *Extension) OnInvoicePaid(ctx context.Context, payload interface{}) error {
	invoiceID, kv := invoiceContext(payload, "event", "invoice_paid")
	return e.record(ctx, ActionInvoicePaid, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceID, CategoryPayment, nil, kv...)
}

// OnInvoiceVoided implements plugin.OnInvoiceVoided.
func (e *Extension) OnInvoiceVoided(ctx context.Context, payload interface{}, reason string) error {
	invoiceID, kv := invoiceContext(payload, "event", "invoice_voided", "void_reason", reason)
	return e.record(ctx, ActionInvoiceVoided, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, invoiceID, CategoryBilling, nil, kv...)
}

// ──────────────────────────────────────────────────
// Account state hooks
// ──────────────────────────────────────────────────

// OnAccountParked implements plugin.OnAccountParked.
func (e *Extension) OnAccountParked(ctx context.Context, accountID, reason string) error {
	return e.record(ctx, ActionAccountParked, SeverityCritical, OutcomeFailure,
		ResourceAccount, accountID, CategoryOperations, nil,
		"account_id", accountID,
		"park_reason", reason,
	)
}

// OnAccountUnparked implements plugin.OnAccountUnparked.
func (e *Extension) OnAccountUnparked(ctx context.Context, accountID string) error {
	return e.record(ctx, ActionAccountUnparked, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountID, CategoryOperations, nil,
		"account_id", accountID,
	)
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (e *Extension) OnCreditConsumed(ctx context.Context, accountID string, amount interface{}) error {
	return e.record(ctx, ActionCreditConsumed, SeverityInfo, OutcomeSuccess,
		ResourceCredit, accountID, CategoryBilling, nil,
		"account_id", accountID,
		"amount", fmt.Sprintf("%v", amount),
	)
}

// OnCreditRestored implements plugin.OnCreditRestored.
func (e *Extension) OnCreditRestored(ctx context.Context, accountID string, amount interface{}) error {
	return e.record(ctx, ActionCreditRestored, SeverityInfo, OutcomeSuccess,
		ResourceCredit, accountID, CategoryBilling, nil,
		"account_id", accountID,
		"amount", fmt.Sprintf("%v", amount),
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRequested implements plugin.OnPaymentRequested.
func (e *Extension) OnPaymentRequested(ctx context.Context, payload interface{}) error {
	invoiceID, kv := invoiceContext(payload, "event", "payment_requested")
	return e.record(ctx, ActionPaymentRequested, SeverityInfo, OutcomeSuccess,
		ResourcePayment, invoiceID, CategoryPayment, nil, kv...)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// invoiceContext extracts identifying metadata when the payload is an
// invoice; hook payloads are interface{} so foreign payloads degrade to
// the base key/value pairs.
func invoiceContext(payload interface{}, kv ...any) (string, []any) {
	inv, ok := payload.(*invoice.Invoice)
	if !ok {
		return "", kv
	}
	kv = append(kv,
		"account_id", inv.AccountID.String(),
		"currency", inv.Currency,
		"items", len(inv.Items),
		"total", inv.ItemTotal().String(),
	)
	return inv.ID.String(), kv
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
