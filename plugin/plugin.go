// Package plugin provides an extensible plugin system for Invoicing.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceCommitted is called after a reconciliation pass commits a
// new invoice. Emitted only after the commit succeeded, never before.
type OnInvoiceCommitted interface {
	Plugin
	OnInvoiceCommitted(ctx context.Context, inv interface{}) error
}

// OnInvoicePaid is called when an invoice is marked paid.
type OnInvoicePaid interface {
	Plugin
	OnInvoicePaid(ctx context.Context, inv interface{}) error
}

// OnInvoiceVoided is called when an invoice is voided.
type OnInvoiceVoided interface {
	Plugin
	OnInvoiceVoided(ctx context.Context, inv interface{}, reason string) error
}

// ──────────────────────────────────────────────────
// Account state hooks
// ──────────────────────────────────────────────────

// OnAccountParked is called when a consistency violation halts
// automatic reconciliation for an account.
type OnAccountParked interface {
	Plugin
	OnAccountParked(ctx context.Context, accountID string, reason string) error
}

// OnAccountUnparked is called when a parked account is cleared.
type OnAccountUnparked interface {
	Plugin
	OnAccountUnparked(ctx context.Context, accountID string) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditConsumed is called when a committed invoice spends account
// credit. amount is a types.Money carrying the positive value spent.
type OnCreditConsumed interface {
	Plugin
	OnCreditConsumed(ctx context.Context, accountID string, amount interface{}) error
}

// OnCreditRestored is called when a void returns credit to an account.
type OnCreditRestored interface {
	Plugin
	OnCreditRestored(ctx context.Context, accountID string, amount interface{}) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentRequested is called after a commit leaves an invoice with a
// positive balance and auto-pay is on for the account. The payment
// itself executes outside this module.
type OnPaymentRequested interface {
	Plugin
	OnPaymentRequested(ctx context.Context, inv interface{}) error
}

// TagPolicy answers account policy questions. The engine consults
// every registered policy before requesting payment; any one of them
// answering true suppresses the request.
type TagPolicy interface {
	Plugin
	IsAutoPayOff(ctx context.Context, accountID string) bool
}
