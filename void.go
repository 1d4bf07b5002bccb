package invoicing

import (
	"context"

	"github.com/xraph/invoicing/invoice"
)

// VoidInvoice flips a committed invoice out of the ledger. The
// invoice's items are preserved untouched; they simply stop counting.
// The next reconciliation pass sees the voided periods as unbilled and
// re-invoices them from the fact stream.
//
// Preconditions, checked in order:
//   - the invoice must not already be void (ErrInvoiceAlreadyVoid)
//   - it must be committed, not draft (ErrInvoiceNotCommitted)
//   - no successful, unrefunded payment may be applied against it
//     (ErrInvoicePaid); refund first, then void
//   - credit the invoice banked must still be unspent (ErrCreditInUse)
func (e *Engine) VoidInvoice(ctx context.Context, invID ID, reason string) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}

	release, err := e.locks.acquire(ctx, inv.AccountID, e.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	// Re-read under the lock; status may have moved.
	inv, err = e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}

	switch inv.Status {
	case invoice.StatusVoid:
		return ErrInvoiceAlreadyVoid
	case invoice.StatusDraft:
		return ErrInvoiceNotCommitted
	case invoice.StatusPaid:
		return ErrInvoicePaid
	}

	settled, err := e.hasSettledPayment(ctx, inv)
	if err != nil {
		return err
	}
	if settled {
		return ErrInvoicePaid
	}

	moved, err := e.credits.Restore(ctx, inv)
	if err != nil {
		return err
	}

	now := e.now()
	if err := e.store.MarkInvoiceVoided(ctx, invID, reason, now); err != nil {
		return err
	}

	inv.Status = invoice.StatusVoid
	inv.VoidedAt = &now
	inv.VoidReason = reason

	e.logger.Info("invoice voided",
		"account_id", inv.AccountID.String(),
		"invoice_id", invID.String(),
		"reason", reason,
	)

	e.plugins.EmitInvoiceVoided(ctx, inv, reason)
	// Only a void that returns spent credit to the account is a
	// restoration; voiding a banking invoice removes credit instead.
	if moved.IsPositive() {
		e.plugins.EmitCreditRestored(ctx, inv.AccountID.String(), moved)
	}

	return nil
}

// hasSettledPayment reports whether a successful, not fully refunded
// payment is applied against the invoice.
func (e *Engine) hasSettledPayment(ctx context.Context, inv *invoice.Invoice) (bool, error) {
	if e.payments == nil {
		return false, nil
	}

	payments, err := e.payments.PaymentsForAccount(ctx, inv.AccountID)
	if err != nil {
		return false, err
	}
	for _, p := range payments {
		if p.InvoiceID.String() != inv.ID.String() {
			continue
		}
		if p.Outstanding().IsPositive() {
			return true, nil
		}
	}
	return false, nil
}
