// Package credit implements the account credit ledger.
//
// Credit is not stored as its own record. It is a derived view over
// cba_adj items: positive cba_adj items bank credit, negative ones
// spend it, and the available balance is their sum across every
// non-void invoice. Restoring credit on void is therefore implicit in
// the status flip; this package validates the invariants around it.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

var (
	// ErrInsufficientCredit is returned when a consume request exceeds
	// the available balance. Requests are never clamped.
	ErrInsufficientCredit = errors.New("invoicing: insufficient credit")

	// ErrCreditInUse is returned when voiding an invoice would drive
	// the account credit balance negative because credit it banked has
	// already been spent elsewhere.
	ErrCreditInUse = errors.New("invoicing: credit already consumed by another invoice")
)

// InvoiceLister is the slice of the store the ledger reads.
type InvoiceLister interface {
	ListInvoices(ctx context.Context, accountID id.AccountID, opts invoice.ListOpts) ([]*invoice.Invoice, error)
}

// Ledger computes and validates credit movements for one store.
type Ledger struct {
	store InvoiceLister
}

// NewLedger returns a Ledger reading invoices from the given store.
func NewLedger(store InvoiceLister) *Ledger {
	return &Ledger{store: store}
}

// Available returns the account's unconsumed credit balance. The
// balance is never negative; a negative sum indicates ledger corruption
// and is reported as an error.
func (l *Ledger) Available(ctx context.Context, accountID id.AccountID, currency string) (types.Money, error) {
	invoices, err := l.store.ListInvoices(ctx, accountID, invoice.ListOpts{})
	if err != nil {
		return types.Money{}, fmt.Errorf("list invoices: %w", err)
	}
	return SumCBA(invoices, currency)
}

// Consume returns the cba_adj item that spends amount of the account's
// credit on the given invoice. The caller embeds the item in the
// invoice it commits; nothing is persisted here. Consuming more than is
// available fails with ErrInsufficientCredit.
func (l *Ledger) Consume(ctx context.Context, accountID id.AccountID, amount types.Money, now time.Time) (invoice.Item, error) {
	if amount.IsNegative() || amount.IsZero() {
		return invoice.Item{}, fmt.Errorf("invoicing: consume amount must be positive, got %s", amount)
	}
	available, err := l.Available(ctx, accountID, amount.Currency)
	if err != nil {
		return invoice.Item{}, err
	}
	if available.LessThan(amount) {
		return invoice.Item{}, fmt.Errorf("%w: requested %s, available %s", ErrInsufficientCredit, amount, available)
	}
	return invoice.Item{
		ID:          id.NewItemID(),
		AccountID:   accountID,
		Kind:        invoice.KindCBAAdj,
		StartDate:   now,
		Amount:      amount.Negate(),
		Description: "credit applied",
		CreatedAt:   now,
	}, nil
}

// Bank returns the cba_adj item that stores amount as account credit,
// typically paired with the credit_adj or overpayment that produced it.
func Bank(accountID id.AccountID, amount types.Money, now time.Time) invoice.Item {
	return invoice.Item{
		ID:          id.NewItemID(),
		AccountID:   accountID,
		Kind:        invoice.KindCBAAdj,
		StartDate:   now,
		Amount:      amount,
		Description: "credit banked",
		CreatedAt:   now,
	}
}

// Restore validates that voiding the given invoice leaves the credit
// balance consistent and reports the amount the void returns to the
// account. The balance change itself happens when the invoice status
// flips to void, because voided cba_adj items stop counting.
//
// An invoice that banked credit can only be voided while that credit is
// still unspent; otherwise the void would drive the balance negative.
func (l *Ledger) Restore(ctx context.Context, inv *invoice.Invoice) (types.Money, error) {
	moved := inv.CBAAmount()
	if moved.IsZero() {
		return types.Zero(inv.Currency), nil
	}

	invoices, err := l.store.ListInvoices(ctx, inv.AccountID, invoice.ListOpts{})
	if err != nil {
		return types.Money{}, fmt.Errorf("list invoices: %w", err)
	}
	available, err := SumCBA(invoices, inv.Currency)
	if err != nil {
		return types.Money{}, err
	}
	if moved.IsPositive() && available.LessThan(moved) {
		return types.Money{}, fmt.Errorf("%w: invoice %s banked %s but only %s remains", ErrCreditInUse, inv.ID, moved, available)
	}
	// Voiding an invoice that spent credit returns that credit.
	return moved.Negate(), nil
}

// SumCBA sums cba_adj items across non-void invoices. A negative total
// is a corrupted ledger and returns an error rather than a balance.
func SumCBA(invoices []*invoice.Invoice, currency string) (types.Money, error) {
	total := types.Zero(currency)
	for _, inv := range invoices {
		if inv.Status == invoice.StatusVoid {
			continue
		}
		total = total.Add(inv.CBAAmount())
	}
	if total.IsNegative() {
		return types.Money{}, fmt.Errorf("invoicing: negative credit balance %s", total)
	}
	return total, nil
}
