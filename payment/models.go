// Package payment defines the read-only payment collaborator boundary.
//
// Invoicing never executes or mutates payments; it only consults them to
// compute balances and to enforce void preconditions.
package payment

import (
	"context"
	"time"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// Payment is a payment applied against an invoice.
type Payment struct {
	ID        id.PaymentID `json:"id"`
	AccountID id.AccountID `json:"account_id"`
	InvoiceID id.InvoiceID `json:"invoice_id"`

	Amount         types.Money `json:"amount"`
	RefundedAmount types.Money `json:"refunded_amount"`
	Succeeded      bool        `json:"succeeded"`

	CreatedAt time.Time `json:"created_at"`
}

// Outstanding returns the unrefunded portion of a successful payment.
func (p Payment) Outstanding() types.Money {
	if !p.Succeeded {
		return types.Zero(p.Amount.Currency)
	}
	if p.RefundedAmount.IsZero() {
		return p.Amount
	}
	return p.Amount.Subtract(p.RefundedAmount)
}

// Source supplies payments for an account. Implementations live in the
// payment subsystem, external to this module.
type Source interface {
	PaymentsForAccount(ctx context.Context, accountID id.AccountID) ([]Payment, error)
}

// StaticSource is a Source over a fixed payment set, for tests and
// hosts that assemble payment views themselves.
type StaticSource struct {
	Payments []Payment
}

// PaymentsForAccount implements Source.
func (s *StaticSource) PaymentsForAccount(_ context.Context, accountID id.AccountID) ([]Payment, error) {
	out := make([]Payment, 0, len(s.Payments))
	for _, p := range s.Payments {
		if p.AccountID.String() == accountID.String() {
			out = append(out, p)
		}
	}
	return out, nil
}

// Add appends a payment to the source.
func (s *StaticSource) Add(p Payment) {
	if p.ID.IsNil() {
		p.ID = id.NewPaymentID()
	}
	s.Payments = append(s.Payments, p)
}
