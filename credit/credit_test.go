package credit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

type staticLister struct {
	invoices []invoice.Invoice
}

func (s *staticLister) ListInvoices(_ context.Context, accountID id.AccountID, _ invoice.ListOpts) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for i := range s.invoices {
		if s.invoices[i].AccountID.String() == accountID.String() {
			out = append(out, &s.invoices[i])
		}
	}
	return out, nil
}

func cbaInvoice(accountID id.AccountID, status invoice.Status, amounts ...types.Money) invoice.Invoice {
	inv := invoice.Invoice{
		ID:        id.NewInvoiceID(),
		AccountID: accountID,
		Status:    status,
		Currency:  "usd",
	}
	for _, a := range amounts {
		inv.Items = append(inv.Items, invoice.Item{
			ID:        id.NewItemID(),
			AccountID: accountID,
			InvoiceID: inv.ID,
			Kind:      invoice.KindCBAAdj,
			Amount:    a,
		})
	}
	return inv
}

func TestAvailable(t *testing.T) {
	acctID := id.NewAccountID()
	tests := []struct {
		name     string
		invoices []invoice.Invoice
		want     types.Money
	}{
		{
			"no invoices",
			nil,
			types.USD(0),
		},
		{
			"banked credit",
			[]invoice.Invoice{cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000))},
			types.USD(2000),
		},
		{
			"partially consumed",
			[]invoice.Invoice{
				cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000)),
				cbaInvoice(acctID, invoice.StatusCommitted, types.USD(-500)),
			},
			types.USD(1500),
		},
		{
			"void invoices do not count",
			[]invoice.Invoice{
				cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000)),
				cbaInvoice(acctID, invoice.StatusVoid, types.USD(-2000)),
			},
			types.USD(2000),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(&staticLister{invoices: tt.invoices})
			got, err := l.Available(context.Background(), acctID, "usd")
			if err != nil {
				t.Fatalf("Available: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("available = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestConsume(t *testing.T) {
	acctID := id.NewAccountID()
	l := NewLedger(&staticLister{invoices: []invoice.Invoice{
		cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000)),
	}})

	it, err := l.Consume(context.Background(), acctID, types.USD(1500), time.Now())
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if it.Kind != invoice.KindCBAAdj {
		t.Errorf("kind = %s", it.Kind)
	}
	if !it.Amount.Equal(types.USD(-1500)) {
		t.Errorf("amount = %s, want -15.00", it.Amount)
	}
}

func TestConsumeInsufficientCredit(t *testing.T) {
	acctID := id.NewAccountID()
	l := NewLedger(&staticLister{invoices: []invoice.Invoice{
		cbaInvoice(acctID, invoice.StatusCommitted, types.USD(1000)),
	}})

	_, err := l.Consume(context.Background(), acctID, types.USD(1500), time.Now())
	if !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
}

func TestConsumeRejectsNonPositive(t *testing.T) {
	l := NewLedger(&staticLister{})
	for _, amount := range []types.Money{types.USD(0), types.USD(-100)} {
		if _, err := l.Consume(context.Background(), id.NewAccountID(), amount, time.Now()); err == nil {
			t.Errorf("Consume(%s) succeeded, want error", amount)
		}
	}
}

func TestRestoreSpentCredit(t *testing.T) {
	// The invoice being voided spent 15.00 of credit; voiding it
	// returns that amount to the account.
	acctID := id.NewAccountID()
	bank := cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000))
	spend := cbaInvoice(acctID, invoice.StatusCommitted, types.USD(-1500))
	l := NewLedger(&staticLister{invoices: []invoice.Invoice{bank, spend}})

	restored, err := l.Restore(context.Background(), &spend)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored.Equal(types.USD(1500)) {
		t.Errorf("restored = %s, want 15.00", restored)
	}
}

func TestRestoreBankedCreditStillUnspent(t *testing.T) {
	acctID := id.NewAccountID()
	bank := cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000))
	l := NewLedger(&staticLister{invoices: []invoice.Invoice{bank}})

	restored, err := l.Restore(context.Background(), &bank)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !restored.Equal(types.USD(-2000)) {
		t.Errorf("restored = %s, want -20.00", restored)
	}
}

func TestRestoreCreditInUse(t *testing.T) {
	// The banking invoice cannot be voided once its credit was spent
	// elsewhere.
	acctID := id.NewAccountID()
	bank := cbaInvoice(acctID, invoice.StatusCommitted, types.USD(2000))
	spend := cbaInvoice(acctID, invoice.StatusCommitted, types.USD(-1500))
	l := NewLedger(&staticLister{invoices: []invoice.Invoice{bank, spend}})

	_, err := l.Restore(context.Background(), &bank)
	if !errors.Is(err, ErrCreditInUse) {
		t.Fatalf("expected ErrCreditInUse, got %v", err)
	}
}
