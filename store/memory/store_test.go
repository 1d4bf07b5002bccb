package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedInvoice(t *testing.T, s *Store, accountID id.AccountID, day int, status invoice.Status) *invoice.Invoice {
	t.Helper()

	inv := &invoice.Invoice{
		ID:          id.NewInvoiceID(),
		AccountID:   accountID,
		InvoiceDate: date(2024, time.March, day),
		TargetDate:  date(2024, time.March, day),
		Status:      status,
		Currency:    "usd",
		Items: []invoice.Item{{
			ID:        id.NewItemID(),
			AccountID: accountID,
			Kind:      invoice.KindRecurring,
			StartDate: date(2024, time.March, day),
			Amount:    types.USD(1000),
		}},
	}
	if err := s.CommitInvoice(context.Background(), inv); err != nil {
		t.Fatalf("CommitInvoice: %v", err)
	}
	return inv
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &account.Account{
		ID:          id.NewAccountID(),
		ExternalKey: "acme",
		Currency:    "usd",
		BillingDay:  14,
	}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := s.CreateAccount(ctx, a); !errors.Is(err, invoicing.ErrAccountExists) {
		t.Fatalf("duplicate create err = %v, want ErrAccountExists", err)
	}

	got, err := s.GetAccountByKey(ctx, "acme")
	if err != nil {
		t.Fatalf("GetAccountByKey: %v", err)
	}
	if got.ID.String() != a.ID.String() {
		t.Errorf("got account %s, want %s", got.ID, a.ID)
	}

	if _, err := s.GetAccount(ctx, id.NewAccountID()); !errors.Is(err, invoicing.ErrAccountNotFound) {
		t.Fatalf("missing account err = %v, want ErrAccountNotFound", err)
	}
}

func TestParkAndUnpark(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &account.Account{ID: id.NewAccountID(), Currency: "usd", BillingDay: 1}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := s.ParkAccount(ctx, a.ID, "dangling repair link", date(2024, time.March, 1)); err != nil {
		t.Fatalf("ParkAccount: %v", err)
	}
	parked, err := s.ListParkedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListParkedAccounts: %v", err)
	}
	if len(parked) != 1 || !parked[0].Parked {
		t.Fatalf("parked = %v", parked)
	}
	if parked[0].ParkedReason != "dangling repair link" {
		t.Errorf("reason = %q", parked[0].ParkedReason)
	}

	if err := s.UnparkAccount(ctx, a.ID); err != nil {
		t.Fatalf("UnparkAccount: %v", err)
	}
	parked, err = s.ListParkedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListParkedAccounts: %v", err)
	}
	if len(parked) != 0 {
		t.Fatalf("still parked after unpark: %d", len(parked))
	}
}

func TestListInvoicesFiltering(t *testing.T) {
	ctx := context.Background()
	s := New()
	accountID := id.NewAccountID()

	committed := seedInvoice(t, s, accountID, 1, invoice.StatusCommitted)
	seedInvoice(t, s, accountID, 5, invoice.StatusPaid)
	voided := seedInvoice(t, s, accountID, 10, invoice.StatusVoid)
	seedInvoice(t, s, id.NewAccountID(), 1, invoice.StatusCommitted) // other account

	tests := []struct {
		name string
		opts invoice.ListOpts
		want int
	}{
		{"default excludes void", invoice.ListOpts{}, 2},
		{"include voided", invoice.ListOpts{IncludeVoided: true}, 3},
		{"status filter wins", invoice.ListOpts{Status: invoice.StatusVoid}, 1},
		{"date range", invoice.ListOpts{Start: date(2024, time.March, 2), End: date(2024, time.March, 6)}, 1},
		{"limit", invoice.ListOpts{IncludeVoided: true, Limit: 2}, 2},
		{"offset past end", invoice.ListOpts{Offset: 10}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListInvoices(ctx, accountID, tt.opts)
			if err != nil {
				t.Fatalf("ListInvoices: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d invoices, want %d", len(got), tt.want)
			}
		})
	}

	// Date-ordered output.
	all, err := s.ListInvoices(ctx, accountID, invoice.ListOpts{IncludeVoided: true})
	if err != nil {
		t.Fatalf("ListInvoices: %v", err)
	}
	if all[0].ID.String() != committed.ID.String() || all[2].ID.String() != voided.ID.String() {
		t.Error("invoices not ordered by invoice date")
	}
}

func TestMarkInvoiceVoidedPreservesItems(t *testing.T) {
	ctx := context.Background()
	s := New()
	accountID := id.NewAccountID()
	inv := seedInvoice(t, s, accountID, 1, invoice.StatusCommitted)

	if err := s.MarkInvoiceVoided(ctx, inv.ID, "mistake", date(2024, time.March, 2)); err != nil {
		t.Fatalf("MarkInvoiceVoided: %v", err)
	}

	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if got.Status != invoice.StatusVoid {
		t.Errorf("status = %s, want void", got.Status)
	}
	if got.VoidReason != "mistake" {
		t.Errorf("reason = %q", got.VoidReason)
	}
	if len(got.Items) != 1 {
		t.Fatalf("items lost on void: %d", len(got.Items))
	}
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	accountID := id.NewAccountID()
	inv := seedInvoice(t, s, accountID, 1, invoice.StatusCommitted)

	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	got.Items[0].Amount = types.USD(99999)
	got.Status = invoice.StatusVoid

	again, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if again.Status != invoice.StatusCommitted || !again.Items[0].Amount.Equal(types.USD(1000)) {
		t.Error("mutating a returned invoice leaked into the store")
	}
}
