package invoicing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/catalog"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/payment"
	"github.com/xraph/invoicing/store/memory"
	"github.com/xraph/invoicing/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// creditEventRecorder captures credit restoration events.
type creditEventRecorder struct {
	restored []types.Money
}

func (r *creditEventRecorder) Name() string { return "credit-events" }

func (r *creditEventRecorder) OnCreditRestored(_ context.Context, _ string, amount interface{}) error {
	if m, ok := amount.(types.Money); ok {
		r.restored = append(r.restored, m)
	}
	return nil
}

// fixture wires an engine over the in-memory store with controllable
// facts, payments, and clock.
type fixture struct {
	eng     *invoicing.Engine
	store   *memory.Store
	facts   *billing.StaticFactSource
	pay     *payment.StaticSource
	credits *creditEventRecorder
	now     time.Time
	acct    *account.Account
}

func newFixture(t *testing.T, rates map[string]types.Money, opts ...invoicing.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:   memory.New(),
		facts:   &billing.StaticFactSource{},
		pay:     &payment.StaticSource{},
		credits: &creditEventRecorder{},
		now:     date(2015, time.June, 14),
	}

	base := []invoicing.Option{
		invoicing.WithFactSource(f.facts),
		invoicing.WithPaymentSource(f.pay),
		invoicing.WithPricer(&catalog.StaticPricer{Rates: rates}),
		invoicing.WithClock(func() time.Time { return f.now }),
		invoicing.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		invoicing.WithPlugin(f.credits),
	}
	f.eng = invoicing.New(f.store, append(base, opts...)...)

	f.acct = &account.Account{
		Name:       "test account",
		Currency:   "usd",
		BillingDay: 14,
	}
	if err := f.eng.CreateAccount(context.Background(), f.acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return f
}

func (f *fixture) startSubscription(start time.Time, plan string) id.SubscriptionID {
	subID := id.NewSubscriptionID()
	f.facts.Add(billing.Fact{
		AccountID:      f.acct.ID,
		SubscriptionID: subID,
		Kind:           billing.KindSubscriptionStart,
		EffectiveDate:  start,
		PlanName:       plan,
		Period:         billing.PeriodMonthly,
	})
	return subID
}

func (f *fixture) cancelSubscription(subID id.SubscriptionID, effective time.Time) {
	f.facts.Add(billing.Fact{
		AccountID:      f.acct.ID,
		SubscriptionID: subID,
		Kind:           billing.KindSubscriptionCancel,
		EffectiveDate:  effective,
		Policy:         billing.PolicyImmediate,
	})
}

// ─────────────────────────────────────────────────────────────────────
// Reconciliation
// ─────────────────────────────────────────────────────────────────────

func TestReconcileIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if inv == nil {
		t.Fatal("first pass committed nothing")
	}
	if len(inv.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(inv.Items))
	}
	if !inv.Items[0].Amount.Equal(types.USD(24995)) {
		t.Errorf("amount = %s, want 249.95", inv.Items[0].Amount)
	}
	if inv.Status != invoice.StatusCommitted {
		t.Errorf("status = %s, want committed", inv.Status)
	}

	// Same facts, same target: nothing to bill.
	again, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if again != nil {
		t.Fatalf("second pass committed invoice %s", again.ID)
	}
}

func TestReconcileNotConfigured(t *testing.T) {
	eng := invoicing.New(memory.New(),
		invoicing.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	_, err := eng.Reconcile(context.Background(), id.NewAccountID(), date(2015, time.July, 14))
	if !errors.Is(err, invoicing.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestReconcileRetroactiveCancelProducesRepair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	subID := f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	first, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	originalItem := first.Items[0]

	// A backdated cancel invalidates part of the committed period.
	f.cancelSubscription(subID, date(2015, time.June, 28))
	f.now = date(2015, time.July, 1)

	second, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("repair pass: %v", err)
	}
	if second == nil {
		t.Fatal("repair pass committed nothing")
	}

	repairs := second.ItemsByKind(invoice.KindRepairAdj)
	if len(repairs) != 1 {
		t.Fatalf("expected 1 repair, got %d", len(repairs))
	}
	if repairs[0].LinkedItemID.String() != originalItem.ID.String() {
		t.Errorf("repair links %s, want %s", repairs[0].LinkedItemID, originalItem.ID)
	}
	if !repairs[0].Amount.Equal(types.USD(-24995)) {
		t.Errorf("repair amount = %s, want -249.95", repairs[0].Amount)
	}

	recurring := second.ItemsByKind(invoice.KindRecurring)
	if len(recurring) != 1 {
		t.Fatalf("expected 1 truncated recurring item, got %d", len(recurring))
	}
	wantPartial := types.USD(24995).Prorate(14, 30)
	if !recurring[0].Amount.Equal(wantPartial) {
		t.Errorf("truncated amount = %s, want %s", recurring[0].Amount, wantPartial)
	}

	// The net negative invoice banks the difference as credit.
	banked := second.CBAAmount()
	wantBank := types.USD(24995).Subtract(wantPartial)
	if !banked.Equal(wantBank) {
		t.Errorf("banked = %s, want %s", banked, wantBank)
	}
	avail, err := f.eng.AccountCredit(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountCredit: %v", err)
	}
	if !avail.Equal(wantBank) {
		t.Errorf("available credit = %s, want %s", avail, wantBank)
	}

	// Converged: a third pass commits nothing.
	third, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("third pass: %v", err)
	}
	if third != nil {
		t.Fatal("third pass committed an invoice after convergence")
	}
}

func TestReconcileConsumesCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"pistol-monthly": types.USD(1000)})

	if _, err := f.eng.InsertCredit(ctx, f.acct.ID, types.USD(2000), "goodwill"); err != nil {
		t.Fatalf("InsertCredit: %v", err)
	}
	f.startSubscription(date(2015, time.June, 14), "pistol-monthly")

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if inv == nil {
		t.Fatal("no invoice committed")
	}

	// The 10.00 charge is fully covered by credit.
	if !inv.ItemTotal().IsZero() {
		t.Errorf("invoice total = %s, want zero", inv.ItemTotal())
	}
	if !inv.CBAAmount().Equal(types.USD(-1000)) {
		t.Errorf("cba movement = %s, want -10.00", inv.CBAAmount())
	}

	avail, err := f.eng.AccountCredit(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountCredit: %v", err)
	}
	if !avail.Equal(types.USD(1000)) {
		t.Errorf("remaining credit = %s, want 10.00", avail)
	}
}

// ─────────────────────────────────────────────────────────────────────
// Void
// ─────────────────────────────────────────────────────────────────────

func TestVoidPreservesItemsAndRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	first, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}

	if err := f.eng.VoidInvoice(ctx, first.ID, "billed in error"); err != nil {
		t.Fatalf("VoidInvoice: %v", err)
	}

	voided, err := f.eng.GetInvoice(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if voided.Status != invoice.StatusVoid {
		t.Errorf("status = %s, want void", voided.Status)
	}
	if voided.VoidReason != "billed in error" {
		t.Errorf("void reason = %q", voided.VoidReason)
	}
	// Items stay on the voided invoice for audit.
	if len(voided.Items) != 1 {
		t.Fatalf("voided invoice lost items: %d", len(voided.Items))
	}
	if !voided.Items[0].Amount.Equal(types.USD(24995)) {
		t.Errorf("preserved amount = %s", voided.Items[0].Amount)
	}

	// 31 days later, both periods are re-invoiced.
	f.now = date(2015, time.August, 14)
	second, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.August, 14))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if second == nil {
		t.Fatal("regeneration committed nothing")
	}
	if len(second.Items) != 2 {
		t.Fatalf("expected 2 re-billed periods, got %d", len(second.Items))
	}
	if !second.ItemTotal().Equal(types.USD(49990)) {
		t.Errorf("total = %s, want 499.90", second.ItemTotal())
	}

	balance, err := f.eng.AccountBalance(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.Equal(types.USD(49990)) {
		t.Errorf("balance = %s, want 499.90", balance)
	}
}

func TestVoidPaidInvoiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := f.eng.MarkInvoicePaid(ctx, inv.ID, date(2015, time.June, 15), "pay_123"); err != nil {
		t.Fatalf("MarkInvoicePaid: %v", err)
	}

	err = f.eng.VoidInvoice(ctx, inv.ID, "mistake")
	if !errors.Is(err, invoicing.ErrInvoicePaid) {
		t.Fatalf("err = %v, want ErrInvoicePaid", err)
	}

	// No mutation on a failed void.
	after, err := f.eng.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if after.Status != invoice.StatusPaid {
		t.Errorf("status = %s, want paid", after.Status)
	}
	if after.VoidedAt != nil {
		t.Error("voided_at set on failed void")
	}
}

func TestVoidWithOutstandingPaymentFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// A successful, unrefunded payment blocks the void even while the
	// invoice status is still committed.
	f.pay.Add(payment.Payment{
		AccountID: f.acct.ID,
		InvoiceID: inv.ID,
		Amount:    types.USD(24995),
		Succeeded: true,
	})
	if err := f.eng.VoidInvoice(ctx, inv.ID, "mistake"); !errors.Is(err, invoicing.ErrInvoicePaid) {
		t.Fatalf("err = %v, want ErrInvoicePaid", err)
	}

	// A fully refunded payment no longer blocks it.
	f.pay.Payments[0].RefundedAmount = types.USD(24995)
	if err := f.eng.VoidInvoice(ctx, inv.ID, "refunded then voided"); err != nil {
		t.Fatalf("void after refund: %v", err)
	}
}

func TestVoidAlreadyVoid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if err := f.eng.VoidInvoice(ctx, inv.ID, "first"); err != nil {
		t.Fatalf("first void: %v", err)
	}
	if err := f.eng.VoidInvoice(ctx, inv.ID, "second"); !errors.Is(err, invoicing.ErrInvoiceAlreadyVoid) {
		t.Fatalf("err = %v, want ErrInvoiceAlreadyVoid", err)
	}
}

func TestCreditGrantVoidAndRetrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"pistol-monthly": types.USD(1000)})

	grant, err := f.eng.InsertCredit(ctx, f.acct.ID, types.USD(2000), "promo")
	if err != nil {
		t.Fatalf("InsertCredit: %v", err)
	}
	if !grant.ItemTotal().IsZero() {
		t.Errorf("credit invoice total = %s, want zero", grant.ItemTotal())
	}

	// Subscription created and cancelled the same day: nothing billable.
	subID := f.startSubscription(date(2015, time.June, 14), "pistol-monthly")
	f.cancelSubscription(subID, date(2015, time.June, 14))

	inv, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if inv != nil {
		t.Fatalf("zero-length subscription produced invoice %s", inv.ID)
	}

	// The banked credit is still unspent, so the grant can be voided.
	if err := f.eng.VoidInvoice(ctx, grant.ID, "promo revoked"); err != nil {
		t.Fatalf("VoidInvoice: %v", err)
	}
	avail, err := f.eng.AccountCredit(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountCredit: %v", err)
	}
	if !avail.IsZero() {
		t.Errorf("credit after void = %s, want zero", avail)
	}

	// Voiding a banking invoice removes credit; nothing was restored.
	if len(f.credits.restored) != 0 {
		t.Errorf("restored events = %v, want none", f.credits.restored)
	}

	// Re-triggering generation walks the voided invoice's items without
	// tripping a link violation and finds nothing left to bill.
	again, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if again != nil {
		t.Fatalf("re-trigger produced invoice %s", again.ID)
	}

	balance, err := f.eng.AccountBalance(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("balance = %s, want zero", balance)
	}
}

func TestVoidRepairedInvoiceAndRetrigger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"pistol-monthly": types.USD(1995)})

	if _, err := f.eng.InsertCredit(ctx, f.acct.ID, types.USD(2000), "promo"); err != nil {
		t.Fatalf("InsertCredit: %v", err)
	}

	subID := f.startSubscription(date(2015, time.June, 14), "pistol-monthly")

	// The full period is charged and covered by credit.
	first, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if !first.ItemTotal().IsZero() {
		t.Fatalf("first invoice total = %s, want zero", first.ItemTotal())
	}
	originalItem := first.ItemsByKind(invoice.KindRecurring)[0]

	// A mid-period cancel repairs the full charge down to 17 days.
	f.cancelSubscription(subID, date(2015, time.July, 1))
	f.now = date(2015, time.July, 2)

	second, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("repair pass: %v", err)
	}
	repairs := second.ItemsByKind(invoice.KindRepairAdj)
	if len(repairs) != 1 {
		t.Fatalf("expected 1 repair, got %d", len(repairs))
	}
	if repairs[0].LinkedItemID.String() != originalItem.ID.String() {
		t.Errorf("repair links %s, want %s", repairs[0].LinkedItemID, originalItem.ID)
	}

	// Voiding the repaired invoice restores the credit it consumed, even
	// though a repair item now points into it.
	if err := f.eng.VoidInvoice(ctx, first.ID, "billed in error"); err != nil {
		t.Fatalf("VoidInvoice: %v", err)
	}
	if len(f.credits.restored) != 1 || !f.credits.restored[0].Equal(types.USD(1995)) {
		t.Errorf("restored events = %v, want [19.95]", f.credits.restored)
	}

	// Re-triggering generation resolves the repair link into the voided
	// invoice without error and finds the truncated period already
	// billed.
	again, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("re-trigger: %v", err)
	}
	if again != nil {
		t.Fatalf("re-trigger produced invoice %s", again.ID)
	}

	balance, err := f.eng.AccountBalance(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("AccountBalance: %v", err)
	}
	if !balance.IsZero() {
		t.Errorf("balance = %s, want zero", balance)
	}
}

func TestVoidCreditInUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"pistol-monthly": types.USD(1000)})

	grant, err := f.eng.InsertCredit(ctx, f.acct.ID, types.USD(1000), "promo")
	if err != nil {
		t.Fatalf("InsertCredit: %v", err)
	}

	// Spend the credit on a real charge.
	f.startSubscription(date(2015, time.June, 14), "pistol-monthly")
	if _, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14)); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	// The grant can no longer be voided: its credit is consumed.
	if err := f.eng.VoidInvoice(ctx, grant.ID, "revoke"); !errors.Is(err, invoicing.ErrCreditInUse) {
		t.Fatalf("err = %v, want ErrCreditInUse", err)
	}
}

// ─────────────────────────────────────────────────────────────────────
// Parking
// ─────────────────────────────────────────────────────────────────────

func TestConsistencyViolationParksAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	// Plant a corrupt committed invoice: a repair pointing at an item
	// that does not exist anywhere in the account's history.
	corrupt := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          id.NewInvoiceID(),
		AccountID:   f.acct.ID,
		InvoiceDate: f.now,
		TargetDate:  f.now,
		Status:      invoice.StatusCommitted,
		Currency:    "usd",
	}
	corrupt.Items = []invoice.Item{{
		ID:           id.NewItemID(),
		InvoiceID:    corrupt.ID,
		AccountID:    f.acct.ID,
		Kind:         invoice.KindRepairAdj,
		StartDate:    f.now,
		Amount:       types.USD(-100),
		LinkedItemID: id.NewItemID(),
		CreatedAt:    f.now,
	}}
	if err := f.store.CommitInvoice(ctx, corrupt); err != nil {
		t.Fatalf("CommitInvoice: %v", err)
	}

	_, err := f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if err == nil {
		t.Fatal("expected parked error")
	}
	if !invoicing.IsParked(err) {
		t.Fatalf("err = %v, want parked error", err)
	}
	// The parked error wraps the underlying violation.
	if !invoicing.IsConsistency(err) {
		t.Fatalf("err = %v, want wrapped consistency error", err)
	}
	var pe *invoicing.ParkedError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As failed for ParkedError")
	}
	if pe.AccountID.String() != f.acct.ID.String() {
		t.Errorf("parked account = %s, want %s", pe.AccountID, f.acct.ID)
	}

	acct, err := f.eng.GetAccount(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Parked {
		t.Fatal("account not parked after consistency violation")
	}

	parked, err := f.eng.ListParkedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListParkedAccounts: %v", err)
	}
	if len(parked) != 1 {
		t.Fatalf("parked accounts = %d, want 1", len(parked))
	}

	if err := f.eng.UnparkAccount(ctx, f.acct.ID); err != nil {
		t.Fatalf("UnparkAccount: %v", err)
	}
	acct, err = f.eng.GetAccount(ctx, f.acct.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acct.Parked {
		t.Fatal("account still parked after unpark")
	}
}

// ─────────────────────────────────────────────────────────────────────
// Locking and dispatch
// ─────────────────────────────────────────────────────────────────────

func TestReconcileLockTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)},
		invoicing.WithLockTimeout(20*time.Millisecond),
	)
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	release, err := f.eng.AcquireAccountLock(ctx, f.acct.ID, time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	_, err = f.eng.Reconcile(ctx, f.acct.ID, date(2015, time.July, 14))
	if !errors.Is(err, invoicing.ErrLockTimeout) {
		t.Fatalf("err = %v, want ErrLockTimeout", err)
	}
}

func TestRequestReconcileQueueFull(t *testing.T) {
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)},
		invoicing.WithQueueSize(1),
	)

	// No workers are draining; the second request has nowhere to go.
	if err := f.eng.RequestReconcile(f.acct.ID, date(2015, time.July, 14)); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := f.eng.RequestReconcile(f.acct.ID, date(2015, time.July, 14)); !errors.Is(err, invoicing.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	if err := f.eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.eng.RequestReconcile(f.acct.ID, date(2015, time.July, 14)); !errors.Is(err, invoicing.ErrEngineClosed) {
		t.Fatalf("err = %v, want ErrEngineClosed", err)
	}
}

func TestBackgroundDispatchSkipsParked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]types.Money{"shotgun-monthly": types.USD(24995)})
	f.startSubscription(date(2015, time.June, 14), "shotgun-monthly")

	if err := f.store.ParkAccount(ctx, f.acct.ID, "manual", f.now); err != nil {
		t.Fatalf("ParkAccount: %v", err)
	}
	if err := f.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.eng.RequestReconcile(f.acct.ID, date(2015, time.July, 14)); err != nil {
		t.Fatalf("RequestReconcile: %v", err)
	}

	// Give the worker a moment, then confirm nothing was committed.
	time.Sleep(50 * time.Millisecond)
	invoices, err := f.eng.InvoicesByAccount(ctx, f.acct.ID, true)
	if err != nil {
		t.Fatalf("InvoicesByAccount: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("parked account got %d invoices", len(invoices))
	}

	if err := f.eng.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCreateAccountValidatesBillingDay(t *testing.T) {
	f := newFixture(t, nil)

	bad := &account.Account{Currency: "usd", BillingDay: 29}
	if err := f.eng.CreateAccount(context.Background(), bad); !errors.Is(err, invoicing.ErrInvalidBillingDay) {
		t.Fatalf("err = %v, want ErrInvalidBillingDay", err)
	}
}
