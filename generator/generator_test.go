package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/catalog"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testAccount(billingDay int) *account.Account {
	return &account.Account{
		ID:         id.NewAccountID(),
		Currency:   "usd",
		BillingDay: billingDay,
	}
}

func testGenerator(rates map[string]types.Money) *Generator {
	return New(&catalog.StaticPricer{Rates: rates}, nil)
}

func TestProposalSingleMonthlyPeriod(t *testing.T) {
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	facts := []billing.Fact{
		{
			ID:             id.NewFactID(),
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindSubscriptionStart,
			EffectiveDate:  date(2015, time.June, 14),
			PlanName:       "shotgun-monthly",
			Period:         billing.PeriodMonthly,
		},
	}
	gen := testGenerator(map[string]types.Money{"shotgun-monthly": types.USD(24995)})

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.Kind != invoice.KindRecurring {
		t.Errorf("kind = %s, want recurring", it.Kind)
	}
	if !it.StartDate.Equal(date(2015, time.June, 14)) {
		t.Errorf("start = %s", it.StartDate)
	}
	if it.EndDate == nil || !it.EndDate.Equal(date(2015, time.July, 14)) {
		t.Errorf("end = %v, want 2015-07-14", it.EndDate)
	}
	if !it.Amount.Equal(types.USD(24995)) {
		t.Errorf("amount = %s, want 249.95", it.Amount)
	}
}

func TestProposalTwoPeriods(t *testing.T) {
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	facts := []billing.Fact{
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindSubscriptionStart,
			EffectiveDate:  date(2015, time.June, 14),
			PlanName:       "shotgun-monthly",
			Period:         billing.PeriodMonthly,
		},
	}
	gen := testGenerator(map[string]types.Money{"shotgun-monthly": types.USD(24995)})

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.August, 14))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !items[1].StartDate.Equal(date(2015, time.July, 14)) {
		t.Errorf("second period start = %s, want 2015-07-14", items[1].StartDate)
	}
	if !items[1].EndDate.Equal(date(2015, time.August, 14)) {
		t.Errorf("second period end = %s, want 2015-08-14", items[1].EndDate)
	}
}

func TestProposalLeadingStubProrated(t *testing.T) {
	// Subscription starts off-anchor: the first span runs to the next
	// billing day and is prorated against the full notional period.
	acct := testAccount(14)
	facts := []billing.Fact{
		{
			AccountID:      acct.ID,
			SubscriptionID: id.NewSubscriptionID(),
			Kind:           billing.KindSubscriptionStart,
			EffectiveDate:  date(2015, time.June, 20),
			PlanName:       "shotgun-monthly",
			Period:         billing.PeriodMonthly,
		},
	}
	gen := testGenerator(map[string]types.Money{"shotgun-monthly": types.USD(30000)})

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.July, 14))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	// Full period 2015-06-14 to 2015-07-14 is 30 days; the stub covers
	// 24 of them.
	want := types.USD(30000).Prorate(24, 30)
	if !items[0].Amount.Equal(want) {
		t.Errorf("amount = %s, want %s", items[0].Amount, want)
	}
}

func TestProposalCancelTruncation(t *testing.T) {
	tests := []struct {
		name    string
		policy  billing.ActionPolicy
		wantEnd time.Time
	}{
		{"immediate cancel truncates mid-period", billing.PolicyImmediate, date(2015, time.June, 28)},
		{"end of term cancel bills the full period", billing.PolicyEndOfTerm, date(2015, time.July, 14)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := testAccount(14)
			subID := id.NewSubscriptionID()
			facts := []billing.Fact{
				{
					AccountID:      acct.ID,
					SubscriptionID: subID,
					Kind:           billing.KindSubscriptionStart,
					EffectiveDate:  date(2015, time.June, 14),
					PlanName:       "shotgun-monthly",
					Period:         billing.PeriodMonthly,
				},
				{
					AccountID:      acct.ID,
					SubscriptionID: subID,
					Kind:           billing.KindSubscriptionCancel,
					EffectiveDate:  date(2015, time.June, 28),
					Policy:         tt.policy,
				},
			}
			gen := testGenerator(map[string]types.Money{"shotgun-monthly": types.USD(19950)})

			items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.September, 14))
			if err != nil {
				t.Fatalf("Proposal: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
			if !items[0].EndDate.Equal(tt.wantEnd) {
				t.Errorf("end = %s, want %s", items[0].EndDate, tt.wantEnd)
			}
		})
	}
}

func TestProposalZeroLengthSpanDropped(t *testing.T) {
	// Cancelled at the instant it started: nothing to bill.
	acct := testAccount(1)
	subID := id.NewSubscriptionID()
	facts := []billing.Fact{
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindSubscriptionStart,
			EffectiveDate:  date(2015, time.June, 1),
			PlanName:       "shotgun-monthly",
			Period:         billing.PeriodMonthly,
		},
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindSubscriptionCancel,
			EffectiveDate:  date(2015, time.June, 1),
			Policy:         billing.PolicyImmediate,
		},
	}
	gen := testGenerator(map[string]types.Money{"shotgun-monthly": types.USD(19950)})

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.September, 1))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestProposalPlanChangeSplitsPeriod(t *testing.T) {
	acct := testAccount(1)
	subID := id.NewSubscriptionID()
	facts := []billing.Fact{
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindSubscriptionStart,
			EffectiveDate:  date(2015, time.June, 1),
			PlanName:       "basic",
			Period:         billing.PeriodMonthly,
		},
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           billing.KindPlanChange,
			EffectiveDate:  date(2015, time.June, 16),
			Policy:         billing.PolicyImmediate,
			PlanName:       "premium",
			Period:         billing.PeriodMonthly,
		},
	}
	gen := testGenerator(map[string]types.Money{
		"basic":   types.USD(10000),
		"premium": types.USD(30000),
	})

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.July, 1))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].PlanName != "basic" || items[1].PlanName != "premium" {
		t.Fatalf("plans = %s, %s", items[0].PlanName, items[1].PlanName)
	}
	// June has 30 days: 15 on basic, 15 on premium.
	if want := types.USD(10000).Prorate(15, 30); !items[0].Amount.Equal(want) {
		t.Errorf("basic amount = %s, want %s", items[0].Amount, want)
	}
	if want := types.USD(30000).Prorate(15, 30); !items[1].Amount.Equal(want) {
		t.Errorf("premium amount = %s, want %s", items[1].Amount, want)
	}
}

func TestProposalCreditAndFixedCharge(t *testing.T) {
	acct := testAccount(1)
	facts := []billing.Fact{
		{
			AccountID:     acct.ID,
			Kind:          billing.KindCredit,
			EffectiveDate: date(2015, time.June, 1),
			Amount:        types.USD(2000),
			Description:   "goodwill credit",
		},
		{
			AccountID:     acct.ID,
			Kind:          billing.KindFixedCharge,
			EffectiveDate: date(2015, time.June, 5),
			Amount:        types.USD(500),
			Description:   "setup fee",
		},
	}
	gen := testGenerator(nil)

	items, err := gen.Proposal(context.Background(), acct, facts, date(2015, time.July, 1))
	if err != nil {
		t.Fatalf("Proposal: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	var credit, fixed *invoice.Item
	for i := range items {
		switch items[i].Kind {
		case invoice.KindCreditAdj:
			credit = &items[i]
		case invoice.KindFixed:
			fixed = &items[i]
		}
	}
	if credit == nil || fixed == nil {
		t.Fatalf("missing kinds: credit=%v fixed=%v", credit, fixed)
	}
	if !credit.Amount.Equal(types.USD(-2000)) {
		t.Errorf("credit amount = %s, want -20.00", credit.Amount)
	}
	if !fixed.Amount.Equal(types.USD(500)) {
		t.Errorf("fixed amount = %s, want 5.00", fixed.Amount)
	}
}

// ─────────────────────────────────────────────────────────────────────
// Diff
// ─────────────────────────────────────────────────────────────────────

func committedItem(acct *account.Account, subID id.SubscriptionID, kind invoice.ItemKind, start, end time.Time, amount types.Money) invoice.Item {
	it := invoice.Item{
		ID:             id.NewItemID(),
		AccountID:      acct.ID,
		SubscriptionID: subID,
		Kind:           kind,
		StartDate:      start,
		Amount:         amount,
	}
	if !end.IsZero() {
		e := end
		it.EndDate = &e
	}
	return it
}

func TestCompareIdempotent(t *testing.T) {
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	start := date(2015, time.June, 14)
	end := date(2015, time.July, 14)

	committed := []invoice.Item{
		committedItem(acct, subID, invoice.KindRecurring, start, end, types.USD(24995)),
	}
	proposed := []invoice.Item{
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           invoice.KindRecurring,
			StartDate:      start,
			EndDate:        &end,
			Amount:         types.USD(24995),
		},
	}

	diff := Compare(proposed, committed, time.Now())
	if !diff.Empty() {
		t.Fatalf("expected empty diff, got %d new, %d repairs", len(diff.New), len(diff.Repairs))
	}
}

func TestCompareRepairsInvalidatedItem(t *testing.T) {
	// Retroactive change shrank the span: the old full-period item is
	// repaired and the truncated item is added.
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	start := date(2015, time.June, 14)
	fullEnd := date(2015, time.July, 14)
	truncEnd := date(2015, time.June, 28)

	original := committedItem(acct, subID, invoice.KindRecurring, start, fullEnd, types.USD(19950))
	proposed := []invoice.Item{
		{
			AccountID:      acct.ID,
			SubscriptionID: subID,
			Kind:           invoice.KindRecurring,
			StartDate:      start,
			EndDate:        &truncEnd,
			Amount:         types.USD(19950).Prorate(14, 30),
		},
	}

	diff := Compare(proposed, []invoice.Item{original}, time.Now())
	if len(diff.New) != 1 {
		t.Fatalf("expected 1 new item, got %d", len(diff.New))
	}
	if len(diff.Repairs) != 1 {
		t.Fatalf("expected 1 repair, got %d", len(diff.Repairs))
	}
	rep := diff.Repairs[0]
	if rep.Kind != invoice.KindRepairAdj {
		t.Errorf("repair kind = %s", rep.Kind)
	}
	if !rep.Amount.Equal(types.USD(-19950)) {
		t.Errorf("repair amount = %s, want -199.50", rep.Amount)
	}
	if rep.LinkedItemID.String() != original.ID.String() {
		t.Errorf("repair link = %s, want %s", rep.LinkedItemID, original.ID)
	}
	if !diff.New[0].Amount.Equal(types.USD(9310)) {
		t.Errorf("truncated amount = %s, want 93.10", diff.New[0].Amount)
	}
}

func TestCompareNeverRepairsExternalCharges(t *testing.T) {
	acct := testAccount(1)
	ext := committedItem(acct, id.SubscriptionID{}, invoice.KindExternalCharge, date(2015, time.June, 3), time.Time{}, types.USD(1500))

	diff := Compare(nil, []invoice.Item{ext}, time.Now())
	if len(diff.Repairs) != 0 {
		t.Fatalf("external charge was repaired: %+v", diff.Repairs)
	}
}

// ─────────────────────────────────────────────────────────────────────
// Prune
// ─────────────────────────────────────────────────────────────────────

func wrapInvoice(acct *account.Account, status invoice.Status, items ...invoice.Item) invoice.Invoice {
	inv := invoice.Invoice{
		ID:        id.NewInvoiceID(),
		AccountID: acct.ID,
		Status:    status,
		Currency:  acct.Currency,
	}
	for i := range items {
		items[i].InvoiceID = inv.ID
	}
	inv.Items = items
	return inv
}

func TestPruneSkipsVoidInvoices(t *testing.T) {
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	it := committedItem(acct, subID, invoice.KindRecurring, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(24995))

	out, err := Prune(acct.ID, []invoice.Invoice{wrapInvoice(acct, invoice.StatusVoid, it)})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("void invoice items leaked into effective set: %d", len(out))
	}
}

func TestPruneCollapsesRepairedPair(t *testing.T) {
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	orig := committedItem(acct, subID, invoice.KindRecurring, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(19950))
	rep := committedItem(acct, subID, invoice.KindRepairAdj, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(-19950))
	rep.LinkedItemID = orig.ID

	out, err := Prune(acct.ID, []invoice.Invoice{
		wrapInvoice(acct, invoice.StatusCommitted, orig),
		wrapInvoice(acct, invoice.StatusCommitted, rep),
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("fully repaired item survived pruning: %+v", out)
	}
}

func TestPruneRepairChainParity(t *testing.T) {
	// R2 repairs R1, R1 repairs the original. R1 and R2 cancel out, so
	// the original must survive.
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	orig := committedItem(acct, subID, invoice.KindRecurring, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(19950))
	r1 := committedItem(acct, subID, invoice.KindRepairAdj, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(-19950))
	r1.LinkedItemID = orig.ID
	r2 := committedItem(acct, subID, invoice.KindRepairAdj, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(19950))
	r2.LinkedItemID = r1.ID

	out, err := Prune(acct.ID, []invoice.Invoice{
		wrapInvoice(acct, invoice.StatusCommitted, orig),
		wrapInvoice(acct, invoice.StatusCommitted, r1),
		wrapInvoice(acct, invoice.StatusCommitted, r2),
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(out) != 1 || out[0].ID.String() != orig.ID.String() {
		t.Fatalf("expected only the original to survive, got %+v", out)
	}
}

func TestPruneRepairInVoidInvoiceRestoresOriginal(t *testing.T) {
	// Voiding the invoice that held the repair makes the original
	// effective again.
	acct := testAccount(14)
	subID := id.NewSubscriptionID()
	orig := committedItem(acct, subID, invoice.KindRecurring, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(19950))
	rep := committedItem(acct, subID, invoice.KindRepairAdj, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(-19950))
	rep.LinkedItemID = orig.ID

	out, err := Prune(acct.ID, []invoice.Invoice{
		wrapInvoice(acct, invoice.StatusCommitted, orig),
		wrapInvoice(acct, invoice.StatusVoid, rep),
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(out) != 1 || out[0].ID.String() != orig.ID.String() {
		t.Fatalf("expected original to survive, got %+v", out)
	}
}

func TestPruneMissingLinkedItem(t *testing.T) {
	tests := []struct {
		name string
		link func() id.ItemID
	}{
		{"unset link", func() id.ItemID { return id.ItemID{} }},
		{"dangling link", func() id.ItemID { return id.NewItemID() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := testAccount(14)
			rep := committedItem(acct, id.NewSubscriptionID(), invoice.KindRepairAdj, date(2015, time.June, 14), date(2015, time.July, 14), types.USD(-19950))
			rep.LinkedItemID = tt.link()

			_, err := Prune(acct.ID, []invoice.Invoice{wrapInvoice(acct, invoice.StatusCommitted, rep)})
			var cerr *ConsistencyError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConsistencyError, got %v", err)
			}
			if cerr.AccountID.String() != acct.ID.String() {
				t.Errorf("error account = %s, want %s", cerr.AccountID, acct.ID)
			}
		})
	}
}
