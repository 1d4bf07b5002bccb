// Package billing defines the billing fact stream consumed by invoice
// generation.
//
// A fact is an external, dated event — subscription start, cancel, plan
// change, fixed charge, or credit — ordered by effective date, which may
// differ arbitrarily from the order in which facts were recorded.
// Generation never mutates facts; it recomputes the invoiced view from
// the full stream each pass.
package billing

import (
	"context"
	"sort"
	"time"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// FactKind identifies the type of billing event.
type FactKind string

const (
	KindSubscriptionStart  FactKind = "subscription_start"
	KindSubscriptionCancel FactKind = "subscription_cancel"
	KindPlanChange         FactKind = "plan_change"
	KindFixedCharge        FactKind = "fixed_charge"
	KindCredit             FactKind = "credit"
)

// ActionPolicy controls when a cancel or plan change becomes
// billing-effective.
type ActionPolicy string

const (
	// PolicyImmediate makes the change billing-effective at its
	// requested effective date.
	PolicyImmediate ActionPolicy = "immediate"

	// PolicyEndOfTerm defers the billing effect to the end of the
	// billing period in flight.
	PolicyEndOfTerm ActionPolicy = "end_of_term"
)

// Period is the recurring billing period length.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

// Fact is a single billing-relevant event.
type Fact struct {
	ID        id.FactID    `json:"id"`
	AccountID id.AccountID `json:"account_id"`

	// SubscriptionID is nil for account-level facts (credits,
	// standalone fixed charges).
	SubscriptionID id.SubscriptionID `json:"subscription_id,omitempty"`

	Kind          FactKind  `json:"kind"`
	EffectiveDate time.Time `json:"effective_date"`

	// Policy applies to cancel and plan change facts.
	Policy ActionPolicy `json:"policy,omitempty"`

	// PlanName and Period apply to start and plan change facts.
	PlanName string `json:"plan_name,omitempty"`
	Period   Period `json:"period,omitempty"`

	// Amount applies to fixed charge and credit facts. Credits carry a
	// positive amount; the generator turns them into negative
	// credit_adj items.
	Amount types.Money `json:"amount,omitempty"`

	Description string `json:"description,omitempty"`
}

// FactSource supplies the ordered fact stream for an account.
// Implementations are external to this module (subscription management,
// catalog, operator tooling).
type FactSource interface {
	// FactsForAccount returns every billing fact for the account whose
	// effective date is on or before asOf, ordered by effective date.
	FactsForAccount(ctx context.Context, accountID id.AccountID, asOf time.Time) ([]Fact, error)
}

// SortFacts orders facts by effective date, then by kind so starts sort
// before same-day cancels. Generation relies on this ordering.
func SortFacts(facts []Fact) {
	sort.SliceStable(facts, func(i, j int) bool {
		if !facts[i].EffectiveDate.Equal(facts[j].EffectiveDate) {
			return facts[i].EffectiveDate.Before(facts[j].EffectiveDate)
		}
		return kindRank(facts[i].Kind) < kindRank(facts[j].Kind)
	})
}

func kindRank(k FactKind) int {
	switch k {
	case KindSubscriptionStart:
		return 0
	case KindPlanChange:
		return 1
	case KindSubscriptionCancel:
		return 2
	default:
		return 3
	}
}

// StaticFactSource is a FactSource over a fixed in-memory fact set,
// useful for tests and for hosts that assemble facts themselves.
type StaticFactSource struct {
	Facts []Fact
}

// FactsForAccount implements FactSource.
func (s *StaticFactSource) FactsForAccount(_ context.Context, accountID id.AccountID, asOf time.Time) ([]Fact, error) {
	out := make([]Fact, 0, len(s.Facts))
	for _, f := range s.Facts {
		if f.AccountID.String() == accountID.String() && !f.EffectiveDate.After(asOf) {
			out = append(out, f)
		}
	}
	SortFacts(out)
	return out, nil
}

// Add appends a fact to the source.
func (s *StaticFactSource) Add(f Fact) {
	if f.ID.IsNil() {
		f.ID = id.NewFactID()
	}
	s.Facts = append(s.Facts, f)
}
