// Package generator derives the invoice items an account should carry
// as of a target date, and diffs that view against what was already
// committed.
//
// Generation is a pure recomputation: every pass rebuilds the
// should-exist item set from the full billing fact stream and compares
// it to the committed ledger. Retroactive and out-of-order facts need no
// special handling, the diff produces additive repairs for anything the
// new view invalidates.
package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/catalog"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// Generator computes should-exist item sets. It holds no state across
// passes; for a fixed fact stream and target date its output is
// identical on every invocation.
type Generator struct {
	pricer catalog.Pricer
	policy catalog.CancelPolicy
}

// New returns a Generator pricing spans through the given pricer. A nil
// cancel policy falls back to catalog.DefaultCancelPolicy.
func New(pricer catalog.Pricer, policy catalog.CancelPolicy) *Generator {
	if policy == nil {
		policy = catalog.DefaultCancelPolicy
	}
	return &Generator{pricer: pricer, policy: policy}
}

// Proposal returns the items that should exist for the account up to
// the target date, in timeline order. Proposed items carry no item or
// invoice identifier; those are assigned at commit.
func (g *Generator) Proposal(ctx context.Context, acct *account.Account, facts []billing.Fact, targetDate time.Time) ([]invoice.Item, error) {
	billing.SortFacts(facts)

	var items []invoice.Item

	for _, tl := range buildTimelines(facts, acct.BillingDay, g.policy) {
		for _, span := range tl.slice(acct.BillingDay, targetDate) {
			amount, err := g.pricer.PriceSpan(ctx, span.SubscriptionID, span.PlanName, span.Start, span.End, span.PeriodStart, span.PeriodEnd)
			if err != nil {
				return nil, fmt.Errorf("price %s span %s to %s: %w",
					span.PlanName, span.Start.Format("2006-01-02"), span.End.Format("2006-01-02"), err)
			}
			if amount.IsZero() {
				continue
			}
			end := span.End
			items = append(items, invoice.Item{
				AccountID:      acct.ID,
				SubscriptionID: span.SubscriptionID,
				Kind:           invoice.KindRecurring,
				StartDate:      span.Start,
				EndDate:        &end,
				Amount:         amount,
				PlanName:       span.PlanName,
				Description:    fmt.Sprintf("%s (%s to %s)", span.PlanName, span.Start.Format("2006-01-02"), span.End.Format("2006-01-02")),
			})
		}
	}

	for _, f := range facts {
		if f.EffectiveDate.After(targetDate) {
			continue
		}
		switch f.Kind {
		case billing.KindFixedCharge:
			if f.Amount.IsZero() {
				continue
			}
			items = append(items, invoice.Item{
				AccountID:      acct.ID,
				SubscriptionID: f.SubscriptionID,
				Kind:           invoice.KindFixed,
				StartDate:      f.EffectiveDate,
				Amount:         f.Amount,
				Description:    f.Description,
			})
		case billing.KindCredit:
			if f.Amount.IsZero() {
				continue
			}
			items = append(items, invoice.Item{
				AccountID:   acct.ID,
				Kind:        invoice.KindCreditAdj,
				StartDate:   f.EffectiveDate,
				Amount:      f.Amount.Negate(),
				Description: f.Description,
			})
		}
	}

	return items, nil
}

// ProposalTotal sums proposed item amounts in the account currency.
func ProposalTotal(items []invoice.Item, currency string) types.Money {
	total := types.Zero(currency)
	for _, it := range items {
		total = total.Add(it.Amount)
	}
	return total
}
