// Package catalog defines the pricing collaborator boundary.
//
// Invoicing treats pricing and catalog rule evaluation as a black box:
// the generator asks a Pricer what a subscription span costs and a
// CancelPolicy when a cancellation becomes billing-effective. Hosts plug
// in their own catalog; StaticPricer covers tests and flat rate cards.
package catalog

import (
	"context"
	"time"

	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// Pricer prices a subscription span. Partial periods are priced by the
// implementation; StaticPricer prorates the period rate by day count.
type Pricer interface {
	// PriceSpan returns the charge for [start, end) of the named plan.
	// periodStart/periodEnd delimit the full billing period containing
	// the span, so implementations can prorate.
	PriceSpan(ctx context.Context, subscriptionID id.SubscriptionID, planName string, start, end, periodStart, periodEnd time.Time) (types.Money, error)
}

// CancelPolicy resolves the billing-effective date of a cancellation or
// plan change: given the requested effective date, the policy, and the
// billing period in flight, it returns the date at which billing stops.
//
// The exact interaction between billing and entitlement policies lives
// in the catalog; this module only applies the resolved date.
type CancelPolicy func(requested time.Time, policy billing.ActionPolicy, periodStart, periodEnd time.Time) time.Time

// DefaultCancelPolicy implements the two standard policies: immediate
// cancels are billing-effective at the requested date, end-of-term
// cancels at the end of the period in flight.
func DefaultCancelPolicy(requested time.Time, policy billing.ActionPolicy, _, periodEnd time.Time) time.Time {
	if policy == billing.PolicyEndOfTerm {
		return periodEnd
	}
	return requested
}

// StaticPricer prices plans from a fixed rate table, prorating partial
// periods by day count.
type StaticPricer struct {
	// Rates maps plan name to the full-period rate.
	Rates map[string]types.Money
}

// PriceSpan implements Pricer.
func (p *StaticPricer) PriceSpan(_ context.Context, _ id.SubscriptionID, planName string, start, end, periodStart, periodEnd time.Time) (types.Money, error) {
	rate, ok := p.Rates[planName]
	if !ok {
		return types.Money{}, &UnknownPlanError{Plan: planName}
	}

	spanDays := daysBetween(start, end)
	periodDays := daysBetween(periodStart, periodEnd)
	if spanDays <= 0 || periodDays <= 0 {
		return types.Zero(rate.Currency), nil
	}
	if spanDays >= periodDays {
		return rate, nil
	}
	return rate.Prorate(spanDays, periodDays), nil
}

// UnknownPlanError reports a plan name missing from the rate table.
type UnknownPlanError struct {
	Plan string
}

func (e *UnknownPlanError) Error() string {
	return "catalog: unknown plan " + e.Plan
}

func daysBetween(a, b time.Time) int64 {
	return int64(b.Sub(a).Hours() / 24)
}
