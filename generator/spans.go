package generator

import (
	"time"

	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/catalog"
	"github.com/xraph/invoicing/id"
)

// Span is one billable slice of a subscription timeline. Start and End
// bound the slice itself; PeriodStart and PeriodEnd bound the full
// billing period containing it, so pricing can prorate partial periods.
type Span struct {
	SubscriptionID id.SubscriptionID
	PlanName       string
	Period         billing.Period
	Start          time.Time
	End            time.Time
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// segment is a contiguous run of one plan on a subscription.
type segment struct {
	plan   string
	period billing.Period
	start  time.Time
	end    *time.Time
}

// timeline is a subscription's plan history plus its billing-effective
// cancellation, if any.
type timeline struct {
	subID    id.SubscriptionID
	segments []segment
	cancelAt *time.Time
}

// buildTimelines folds subscription facts into per-subscription
// timelines. Facts must be sorted by effective date (billing.SortFacts).
// Cancel and plan-change dates are resolved through the cancel policy
// against the billing period in flight at the requested date.
func buildTimelines(facts []billing.Fact, billingDay int, policy catalog.CancelPolicy) []*timeline {
	bySub := make(map[string]*timeline)
	var order []string

	for _, f := range facts {
		if f.SubscriptionID.IsNil() {
			continue
		}
		key := f.SubscriptionID.String()
		tl, ok := bySub[key]

		switch f.Kind {
		case billing.KindSubscriptionStart:
			if ok {
				continue // duplicate start, first one wins
			}
			tl = &timeline{subID: f.SubscriptionID}
			tl.segments = append(tl.segments, segment{
				plan:   f.PlanName,
				period: f.Period,
				start:  f.EffectiveDate,
			})
			bySub[key] = tl
			order = append(order, key)

		case billing.KindPlanChange:
			if !ok || tl.cancelAt != nil {
				continue
			}
			cur := &tl.segments[len(tl.segments)-1]
			ps, pe := periodBounds(cur.start, f.EffectiveDate, billingDay, cur.period)
			effective := policy(f.EffectiveDate, f.Policy, ps, pe)
			if !effective.After(cur.start) {
				// Change lands at or before the segment start, the new
				// plan replaces it outright.
				cur.plan = f.PlanName
				if f.Period != "" {
					cur.period = f.Period
				}
				continue
			}
			end := effective
			cur.end = &end
			period := cur.period
			if f.Period != "" {
				period = f.Period
			}
			tl.segments = append(tl.segments, segment{
				plan:   f.PlanName,
				period: period,
				start:  effective,
			})

		case billing.KindSubscriptionCancel:
			if !ok || tl.cancelAt != nil {
				continue
			}
			cur := &tl.segments[len(tl.segments)-1]
			ps, pe := periodBounds(cur.start, f.EffectiveDate, billingDay, cur.period)
			effective := policy(f.EffectiveDate, f.Policy, ps, pe)
			if effective.Before(cur.start) {
				effective = cur.start
			}
			tl.cancelAt = &effective
		}
	}

	out := make([]*timeline, 0, len(order))
	for _, key := range order {
		out = append(out, bySub[key])
	}
	return out
}

// slice cuts a timeline into billable spans up to the target date.
// Zero-length spans are dropped.
func (tl *timeline) slice(billingDay int, target time.Time) []Span {
	limit := target
	if tl.cancelAt != nil && tl.cancelAt.Before(limit) {
		limit = *tl.cancelAt
	}

	var spans []Span
	for _, seg := range tl.segments {
		segEnd := limit
		if seg.end != nil && seg.end.Before(segEnd) {
			segEnd = *seg.end
		}
		cur := seg.start
		for cur.Before(segEnd) {
			ps, pe := periodBounds(seg.start, cur, billingDay, seg.period)
			end := pe
			if segEnd.Before(end) {
				end = segEnd
			}
			if end.After(cur) {
				spans = append(spans, Span{
					SubscriptionID: tl.subID,
					PlanName:       seg.plan,
					Period:         seg.period,
					Start:          cur,
					End:            end,
					PeriodStart:    ps,
					PeriodEnd:      pe,
				})
			}
			cur = pe
		}
	}
	return spans
}

// periodBounds returns the full billing period [start, end) containing
// t, for periods anchored at the account billing day starting from
// origin. The period sequence begins at the anchor on or before origin
// and advances by the period length, so a subscription starting off the
// anchor gets a short leading period up to the next anchor.
func periodBounds(origin, t time.Time, billingDay int, period billing.Period) (time.Time, time.Time) {
	ps := anchorOnOrBefore(origin, billingDay)
	for {
		pe := advance(ps, period)
		if t.Before(pe) {
			return ps, pe
		}
		ps = pe
	}
}

// anchorOnOrBefore returns the latest billing-day anchor not after t.
// Billing days are 1 through 28, so every month has the anchor.
func anchorOnOrBefore(t time.Time, billingDay int) time.Time {
	anchor := time.Date(t.Year(), t.Month(), billingDay, 0, 0, 0, 0, time.UTC)
	if anchor.After(t) {
		anchor = anchor.AddDate(0, -1, 0)
	}
	return anchor
}

func advance(t time.Time, period billing.Period) time.Time {
	if period == billing.PeriodAnnual {
		return t.AddDate(1, 0, 0)
	}
	return t.AddDate(0, 1, 0)
}
