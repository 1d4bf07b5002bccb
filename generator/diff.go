package generator

import (
	"sort"
	"time"

	"github.com/xraph/invoicing/invoice"
)

// Diff is the outcome of comparing the should-exist item set against
// the effective committed set. Untouched items appear in neither slice.
type Diff struct {
	// New holds proposed items with no committed counterpart.
	New []invoice.Item

	// Repairs holds one negating repair item per committed item the
	// proposal no longer supports.
	Repairs []invoice.Item
}

// Empty reports whether the diff requires no new invoice.
func (d Diff) Empty() bool {
	return len(d.New) == 0 && len(d.Repairs) == 0
}

// Compare matches proposed items against the effective committed set.
// Each committed item matches at most one proposed item with the same
// kind, span, and amount. Committed charge items left unmatched are
// repaired with a full negation linked back to the original; committed
// credit items left unmatched are left alone, credits are never
// repaired. Proposed items left unmatched become new items.
func Compare(proposed, committed []invoice.Item, now time.Time) Diff {
	matched := make([]bool, len(committed))

	var diff Diff
	for _, p := range proposed {
		found := false
		for i, c := range committed {
			if matched[i] || !p.SpanEqual(c) {
				continue
			}
			matched[i] = true
			found = true
			break
		}
		if !found {
			diff.New = append(diff.New, p)
		}
	}

	for i, c := range committed {
		if matched[i] || !c.Kind.Chargeable() {
			continue
		}
		if c.Kind == invoice.KindExternalCharge {
			// External charges originate outside generation and are
			// never re-proposed, so their absence from the proposal is
			// not a retroactive change.
			continue
		}
		end := c.StartDate
		if c.EndDate != nil {
			end = *c.EndDate
		}
		endCopy := end
		diff.Repairs = append(diff.Repairs, invoice.Item{
			AccountID:      c.AccountID,
			SubscriptionID: c.SubscriptionID,
			Kind:           invoice.KindRepairAdj,
			StartDate:      c.StartDate,
			EndDate:        &endCopy,
			Amount:         c.Amount.Negate(),
			PlanName:       c.PlanName,
			LinkedItemID:   c.ID,
			Description:    "repair of " + c.ID.String(),
			CreatedAt:      now,
		})
	}

	sort.SliceStable(diff.New, func(i, j int) bool {
		return diff.New[i].StartDate.Before(diff.New[j].StartDate)
	})
	sort.SliceStable(diff.Repairs, func(i, j int) bool {
		return diff.Repairs[i].StartDate.Before(diff.Repairs[j].StartDate)
	})
	return diff
}
