package generator

import (
	"fmt"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
)

// ConsistencyError reports an irrecoverable ledger inconsistency found
// while resolving repair links. It is never retried with the same
// inputs; the caller parks the account for operator review.
type ConsistencyError struct {
	AccountID id.AccountID
	ItemID    id.ItemID
	LinkedID  id.ItemID
	Reason    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("invoicing: illegal invoicing state on account %s: item %s: %s", e.AccountID, e.ItemID, e.Reason)
}

// Prune reduces the committed ledger to the effective item set a
// generation pass diffs against.
//
// The walk works over an arena of every committed item, including items
// on void invoices, because repair links may cross into voided
// invoices. An item survives pruning when:
//
//   - its owning invoice is not void, and
//   - it has not been fully negated by still-standing repair items.
//
// Repairs of repairs collapse from the end of the chain inward: a
// repair negated by its own repair no longer counts against its target.
// A repair item whose link cannot be resolved is the fatal missing
// linked item condition and aborts the pass.
func Prune(accountID id.AccountID, invoices []invoice.Invoice) ([]invoice.Item, error) {
	arena := make(map[string]invoice.Item)
	voided := make(map[string]bool)
	for _, inv := range invoices {
		for _, it := range inv.Items {
			arena[it.ID.String()] = it
			if inv.Status == invoice.StatusVoid {
				voided[it.ID.String()] = true
			}
		}
	}

	if err := checkRepairLinks(accountID, arena); err != nil {
		return nil, err
	}

	alive := make(map[string]bool, len(arena))
	for key := range arena {
		if !voided[key] {
			alive[key] = true
		}
	}
	collapseRepairs(arena, alive)

	var out []invoice.Item
	for _, inv := range invoices {
		if inv.Status == invoice.StatusVoid {
			continue
		}
		for _, it := range inv.Items {
			if !alive[it.ID.String()] {
				continue
			}
			switch it.Kind {
			case invoice.KindFixed, invoice.KindRecurring, invoice.KindExternalCharge, invoice.KindCreditAdj:
				out = append(out, it)
			}
		}
	}
	return out, nil
}

// checkRepairLinks validates every repair item in the arena, voided or
// not: the link must be set, must resolve, must point at a repairable
// kind, and the chain of repairs-of-repairs must terminate without a
// cycle.
func checkRepairLinks(accountID id.AccountID, arena map[string]invoice.Item) error {
	for _, it := range arena {
		if it.Kind != invoice.KindRepairAdj {
			continue
		}
		if it.LinkedItemID.IsNil() {
			return &ConsistencyError{
				AccountID: accountID,
				ItemID:    it.ID,
				Reason:    "repair item has no linked item",
			}
		}

		seen := map[string]bool{it.ID.String(): true}
		cur := it
		for {
			target, ok := arena[cur.LinkedItemID.String()]
			if !ok {
				return &ConsistencyError{
					AccountID: accountID,
					ItemID:    it.ID,
					LinkedID:  cur.LinkedItemID,
					Reason:    fmt.Sprintf("linked item %s does not exist", cur.LinkedItemID),
				}
			}
			switch target.Kind {
			case invoice.KindRepairAdj:
				if seen[target.ID.String()] {
					return &ConsistencyError{
						AccountID: accountID,
						ItemID:    it.ID,
						LinkedID:  target.ID,
						Reason:    "repair link chain forms a cycle",
					}
				}
				seen[target.ID.String()] = true
				cur = target
			case invoice.KindFixed, invoice.KindRecurring, invoice.KindExternalCharge:
				// terminal
			default:
				return &ConsistencyError{
					AccountID: accountID,
					ItemID:    it.ID,
					LinkedID:  target.ID,
					Reason:    fmt.Sprintf("linked item %s has non-repairable kind %s", target.ID, target.Kind),
				}
			}
			if target.Kind != invoice.KindRepairAdj {
				break
			}
		}
	}
	return nil
}

// collapseRepairs removes fully negated items and their negating
// repairs from the alive set. Chains of repairs-of-repairs collapse
// from the outermost end inward: an item only collapses when its
// negating repairs are leaves, so a repair that was itself repaired no
// longer counts against its target.
func collapseRepairs(arena map[string]invoice.Item, alive map[string]bool) {
	for {
		changed := false
		for key, it := range arena {
			if !alive[key] {
				continue
			}
			if it.Kind == invoice.KindCBAAdj || it.Kind == invoice.KindCreditAdj {
				continue
			}
			repairs := aliveRepairsOf(arena, alive, key)
			if len(repairs) == 0 {
				continue
			}
			leaves := true
			for _, rk := range repairs {
				if len(aliveRepairsOf(arena, alive, rk)) > 0 {
					leaves = false
					break
				}
			}
			if !leaves {
				continue
			}
			sum := it.Amount.Multiply(0)
			for _, rk := range repairs {
				sum = sum.Add(arena[rk].Amount)
			}
			if sum.Equal(it.Amount.Negate()) {
				alive[key] = false
				for _, rk := range repairs {
					alive[rk] = false
				}
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func aliveRepairsOf(arena map[string]invoice.Item, alive map[string]bool, targetKey string) []string {
	var out []string
	for key, it := range arena {
		if alive[key] && it.Kind == invoice.KindRepairAdj && it.LinkedItemID.String() == targetKey {
			out = append(out, key)
		}
	}
	return out
}
