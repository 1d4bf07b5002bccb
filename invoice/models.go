// Package invoice defines invoices and invoice items, the append-only
// financial ledger of Invoicing.
//
// Items are immutable once committed. Every correction is an additive
// reversal: a repair_adj item negates a prior item and references it via
// LinkedItemID, and voiding an invoice changes only the invoice status —
// never its items.
package invoice

import (
	"time"

	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/types"
)

// Status is the invoice lifecycle state. Transitions are monotonic:
// draft → committed → paid | void.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCommitted Status = "committed"
	StatusPaid      Status = "paid"
	StatusVoid      Status = "void"
)

// CanTransition reports whether moving from s to next is a legal
// lifecycle step.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusCommitted
	case StatusCommitted:
		return next == StatusPaid || next == StatusVoid
	default:
		return false
	}
}

// ItemKind identifies the financial effect of an item.
type ItemKind string

const (
	// KindFixed is a one-time charge (point item, no end date).
	KindFixed ItemKind = "fixed"

	// KindRecurring is a subscription charge for a date span.
	KindRecurring ItemKind = "recurring"

	// KindRepairAdj reverses a previously committed item invalidated by
	// a retroactive change. Amount is the negation of the original;
	// LinkedItemID must resolve to the original.
	KindRepairAdj ItemKind = "repair_adj"

	// KindCBAAdj moves credit-balance value: positive amounts bank
	// credit for the account, negative amounts spend it on the owning
	// invoice.
	KindCBAAdj ItemKind = "cba_adj"

	// KindCreditAdj records an operator credit (negative charge).
	KindCreditAdj ItemKind = "credit_adj"

	// KindExternalCharge is a charge imported from outside the
	// generation pipeline.
	KindExternalCharge ItemKind = "external_charge"
)

// Chargeable reports whether the kind represents a plain charge that
// the generator diffs against the should-exist set. Adjustment kinds
// are never diffed into repairs.
func (k ItemKind) Chargeable() bool {
	switch k {
	case KindFixed, KindRecurring, KindExternalCharge:
		return true
	default:
		return false
	}
}

// Item is the atomic unit of financial effect.
type Item struct {
	ID        id.ItemID    `json:"id"`
	InvoiceID id.InvoiceID `json:"invoice_id"`
	AccountID id.AccountID `json:"account_id"`

	// SubscriptionID is nil for account-level items (credits, CBA).
	SubscriptionID id.SubscriptionID `json:"subscription_id,omitempty"`

	Kind      ItemKind   `json:"kind"`
	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty"` // nil for point items

	Amount      types.Money `json:"amount"`
	Description string      `json:"description,omitempty"`
	PlanName    string      `json:"plan_name,omitempty"`

	// LinkedItemID references the item this one repairs or derives
	// from. Mandatory and resolvable for repair_adj items.
	LinkedItemID id.ItemID `json:"linked_item_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SpanEqual reports whether two items cover the same subscription span
// with the same economic content. Used to match proposed items against
// committed ones.
func (it Item) SpanEqual(other Item) bool {
	if it.Kind != other.Kind || !it.Amount.Equal(other.Amount) {
		return false
	}
	if it.SubscriptionID.String() != other.SubscriptionID.String() {
		return false
	}
	if !it.StartDate.Equal(other.StartDate) {
		return false
	}
	switch {
	case it.EndDate == nil && other.EndDate == nil:
		return true
	case it.EndDate == nil || other.EndDate == nil:
		return false
	default:
		return it.EndDate.Equal(*other.EndDate)
	}
}

// Invoice is a dated grouping of items for one account.
type Invoice struct {
	types.Entity
	ID        id.InvoiceID `json:"id"`
	AccountID id.AccountID `json:"account_id"`

	InvoiceDate time.Time `json:"invoice_date"`
	TargetDate  time.Time `json:"target_date"`

	Status   Status `json:"status"`
	Currency string `json:"currency"`

	Items []Item `json:"items"`

	PaidAt     *time.Time `json:"paid_at,omitempty"`
	PaymentRef string     `json:"payment_ref,omitempty"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// ItemTotal returns the sum of all item amounts, including credit and
// CBA adjustments.
func (inv *Invoice) ItemTotal() types.Money {
	total := types.Zero(inv.Currency)
	for _, it := range inv.Items {
		total = total.Add(it.Amount)
	}
	return total
}

// ChargedAmount returns the sum of plain charge items, before credit
// is applied.
func (inv *Invoice) ChargedAmount() types.Money {
	total := types.Zero(inv.Currency)
	for _, it := range inv.Items {
		if it.Kind.Chargeable() {
			total = total.Add(it.Amount)
		}
	}
	return total
}

// CBAAmount returns the net credit-balance movement on this invoice:
// positive when the invoice banked credit, negative when it spent it.
func (inv *Invoice) CBAAmount() types.Money {
	total := types.Zero(inv.Currency)
	for _, it := range inv.Items {
		if it.Kind == KindCBAAdj {
			total = total.Add(it.Amount)
		}
	}
	return total
}

// Balance returns the amount still owed on the invoice given the total
// paid against it. Void invoices carry no balance.
func (inv *Invoice) Balance(paid types.Money) types.Money {
	if inv.Status == StatusVoid {
		return types.Zero(inv.Currency)
	}
	return inv.ItemTotal().Subtract(paid)
}

// ItemsByKind returns the invoice's items of the given kind.
func (inv *Invoice) ItemsByKind(kind ItemKind) []Item {
	var out []Item
	for _, it := range inv.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

// ListOpts filters invoice listings.
type ListOpts struct {
	IncludeVoided bool
	Status        Status
	Start         time.Time
	End           time.Time
	Limit         int
	Offset        int
}
