// Package account defines the billing account model.
//
// An account is the unit of reconciliation: all invoices, items, and
// credit belong to exactly one account, and all reconciliation passes
// for an account are serialized through its lock.
package account

import (
	"time"

	"github.com/xraph/invoicing/id"
)

// Account is a billing account.
type Account struct {
	ID          id.AccountID `json:"id"`
	ExternalKey string       `json:"external_key"`
	Name        string       `json:"name"`
	Currency    string       `json:"currency"`

	// BillingDay is the day-of-month billing anchor (1-28). Periods for
	// subscriptions on this account align to this day once the first
	// full period begins.
	BillingDay int `json:"billing_day"`

	// Parked is set when a reconciliation pass hit an irrecoverable
	// consistency violation. A parked account is skipped by automatic
	// reconciliation until an operator clears it or an explicit
	// re-trigger completes cleanly.
	Parked       bool       `json:"parked"`
	ParkedReason string     `json:"parked_reason,omitempty"`
	ParkedAt     *time.Time `json:"parked_at,omitempty"`

	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
