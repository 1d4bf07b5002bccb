// Package store defines the storage interface for Invoicing entities.
package store

import (
	"context"
	"time"

	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
)

// Store is the unified storage interface for all Invoicing entities.
//
// Invoices persist as single records with their items embedded, so
// CommitInvoice is atomic on every backend: all items of a generation
// pass land together or not at all.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByKey(ctx context.Context, externalKey string) (*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error
	ListParkedAccounts(ctx context.Context) ([]*account.Account, error)
	ParkAccount(ctx context.Context, accountID id.AccountID, reason string, at time.Time) error
	UnparkAccount(ctx context.Context, accountID id.AccountID) error

	// Invoice methods
	CommitInvoice(ctx context.Context, inv *invoice.Invoice) error
	GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, accountID id.AccountID, opts invoice.ListOpts) ([]*invoice.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error
	MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string, at time.Time) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
