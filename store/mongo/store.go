// Package mongo implements the Invoicing store on MongoDB via the
// Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	invstore "github.com/xraph/invoicing/store"
)

// Collection name constants.
const (
	colAccounts = "invoicing_accounts"
	colInvoices = "invoicing_invoices"
)

// compile-time interface check
var _ invstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all invoicing collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("invoicing/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrAccountNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) GetAccountByKey(ctx context.Context, externalKey string) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"external_key": externalKey}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrAccountNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get account by key: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ListParkedAccounts(ctx context.Context) ([]*account.Account, error) {
	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"parked": true}).
		Sort(bson.D{{Key: "parked_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("invoicing/mongo: list parked accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) ParkAccount(ctx context.Context, accountID id.AccountID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("parked", true).
		Set("parked_reason", reason).
		Set("parked_at", at).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: park account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrAccountNotFound
	}
	return nil
}

func (s *Store) UnparkAccount(ctx context.Context, accountID id.AccountID) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("parked", false).
		Set("parked_reason", "").
		Set("parked_at", nil).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: unpark account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrAccountNotFound
	}
	return nil
}

// ==================== Invoice Store ====================

func (s *Store) CommitInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: commit invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, invoicing.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoicing/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, accountID id.AccountID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"account_id": accountID.String()}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	} else if !opts.IncludeVoided {
		filter["status"] = bson.M{"$ne": string(invoice.StatusVoid)}
	}
	dateFilter := bson.M{}
	if !opts.Start.IsZero() {
		dateFilter["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		dateFilter["$lte"] = opts.End
	}
	if len(dateFilter) > 0 {
		filter["invoice_date"] = dateFilter
	}

	var models []invoiceModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "invoice_date", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("invoicing/mongo: list invoices: %w", err)
	}

	result := make([]*invoice.Invoice, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Set("status", string(invoice.StatusPaid)).
		Set("paid_at", paidAt).
		Set("payment_ref", paymentRef).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: mark invoice paid: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrInvoiceNotFound
	}
	return nil
}

func (s *Store) MarkInvoiceVoided(ctx context.Context, invID id.InvoiceID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*invoiceModel)(nil)).
		Filter(bson.M{"_id": invID.String()}).
		Set("status", string(invoice.StatusVoid)).
		Set("voided_at", at).
		Set("void_reason", reason).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("invoicing/mongo: mark invoice voided: %w", err)
	}
	if res.MatchedCount() == 0 {
		return invoicing.ErrInvoiceNotFound
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks for the driver's no-documents sentinel.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all invoicing collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{
				Keys:    bson.D{{Key: "external_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
			{Keys: bson.D{{Key: "parked", Value: 1}}},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "invoice_date", Value: 1}}},
			{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}
}
