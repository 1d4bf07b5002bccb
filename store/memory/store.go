// Package memory provides an in-memory Store for tests and embedded
// use. Data does not survive the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/invoicing"
	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts map[string]*account.Account
	invoices map[string]*invoice.Invoice
}

func New() *Store {
	return &Store{
		accounts: make(map[string]*account.Account),
		invoices: make(map[string]*invoice.Invoice),
	}
}

// ─────────────────────────────────────────────────────────────────────
// Accounts
// ─────────────────────────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; exists {
		return invoicing.ErrAccountExists
	}
	cp := *a
	s.accounts[a.ID.String()] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID.String()]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, invoicing.ErrAccountNotFound
}

func (s *Store) GetAccountByKey(_ context.Context, externalKey string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if a.ExternalKey == externalKey {
			cp := *a
			return &cp, nil
		}
	}
	return nil, invoicing.ErrAccountNotFound
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID.String()]; !exists {
		return invoicing.ErrAccountNotFound
	}
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	s.accounts[a.ID.String()] = &cp
	return nil
}

func (s *Store) ListParkedAccounts(_ context.Context) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if a.Parked {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) ParkAccount(_ context.Context, accountID id.AccountID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return invoicing.ErrAccountNotFound
	}
	a.Parked = true
	a.ParkedReason = reason
	a.ParkedAt = &at
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UnparkAccount(_ context.Context, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID.String()]
	if !ok {
		return invoicing.ErrAccountNotFound
	}
	a.Parked = false
	a.ParkedReason = ""
	a.ParkedAt = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ─────────────────────────────────────────────────────────────────────
// Invoices
// ─────────────────────────────────────────────────────────────────────

func (s *Store) CommitInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inv
	cp.Items = append([]invoice.Item(nil), inv.Items...)
	s.invoices[inv.ID.String()] = &cp
	return nil
}

func (s *Store) GetInvoice(_ context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		cp := *inv
		cp.Items = append([]invoice.Item(nil), inv.Items...)
		return &cp, nil
	}
	return nil, invoicing.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, accountID id.AccountID, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*invoice.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.AccountID.String() != accountID.String() {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		if opts.Status == "" && !opts.IncludeVoided && inv.Status == invoice.StatusVoid {
			continue
		}
		if !opts.Start.IsZero() && inv.InvoiceDate.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && inv.InvoiceDate.After(opts.End) {
			continue
		}
		cp := *inv
		cp.Items = append([]invoice.Item(nil), inv.Items...)
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].InvoiceDate.Equal(result[j].InvoiceDate) {
			return result[i].InvoiceDate.Before(result[j].InvoiceDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}
	return result[start:end], nil
}

func (s *Store) MarkInvoicePaid(_ context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return invoicing.ErrInvoiceNotFound
	}
	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentRef = paymentRef
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) MarkInvoiceVoided(_ context.Context, invID id.InvoiceID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[invID.String()]
	if !ok {
		return invoicing.ErrInvoiceNotFound
	}
	inv.Status = invoice.StatusVoid
	inv.VoidedAt = &at
	inv.VoidReason = reason
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

// ─────────────────────────────────────────────────────────────────────
// Store management
// ─────────────────────────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil // no migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // always available
}

func (s *Store) Close() error {
	return nil // nothing to close
}
