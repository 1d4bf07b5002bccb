package invoicing

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/invoicing/credit"
	"github.com/xraph/invoicing/generator"
	"github.com/xraph/invoicing/id"
)

// ─────────────────────────────────────────────────────────────────────
// Not-found and lookup errors
// ─────────────────────────────────────────────────────────────────────

var (
	ErrAccountNotFound = errors.New("invoicing: account not found")
	ErrAccountExists   = errors.New("invoicing: account already exists")
	ErrInvoiceNotFound = errors.New("invoicing: invoice not found")
)

// ─────────────────────────────────────────────────────────────────────
// Domain errors
//
// Expected conditions, reported to the caller with no side effect.
// ─────────────────────────────────────────────────────────────────────

var (
	// ErrInvoiceAlreadyVoid is returned when voiding an invoice that is
	// already void.
	ErrInvoiceAlreadyVoid = errors.New("invoicing: invoice already void")

	// ErrInvoicePaid is returned when voiding an invoice with a
	// successful, not fully refunded payment against it.
	ErrInvoicePaid = errors.New("invoicing: cannot void paid invoice")

	// ErrInvoiceNotCommitted is returned when an operation requires a
	// committed invoice.
	ErrInvoiceNotCommitted = errors.New("invoicing: invoice not committed")

	// ErrInvalidBillingDay is returned when an account's billing day is
	// outside the 1-28 range.
	ErrInvalidBillingDay = errors.New("invoicing: billing day must be between 1 and 28")

	// ErrNotConfigured is returned when reconciliation runs without a
	// fact source or pricer.
	ErrNotConfigured = errors.New("invoicing: fact source and pricer must be configured")

	// ErrInsufficientCredit mirrors credit.ErrInsufficientCredit.
	ErrInsufficientCredit = credit.ErrInsufficientCredit

	// ErrCreditInUse mirrors credit.ErrCreditInUse.
	ErrCreditInUse = credit.ErrCreditInUse
)

// ─────────────────────────────────────────────────────────────────────
// Transient errors
//
// Safe to retry; nothing was committed.
// ─────────────────────────────────────────────────────────────────────

var (
	// ErrLockTimeout is returned when the per-account lock could not be
	// acquired within the configured timeout.
	ErrLockTimeout = errors.New("invoicing: timed out waiting for account lock")

	// ErrQueueFull is returned when the background reconcile queue has
	// no capacity for another request.
	ErrQueueFull = errors.New("invoicing: reconcile queue full")

	// ErrEngineClosed is returned when the engine has been stopped.
	ErrEngineClosed = errors.New("invoicing: engine closed")
)

// ConsistencyError is the fatal repair-link violation raised during
// generation. See generator.ConsistencyError.
type ConsistencyError = generator.ConsistencyError

// ParkedError reports that reconciliation for an account is halted
// pending operator intervention. It wraps the consistency violation
// that caused the park.
type ParkedError struct {
	AccountID id.AccountID
	Reason    string
	ParkedAt  time.Time
	Cause     error
}

func (e *ParkedError) Error() string {
	return fmt.Sprintf("invoicing: account %s is parked: %s", e.AccountID, e.Reason)
}

// Unwrap returns the violation that parked the account.
func (e *ParkedError) Unwrap() error { return e.Cause }

// ─────────────────────────────────────────────────────────────────────
// Classifiers
// ─────────────────────────────────────────────────────────────────────

// IsNotFound reports whether the error is any of the not-found
// sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsRetryable reports whether the operation may be retried as-is.
// Domain and consistency errors are never retryable: the same inputs
// reproduce the same result.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrQueueFull)
}

// IsConsistency reports whether the error is a fatal ledger
// inconsistency, the class that parks accounts.
func IsConsistency(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

// IsParked reports whether the error indicates a parked account.
func IsParked(err error) bool {
	var pe *ParkedError
	return errors.As(err, &pe)
}
