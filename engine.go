package invoicing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/billing"
	"github.com/xraph/invoicing/catalog"
	"github.com/xraph/invoicing/credit"
	"github.com/xraph/invoicing/generator"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/payment"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/store"
	"github.com/xraph/invoicing/types"
)

// Engine is the main invoicing engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	facts    billing.FactSource
	payments payment.Source
	pricer   catalog.Pricer
	policy   catalog.CancelPolicy

	gen     *generator.Generator
	credits *credit.Ledger
	locks   *lockTable

	// Background dispatcher
	queue    chan reconcileRequest
	stopChan chan struct{}
	wg       sync.WaitGroup

	closeMu sync.Mutex
	closed  bool

	// Configuration
	workers     int
	lockTimeout time.Duration
	now         func() time.Time
}

// reconcileRequest is one queued dispatch for the background workers.
type reconcileRequest struct {
	accountID  id.AccountID
	targetDate time.Time
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		credits:     credit.NewLedger(s),
		locks:       newLockTable(),
		queue:       make(chan reconcileRequest, 1024),
		stopChan:    make(chan struct{}),
		workers:     4,
		lockTimeout: 30 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.pricer != nil {
		e.gen = generator.New(e.pricer, e.policy)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithFactSource sets the billing fact source.
func WithFactSource(src billing.FactSource) Option {
	return func(e *Engine) {
		e.facts = src
	}
}

// WithPaymentSource sets the read-only payment source used for balances
// and void preconditions.
func WithPaymentSource(src payment.Source) Option {
	return func(e *Engine) {
		e.payments = src
	}
}

// WithPricer sets the span pricer.
func WithPricer(p catalog.Pricer) Option {
	return func(e *Engine) {
		e.pricer = p
	}
}

// WithCancelPolicy sets the cancel policy resolver.
func WithCancelPolicy(policy catalog.CancelPolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithWorkers sets the number of background reconcile workers.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize sets the reconcile queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.queue = make(chan reconcileRequest, n)
		}
	}
}

// WithLockTimeout sets how long operations wait for an account lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.lockTimeout = d
	}
}

// WithClock overrides the engine clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start reconcile workers
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.reconcileWorker()
	}

	e.logger.Info("invoicing engine started",
		"workers", e.workers,
		"queue_capacity", cap(e.queue),
		"lock_timeout", e.lockTimeout,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopChan)
	e.closeMu.Unlock()

	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount creates a new billing account.
func (e *Engine) CreateAccount(ctx context.Context, a *account.Account) error {
	if a.BillingDay < 1 || a.BillingDay > 28 {
		return ErrInvalidBillingDay
	}
	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	now := e.now()
	a.CreatedAt = now
	a.UpdatedAt = now

	return e.store.CreateAccount(ctx, a)
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// GetAccountByKey retrieves an account by its external key.
func (e *Engine) GetAccountByKey(ctx context.Context, externalKey string) (*account.Account, error) {
	return e.store.GetAccountByKey(ctx, externalKey)
}

// ListParkedAccounts returns every account halted by a consistency
// violation, oldest first.
func (e *Engine) ListParkedAccounts(ctx context.Context) ([]*account.Account, error) {
	return e.store.ListParkedAccounts(ctx)
}

// UnparkAccount clears the parked flag so automatic reconciliation
// resumes. The underlying data is not repaired; the next pass will park
// the account again if the violation persists.
func (e *Engine) UnparkAccount(ctx context.Context, accountID id.AccountID) error {
	if err := e.store.UnparkAccount(ctx, accountID); err != nil {
		return err
	}
	e.plugins.EmitAccountUnparked(ctx, accountID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// RequestReconcile enqueues a reconciliation pass for the background
// workers. It never blocks: a full queue fails with ErrQueueFull.
func (e *Engine) RequestReconcile(accountID id.AccountID, targetDate time.Time) error {
	req := reconcileRequest{accountID: accountID, targetDate: targetDate}

	select {
	case <-e.stopChan:
		return ErrEngineClosed
	default:
	}

	select {
	case e.queue <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Reconcile runs one reconciliation pass for the account and returns
// the committed invoice, or nil when the ledger already matches the
// fact stream.
//
// Reconcile is the explicit trigger: it runs even on a parked account,
// and a pass that completes cleanly clears the park. A consistency
// violation parks the account and returns the ConsistencyError.
func (e *Engine) Reconcile(ctx context.Context, accountID id.AccountID, targetDate time.Time) (*invoice.Invoice, error) {
	if e.gen == nil || e.facts == nil {
		return nil, ErrNotConfigured
	}

	release, err := e.locks.acquire(ctx, accountID, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.reconcileLocked(ctx, accountID, targetDate)
}

// reconcileLocked is the generation pass proper. Caller holds the
// account lock.
func (e *Engine) reconcileLocked(ctx context.Context, accountID id.AccountID, targetDate time.Time) (*invoice.Invoice, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	facts, err := e.facts.FactsForAccount(ctx, accountID, targetDate)
	if err != nil {
		return nil, err
	}

	proposed, err := e.gen.Proposal(ctx, acct, facts, targetDate)
	if err != nil {
		return nil, err
	}

	// Voided invoices stay in the arena: repair links may point into
	// them, and pruning decides what their absence restores.
	existing, err := e.store.ListInvoices(ctx, accountID, invoice.ListOpts{IncludeVoided: true})
	if err != nil {
		return nil, err
	}
	history := make([]invoice.Invoice, len(existing))
	for i := range existing {
		history[i] = *existing[i]
	}

	committed, err := generator.Prune(accountID, history)
	if err != nil {
		if IsConsistency(err) {
			return nil, e.park(ctx, acct, err)
		}
		return nil, err
	}

	now := e.now()
	diff := generator.Compare(proposed, committed, now)
	if diff.Empty() {
		// Nothing to bill. A clean pass clears a parked account.
		e.unparkAfterCleanPass(ctx, acct)
		return nil, nil
	}

	inv := e.assembleInvoice(acct, diff, now, targetDate)

	if err := e.applyCredit(ctx, acct, inv, now); err != nil {
		return nil, err
	}

	if err := e.store.CommitInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.unparkAfterCleanPass(ctx, acct)
	e.plugins.EmitInvoiceCommitted(ctx, inv)
	e.emitCreditMovement(ctx, acct, inv)

	e.logger.Info("invoice committed",
		"account_id", accountID.String(),
		"invoice_id", inv.ID.String(),
		"items", len(inv.Items),
		"total", inv.ItemTotal().String(),
	)

	e.maybeRequestPayment(ctx, acct, inv)

	return inv, nil
}

// assembleInvoice turns a diff into a committed invoice, assigning the
// identifiers the proposal deliberately omits.
func (e *Engine) assembleInvoice(acct *account.Account, diff generator.Diff, now, targetDate time.Time) *invoice.Invoice {
	inv := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          id.NewInvoiceID(),
		AccountID:   acct.ID,
		InvoiceDate: now,
		TargetDate:  targetDate,
		Status:      invoice.StatusCommitted,
		Currency:    acct.Currency,
		Items:       make([]invoice.Item, 0, len(diff.New)+len(diff.Repairs)),
	}

	for _, it := range append(append([]invoice.Item{}, diff.New...), diff.Repairs...) {
		if it.ID.IsNil() {
			it.ID = id.NewItemID()
		}
		it.InvoiceID = inv.ID
		it.AccountID = acct.ID
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		inv.Items = append(inv.Items, it)
	}

	return inv
}

// applyCredit settles the invoice against the account credit ledger:
// a negative total banks the excess as credit, a positive total draws
// down whatever credit is available.
func (e *Engine) applyCredit(ctx context.Context, acct *account.Account, inv *invoice.Invoice, now time.Time) error {
	total := inv.ItemTotal()

	switch {
	case total.IsNegative():
		bank := credit.Bank(acct.ID, total.Negate(), now)
		bank.InvoiceID = inv.ID
		inv.Items = append(inv.Items, bank)

	case total.IsPositive():
		available, err := e.credits.Available(ctx, acct.ID, acct.Currency)
		if err != nil {
			return err
		}
		use := available.Min(total)
		if use.IsPositive() {
			item, err := e.credits.Consume(ctx, acct.ID, use, now)
			if err != nil {
				return err
			}
			item.InvoiceID = inv.ID
			inv.Items = append(inv.Items, item)
		}
	}

	return nil
}

// park halts automatic reconciliation for the account and returns a
// ParkedError wrapping the cause.
func (e *Engine) park(ctx context.Context, acct *account.Account, cause error) error {
	now := e.now()
	if err := e.store.ParkAccount(ctx, acct.ID, cause.Error(), now); err != nil {
		e.logger.Error("failed to park account",
			"account_id", acct.ID.String(),
			"error", err,
		)
		return cause
	}

	e.logger.Warn("account parked",
		"account_id", acct.ID.String(),
		"reason", cause.Error(),
	)
	e.plugins.EmitAccountParked(ctx, acct.ID.String(), cause.Error())

	return &ParkedError{
		AccountID: acct.ID,
		Reason:    cause.Error(),
		ParkedAt:  now,
		Cause:     cause,
	}
}

// unparkAfterCleanPass clears the parked flag after a pass that
// completed without a consistency violation.
func (e *Engine) unparkAfterCleanPass(ctx context.Context, acct *account.Account) {
	if !acct.Parked {
		return
	}
	if err := e.store.UnparkAccount(ctx, acct.ID); err != nil {
		e.logger.Error("failed to unpark account",
			"account_id", acct.ID.String(),
			"error", err,
		)
		return
	}
	e.plugins.EmitAccountUnparked(ctx, acct.ID.String())
}

// emitCreditMovement notifies plugins of any cba_adj movement the
// committed invoice carries.
func (e *Engine) emitCreditMovement(ctx context.Context, acct *account.Account, inv *invoice.Invoice) {
	moved := inv.CBAAmount()
	if moved.IsNegative() {
		e.plugins.EmitCreditConsumed(ctx, acct.ID.String(), moved.Negate())
	}
}

// maybeRequestPayment emits a payment request for a positive-balance
// invoice unless a tag policy has auto-pay off for the account.
func (e *Engine) maybeRequestPayment(ctx context.Context, acct *account.Account, inv *invoice.Invoice) {
	balance := inv.Balance(types.Zero(inv.Currency))
	if !balance.IsPositive() {
		return
	}
	if e.plugins.IsAutoPayOff(ctx, acct.ID.String()) {
		e.logger.Debug("auto-pay off, skipping payment request",
			"account_id", acct.ID.String(),
			"invoice_id", inv.ID.String(),
		)
		return
	}
	e.plugins.EmitPaymentRequested(ctx, inv)
}

// reconcileWorker drains the reconcile queue.
func (e *Engine) reconcileWorker() {
	defer e.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-e.stopChan:
			return

		case req := <-e.queue:
			e.processRequest(ctx, req)
		}
	}
}

// processRequest runs one queued pass. Parked accounts are skipped on
// the automatic path; only an explicit Reconcile call reaches them.
func (e *Engine) processRequest(ctx context.Context, req reconcileRequest) {
	acct, err := e.store.GetAccount(ctx, req.accountID)
	if err != nil {
		e.logger.Error("reconcile dispatch failed",
			"account_id", req.accountID.String(),
			"error", err,
		)
		return
	}
	if acct.Parked {
		e.logger.Debug("skipping parked account",
			"account_id", req.accountID.String(),
			"reason", acct.ParkedReason,
		)
		return
	}

	if _, err := e.Reconcile(ctx, req.accountID, req.targetDate); err != nil {
		e.logger.Error("reconcile failed",
			"account_id", req.accountID.String(),
			"error", err,
		)
	}
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

// GetInvoice retrieves an invoice by ID.
func (e *Engine) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	return e.store.GetInvoice(ctx, invID)
}

// InvoicesByAccount lists an account's invoices in date order. Voided
// invoices are included only when requested.
func (e *Engine) InvoicesByAccount(ctx context.Context, accountID id.AccountID, includeVoided bool) ([]*invoice.Invoice, error) {
	return e.store.ListInvoices(ctx, accountID, invoice.ListOpts{IncludeVoided: includeVoided})
}

// MarkInvoicePaid records an external payment settling the invoice.
func (e *Engine) MarkInvoicePaid(ctx context.Context, invID id.InvoiceID, paidAt time.Time, paymentRef string) error {
	inv, err := e.store.GetInvoice(ctx, invID)
	if err != nil {
		return err
	}
	if !inv.Status.CanTransition(invoice.StatusPaid) {
		return ErrInvoiceNotCommitted
	}
	if err := e.store.MarkInvoicePaid(ctx, invID, paidAt, paymentRef); err != nil {
		return err
	}

	inv.Status = invoice.StatusPaid
	inv.PaidAt = &paidAt
	inv.PaymentRef = paymentRef
	e.plugins.EmitInvoicePaid(ctx, inv)
	return nil
}

// ──────────────────────────────────────────────────
// Credit
// ──────────────────────────────────────────────────

// AccountCredit returns the account's available credit balance.
func (e *Engine) AccountCredit(ctx context.Context, accountID id.AccountID) (types.Money, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return types.Money{}, err
	}
	return e.credits.Available(ctx, accountID, acct.Currency)
}

// InsertCredit grants account credit outside the fact stream, by
// committing a standalone invoice pairing a credit_adj with the cba_adj
// that banks it. The invoice total is zero; the credit becomes
// available immediately.
func (e *Engine) InsertCredit(ctx context.Context, accountID id.AccountID, amount types.Money, description string) (*invoice.Invoice, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("invoicing: credit amount must be positive, got %s", amount)
	}

	release, err := e.locks.acquire(ctx, accountID, e.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	inv := &invoice.Invoice{
		Entity:      types.NewEntity(),
		ID:          id.NewInvoiceID(),
		AccountID:   acct.ID,
		InvoiceDate: now,
		TargetDate:  now,
		Status:      invoice.StatusCommitted,
		Currency:    acct.Currency,
	}

	if description == "" {
		description = "account credit"
	}
	grant := invoice.Item{
		ID:          id.NewItemID(),
		InvoiceID:   inv.ID,
		AccountID:   acct.ID,
		Kind:        invoice.KindCreditAdj,
		StartDate:   now,
		Amount:      amount.Negate(),
		Description: description,
		CreatedAt:   now,
	}
	bank := credit.Bank(acct.ID, amount, now)
	bank.InvoiceID = inv.ID
	inv.Items = []invoice.Item{grant, bank}

	if err := e.store.CommitInvoice(ctx, inv); err != nil {
		return nil, err
	}

	e.plugins.EmitInvoiceCommitted(ctx, inv)
	return inv, nil
}

// ──────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────

// AccountBalance returns the amount owed across the account's non-void
// invoices, net of successful unrefunded payments.
func (e *Engine) AccountBalance(ctx context.Context, accountID id.AccountID) (types.Money, error) {
	acct, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return types.Money{}, err
	}

	invoices, err := e.store.ListInvoices(ctx, accountID, invoice.ListOpts{})
	if err != nil {
		return types.Money{}, err
	}

	paidByInvoice, err := e.paidByInvoice(ctx, accountID, acct.Currency)
	if err != nil {
		return types.Money{}, err
	}

	balance := types.Zero(acct.Currency)
	for _, inv := range invoices {
		paid := paidByInvoice[inv.ID.String()]
		if paid.Currency == "" {
			paid = types.Zero(inv.Currency)
		}
		balance = balance.Add(inv.Balance(paid))
	}
	return balance, nil
}

// paidByInvoice sums successful unrefunded payments per invoice.
func (e *Engine) paidByInvoice(ctx context.Context, accountID id.AccountID, currency string) (map[string]types.Money, error) {
	out := make(map[string]types.Money)
	if e.payments == nil {
		return out, nil
	}

	payments, err := e.payments.PaymentsForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		outstanding := p.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		key := p.InvoiceID.String()
		prev, ok := out[key]
		if !ok {
			prev = types.Zero(currency)
		}
		out[key] = prev.Add(outstanding)
	}
	return out, nil
}

// Plugins exposes the plugin registry, mainly so hosts can register
// plugins after construction.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }
