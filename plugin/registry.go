package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit             []OnInit
	onShutdown         []OnShutdown
	onInvoiceCommitted []OnInvoiceCommitted
	onInvoicePaid      []OnInvoicePaid
	onInvoiceVoided    []OnInvoiceVoided
	onAccountParked    []OnAccountParked
	onAccountUnparked  []OnAccountUnparked
	onCreditConsumed   []OnCreditConsumed
	onCreditRestored   []OnCreditRestored
	onPaymentRequested []OnPaymentRequested
	tagPolicies        []TagPolicy
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvoiceCommitted); ok {
		r.onInvoiceCommitted = append(r.onInvoiceCommitted, v)
	}
	if v, ok := p.(OnInvoicePaid); ok {
		r.onInvoicePaid = append(r.onInvoicePaid, v)
	}
	if v, ok := p.(OnInvoiceVoided); ok {
		r.onInvoiceVoided = append(r.onInvoiceVoided, v)
	}
	if v, ok := p.(OnAccountParked); ok {
		r.onAccountParked = append(r.onAccountParked, v)
	}
	if v, ok := p.(OnAccountUnparked); ok {
		r.onAccountUnparked = append(r.onAccountUnparked, v)
	}
	if v, ok := p.(OnCreditConsumed); ok {
		r.onCreditConsumed = append(r.onCreditConsumed, v)
	}
	if v, ok := p.(OnCreditRestored); ok {
		r.onCreditRestored = append(r.onCreditRestored, v)
	}
	if v, ok := p.(OnPaymentRequested); ok {
		r.onPaymentRequested = append(r.onPaymentRequested, v)
	}
	if v, ok := p.(TagPolicy); ok {
		r.tagPolicies = append(r.tagPolicies, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnInvoiceCommitted)(nil)).Elem(), "OnInvoiceCommitted")
	checkInterface(reflect.TypeOf((*OnInvoicePaid)(nil)).Elem(), "OnInvoicePaid")
	checkInterface(reflect.TypeOf((*OnInvoiceVoided)(nil)).Elem(), "OnInvoiceVoided")
	checkInterface(reflect.TypeOf((*OnAccountParked)(nil)).Elem(), "OnAccountParked")
	checkInterface(reflect.TypeOf((*OnAccountUnparked)(nil)).Elem(), "OnAccountUnparked")
	checkInterface(reflect.TypeOf((*OnCreditConsumed)(nil)).Elem(), "OnCreditConsumed")
	checkInterface(reflect.TypeOf((*OnCreditRestored)(nil)).Elem(), "OnCreditRestored")
	checkInterface(reflect.TypeOf((*OnPaymentRequested)(nil)).Elem(), "OnPaymentRequested")
	checkInterface(reflect.TypeOf((*TagPolicy)(nil)).Elem(), "TagPolicy")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceCommitted emits an invoice committed event.
func (r *Registry) EmitInvoiceCommitted(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onInvoiceCommitted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceCommitted(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceCommitted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoicePaid emits an invoice paid event.
func (r *Registry) EmitInvoicePaid(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onInvoicePaid
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoicePaid(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnInvoicePaid failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInvoiceVoided emits an invoice voided event.
func (r *Registry) EmitInvoiceVoided(ctx context.Context, inv interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onInvoiceVoided
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInvoiceVoided(ctx, inv, reason)
		}); err != nil {
			r.logger.Warn("plugin OnInvoiceVoided failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountParked emits an account parked event.
func (r *Registry) EmitAccountParked(ctx context.Context, accountID, reason string) {
	r.mu.RLock()
	plugins := r.onAccountParked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountParked(ctx, accountID, reason)
		}); err != nil {
			r.logger.Warn("plugin OnAccountParked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitAccountUnparked emits an account unparked event.
func (r *Registry) EmitAccountUnparked(ctx context.Context, accountID string) {
	r.mu.RLock()
	plugins := r.onAccountUnparked
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnAccountUnparked(ctx, accountID)
		}); err != nil {
			r.logger.Warn("plugin OnAccountUnparked failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditConsumed emits a credit consumed event.
func (r *Registry) EmitCreditConsumed(ctx context.Context, accountID string, amount interface{}) {
	r.mu.RLock()
	plugins := r.onCreditConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditConsumed(ctx, accountID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnCreditConsumed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditRestored emits a credit restored event.
func (r *Registry) EmitCreditRestored(ctx context.Context, accountID string, amount interface{}) {
	r.mu.RLock()
	plugins := r.onCreditRestored
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditRestored(ctx, accountID, amount)
		}); err != nil {
			r.logger.Warn("plugin OnCreditRestored failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPaymentRequested emits a payment requested event.
func (r *Registry) EmitPaymentRequested(ctx context.Context, inv interface{}) {
	r.mu.RLock()
	plugins := r.onPaymentRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPaymentRequested(ctx, inv)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentRequested failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// IsAutoPayOff consults registered tag policies. Any policy answering
// true suppresses automatic payment for the account.
func (r *Registry) IsAutoPayOff(ctx context.Context, accountID string) bool {
	r.mu.RLock()
	policies := r.tagPolicies
	r.mu.RUnlock()

	for _, p := range policies {
		if p.IsAutoPayOff(ctx, accountID) {
			return true
		}
	}
	return false
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the invoicing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
