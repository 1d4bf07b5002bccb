package extension

import (
	"time"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/plugin"
	"github.com/xraph/invoicing/store"
)

// Option configures the Invoicing Forge extension.
type Option func(*Extension)

// WithStore sets the store for the invoicing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an invoicing.Option through to the underlying engine.
func WithEngineOption(opt invoicing.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an invoicing plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, invoicing.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableAutoStart prevents the engine from starting with the app.
func WithDisableAutoStart() Option {
	return func(e *Extension) { e.config.DisableAutoStart = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithWorkers sets the number of background reconcile workers.
func WithWorkers(n int) Option {
	return func(e *Extension) { e.config.Workers = n }
}

// WithQueueSize sets the reconcile queue capacity.
func WithQueueSize(n int) Option {
	return func(e *Extension) { e.config.QueueSize = n }
}

// WithLockTimeout bounds how long operations wait for an account lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.LockTimeout = d }
}
