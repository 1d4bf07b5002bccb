// Package extension provides the Forge extension adapter for Invoicing.
//
// It implements the forge.Extension interface to integrate Invoicing
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.invoicing" or
// "invoicing" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	invoicing "github.com/xraph/invoicing"
	"github.com/xraph/invoicing/store"
	"github.com/xraph/invoicing/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "invoicing"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription invoice generation, repair, and void engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Invoicing as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *invoicing.Engine
	store      store.Store
	engineOpts []invoicing.Option
}

// New creates a new Invoicing Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Invoicing engine.
// This is nil until Register is called.
func (e *Extension) Engine() *invoicing.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the invoicing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build engine options from resolved config.
	opts := e.buildEngineOpts()

	e.engine = invoicing.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*invoicing.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("invoicing: extension not initialized")
	}

	if !e.config.DisableAutoStart {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("invoicing: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs invoicing.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []invoicing.Option {
	opts := make([]invoicing.Option, 0, len(e.engineOpts)+3)

	if e.config.Workers > 0 {
		opts = append(opts, invoicing.WithWorkers(e.config.Workers))
	}
	if e.config.QueueSize > 0 {
		opts = append(opts, invoicing.WithQueueSize(e.config.QueueSize))
	}
	if e.config.LockTimeout > 0 {
		opts = append(opts, invoicing.WithLockTimeout(e.config.LockTimeout))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("invoicing: configuration is required but not found in config files; " +
				"ensure 'extensions.invoicing' or 'invoicing' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("invoicing: configuration loaded",
		forge.F("disable_auto_start", e.config.DisableAutoStart),
		forge.F("workers", e.config.Workers),
		forge.F("queue_size", e.config.QueueSize),
		forge.F("lock_timeout", e.config.LockTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.invoicing" first (namespaced pattern).
	if cm.IsSet("extensions.invoicing") {
		if err := cm.Bind("extensions.invoicing", &cfg); err == nil {
			e.Logger().Debug("invoicing: loaded config from file",
				forge.F("key", "extensions.invoicing"),
			)
			return cfg, true
		}
		e.Logger().Warn("invoicing: failed to bind extensions.invoicing config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "invoicing" key.
	if cm.IsSet("invoicing") {
		if err := cm.Bind("invoicing", &cfg); err == nil {
			e.Logger().Debug("invoicing: loaded config from file",
				forge.F("key", "invoicing"),
			)
			return cfg, true
		}
		e.Logger().Warn("invoicing: failed to bind invoicing config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Workers == 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = defaults.LockTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableAutoStart {
		yamlConfig.DisableAutoStart = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.Workers == 0 && programmaticConfig.Workers != 0 {
		yamlConfig.Workers = programmaticConfig.Workers
	}
	if yamlConfig.QueueSize == 0 && programmaticConfig.QueueSize != 0 {
		yamlConfig.QueueSize = programmaticConfig.QueueSize
	}
	if yamlConfig.LockTimeout == 0 && programmaticConfig.LockTimeout != 0 {
		yamlConfig.LockTimeout = programmaticConfig.LockTimeout
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
