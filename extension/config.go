package extension

import "time"

// Config holds the Invoicing extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.invoicing" or "invoicing" keys).
type Config struct {
	// DisableAutoStart prevents the engine from starting (migration and
	// background workers) when the Forge app starts. The host then calls
	// Engine().Start itself.
	DisableAutoStart bool `json:"disable_auto_start" mapstructure:"disable_auto_start" yaml:"disable_auto_start"`

	// Workers is the number of background reconcile workers (default: 4).
	Workers int `json:"workers" mapstructure:"workers" yaml:"workers"`

	// QueueSize is the reconcile request queue capacity (default: 1024).
	QueueSize int `json:"queue_size" mapstructure:"queue_size" yaml:"queue_size"`

	// LockTimeout bounds how long operations wait for an account lock
	// (default: 30s).
	LockTimeout time.Duration `json:"lock_timeout" mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:     4,
		QueueSize:   1024,
		LockTimeout: 30 * time.Second,
	}
}
