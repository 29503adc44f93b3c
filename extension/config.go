package extension

import "time"

// Driver names accepted in Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the revenue extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.revenue" or "revenue" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store built over the grove database passed with
	// WithGroveDatabase: "postgres", "sqlite" or "mongo". Without a grove
	// database the in-memory store is used.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// Currency is applied to bills created without one (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// SweepInterval is how often overdue anomalies and coding records are
	// flagged (default: 5m). A negative value disables the sweep.
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// DefaultRate is the unit rate, in major units of Currency (for
	// example "150.00"), billed when neither the caller nor the tariff
	// master supplies one. Empty means zero.
	DefaultRate string `json:"default_rate" mapstructure:"default_rate" yaml:"default_rate"`

	// MaxRetries bounds reload-and-retry after a version conflict (default: 5).
	MaxRetries int `json:"max_retries" mapstructure:"max_retries" yaml:"max_retries"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RedisAddr, when set, moves document counters to Redis and guards
	// read-modify-write cycles with Redis leases.
	RedisAddr string `json:"redis_addr" mapstructure:"redis_addr" yaml:"redis_addr"`

	// RedisDB selects the Redis logical database.
	RedisDB int `json:"redis_db" mapstructure:"redis_db" yaml:"redis_db"`

	// SequenceKeyPrefix namespaces counter keys (default: "revenue:seq:").
	SequenceKeyPrefix string `json:"sequence_key_prefix" mapstructure:"sequence_key_prefix" yaml:"sequence_key_prefix"`

	// SequenceRetention expires Redis counters after their last use
	// (default: 72h).
	SequenceRetention time.Duration `json:"sequence_retention" mapstructure:"sequence_retention" yaml:"sequence_retention"`

	// LockTTL is the lease length taken around each write (default: 10s).
	LockTTL time.Duration `json:"lock_ttl" mapstructure:"lock_ttl" yaml:"lock_ttl"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:            DriverMemory,
		Currency:          "inr",
		SweepInterval:     5 * time.Minute,
		MaxRetries:        5,
		PluginTimeout:     5 * time.Second,
		SequenceKeyPrefix: "revenue:seq:",
		SequenceRetention: 72 * time.Hour,
		LockTTL:           10 * time.Second,
	}
}
