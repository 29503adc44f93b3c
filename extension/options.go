package extension

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/grove"

	"github.com/xraph/revenue"
	"github.com/xraph/revenue/plugin"
	"github.com/xraph/revenue/store"
)

// Option configures the revenue Forge extension.
type Option func(*Extension)

// WithStore sets the store for the revenue engine. It takes precedence
// over WithGroveDatabase.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDatabase builds the store over db using the named driver
// ("postgres", "sqlite" or "mongo"). An empty driver defers to Config.Driver.
func WithGroveDatabase(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		if driver != "" {
			e.config.Driver = driver
		}
	}
}

// WithRedis supplies the Redis client for counters and leases instead of
// dialing Config.RedisAddr. The extension does not close it.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(e *Extension) {
		e.redis = rdb
	}
}

// WithEngineOption passes a revenue.Option through to the underlying engine.
func WithEngineOption(opt revenue.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a revenue plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, revenue.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithCurrency sets the default bill currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithSweepInterval sets the overdue sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}

// WithDefaultRate sets the fallback unit rate in major units, for example
// "150.00".
func WithDefaultRate(rate string) Option {
	return func(e *Extension) { e.config.DefaultRate = rate }
}
