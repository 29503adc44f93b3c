// Package extension provides the Forge extension adapter for the revenue
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.revenue" or "revenue" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/revenue"
	"github.com/xraph/revenue/lock/redislock"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/store/memory"
	mongostore "github.com/xraph/revenue/store/mongo"
	"github.com/xraph/revenue/store/postgres"
	revredis "github.com/xraph/revenue/store/redis"
	"github.com/xraph/revenue/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "revenue"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Hospital billing consolidation and revenue-integrity engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the revenue engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *revenue.Engine
	store      store.Store
	groveDB    *grove.DB
	redis      redis.UniversalClient
	ownsRedis  bool
	engineOpts []revenue.Option
}

// New creates a new revenue Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *revenue.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*revenue.Engine, error) {
		return e.engine, nil
	})
}

// build resolves the store and Redis client and constructs the engine.
func (e *Extension) build() error {
	if e.store == nil {
		s, err := newStore(e.config.Driver, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	if e.redis == nil && e.config.RedisAddr != "" {
		e.redis = redis.NewClient(&redis.Options{
			Addr: e.config.RedisAddr,
			DB:   e.config.RedisDB,
		})
		e.ownsRedis = true
	}

	opts, err := e.buildEngineOpts()
	if err != nil {
		return err
	}
	e.engine = revenue.New(e.store, opts...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("revenue: extension not initialized")
	}
	if err := e.engine.Start(ctx); err != nil {
		return err
	}
	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	defer e.MarkStopped()

	var errs []error
	if e.engine != nil {
		errs = append(errs, e.engine.Stop())
	}
	if e.ownsRedis && e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("revenue: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx).Err()
	}
	return nil
}

// newStore picks the backend for driver. A nil db always yields the
// in-memory store.
func newStore(driver string, db *grove.DB) (store.Store, error) {
	if db == nil {
		if driver != "" && driver != DriverMemory {
			return nil, fmt.Errorf("revenue: driver %q needs a grove database", driver)
		}
		return memory.New(), nil
	}
	switch driver {
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverMongo:
		return mongostore.New(db), nil
	default:
		return nil, fmt.Errorf("revenue: unknown store driver %q", driver)
	}
}

// buildEngineOpts constructs revenue.Option values from the resolved config.
func (e *Extension) buildEngineOpts() ([]revenue.Option, error) {
	opts := make([]revenue.Option, 0, len(e.engineOpts)+9)

	if e.config.Currency != "" {
		opts = append(opts, revenue.WithCurrency(e.config.Currency))
	}
	if e.config.DefaultRate != "" {
		currency := e.config.Currency
		if currency == "" {
			currency = revenue.DefaultCurrency
		}
		rate, err := revenue.ParseMajor(e.config.DefaultRate, currency)
		if err != nil {
			return nil, fmt.Errorf("revenue: default_rate: %w", err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("revenue: default_rate %q is negative", e.config.DefaultRate)
		}
		opts = append(opts, revenue.WithDefaultRate(rate))
	}
	if e.config.SweepInterval < 0 {
		opts = append(opts, revenue.WithSweepInterval(0))
	} else if e.config.SweepInterval > 0 {
		opts = append(opts, revenue.WithSweepInterval(e.config.SweepInterval))
	}
	if e.config.MaxRetries > 0 {
		opts = append(opts, revenue.WithMaxRetries(e.config.MaxRetries))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, revenue.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.DisableMigrate {
		opts = append(opts, revenue.WithoutMigrate())
	}

	if e.redis != nil {
		opts = append(opts,
			revenue.WithSequenceStore(revredis.NewSequenceStore(e.redis,
				revredis.WithKeyPrefix(e.config.SequenceKeyPrefix),
				revredis.WithRetention(e.config.SequenceRetention),
			)),
			revenue.WithLocker(redislock.New(e.redis), e.config.LockTTL),
		)
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("revenue: configuration is required but not found in config files; " +
				"ensure 'extensions.revenue' or 'revenue' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("revenue: configuration loaded",
		forge.F("driver", e.config.Driver),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("currency", e.config.Currency),
		forge.F("default_rate", e.config.DefaultRate),
		forge.F("sweep_interval", e.config.SweepInterval),
		forge.F("max_retries", e.config.MaxRetries),
		forge.F("redis", e.config.RedisAddr != "" || e.redis != nil),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.revenue", "revenue"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("revenue: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("revenue: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.SequenceKeyPrefix == "" {
		cfg.SequenceKeyPrefix = defaults.SequenceKeyPrefix
	}
	if cfg.SequenceRetention == 0 {
		cfg.SequenceRetention = defaults.SequenceRetention
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaults.LockTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML takes precedence; programmatic values fill gaps and true bool
// flags always win.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Driver, programmaticConfig.Driver)
	fill(&yamlConfig.Currency, programmaticConfig.Currency)
	fill(&yamlConfig.DefaultRate, programmaticConfig.DefaultRate)
	fill(&yamlConfig.RedisAddr, programmaticConfig.RedisAddr)
	fill(&yamlConfig.SequenceKeyPrefix, programmaticConfig.SequenceKeyPrefix)

	if yamlConfig.SweepInterval == 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.MaxRetries == 0 {
		yamlConfig.MaxRetries = programmaticConfig.MaxRetries
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.SequenceRetention == 0 {
		yamlConfig.SequenceRetention = programmaticConfig.SequenceRetention
	}
	if yamlConfig.LockTTL == 0 {
		yamlConfig.LockTTL = programmaticConfig.LockTTL
	}
	if yamlConfig.RedisDB == 0 {
		yamlConfig.RedisDB = programmaticConfig.RedisDB
	}

	return mergeWithDefaults(yamlConfig)
}
