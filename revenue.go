package revenue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/revenue/lock"
	"github.com/xraph/revenue/plugin"
	"github.com/xraph/revenue/sequence"
	"github.com/xraph/revenue/store"
	"github.com/xraph/revenue/tariff"
	"github.com/xraph/revenue/types"
)

const (
	// DefaultMaxRetries bounds the reload-and-retry loop after a version conflict.
	DefaultMaxRetries = 5
	// DefaultSweepInterval is how often the overdue sweep runs after Start.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultLockTTL is the lease length taken around a read-modify-write
	// when a Locker is configured.
	DefaultLockTTL = 10 * time.Second
	// DefaultCurrency is used when no currency is configured.
	DefaultCurrency = "inr"
)

// Engine is the billing consolidation and revenue-integrity engine.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	tracer  trace.Tracer

	seq      *sequence.Generator
	seqStore sequence.Store
	census   sequence.Census
	tariffs  tariff.Resolver
	locker   lock.Locker
	validate *validator.Validate
	now      func() time.Time

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	currency      string
	defaultRate   types.Money
	maxRetries    int
	lockTTL       time.Duration
	sweepInterval time.Duration
	skipMigrate   bool
}

// New creates a new Engine backed by s. The store also serves as the
// sequence store, document census and tariff resolver unless an option
// replaces them.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		tracer:        otel.Tracer("github.com/xraph/revenue"),
		seqStore:      s,
		census:        s,
		tariffs:       s,
		locker:        lock.Nop{},
		validate:      newValidator(),
		now:           time.Now,
		stopChan:      make(chan struct{}),
		currency:      DefaultCurrency,
		maxRetries:    DefaultMaxRetries,
		lockTTL:       DefaultLockTTL,
		sweepInterval: DefaultSweepInterval,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.defaultRate.Currency == "" {
		e.defaultRate = types.Zero(e.currency)
	}
	e.seq = sequence.NewGenerator(e.seqStore, e.census, sequence.WithLogger(e.logger))

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

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.plugins.WithTimeout(d)
	}
}

// WithSequenceStore moves document counters to a dedicated backend, such
// as store/redis.
func WithSequenceStore(s sequence.Store) Option {
	return func(e *Engine) {
		e.seqStore = s
	}
}

// WithCensus replaces the document count used to seed a new day's counter.
func WithCensus(c sequence.Census) Option {
	return func(e *Engine) {
		e.census = c
	}
}

// WithTariffResolver replaces the tariff lookup used when pricing items.
func WithTariffResolver(r tariff.Resolver) Option {
	return func(e *Engine) {
		e.tariffs = r
	}
}

// WithLocker takes a distributed lease around every read-modify-write.
func WithLocker(l lock.Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCurrency sets the currency of bills created without one.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.currency = types.Zero(currency).Currency
	}
}

// WithDefaultRate sets the rate used when neither the caller nor the
// tariff master supplies one.
func WithDefaultRate(rate types.Money) Option {
	return func(e *Engine) {
		e.defaultRate = rate
	}
}

// WithMaxRetries sets how often a conflicting write is retried.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithoutMigrate makes Start leave the schema alone.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// WithSweepInterval sets the overdue sweep period. Zero disables the worker.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.sweepInterval = d
	}
}

// Sequences exposes the document number generator.
func (e *Engine) Sequences() *sequence.Generator { return e.seq }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start migrates the store unless WithoutMigrate was given and begins
// background workers.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start overdue sweep worker
	if e.sweepInterval > 0 {
		e.wg.Add(1)
		go e.sweepWorker()
	}

	e.logger.Info("revenue engine started",
		"currency", e.currency,
		"max_retries", e.maxRetries,
		"sweep_interval", e.sweepInterval,
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Overdue sweep
// ──────────────────────────────────────────────────

// SweepOverdue flags open anomalies and coding records past their due
// date. Repeated and concurrent sweeps flag each document once.
func (e *Engine) SweepOverdue(ctx context.Context) (anomalies, codings int64, err error) {
	ctx, span := e.startSpan(ctx, "SweepOverdue")
	defer func() { endSpan(span, err) }()

	now := e.now()
	anomalies, err = e.store.FlagOverdueAnomalies(ctx, now)
	if err != nil {
		return 0, 0, types.Infra("flag overdue anomalies", err)
	}
	codings, err = e.store.FlagOverdueCodings(ctx, now)
	if err != nil {
		return anomalies, 0, types.Infra("flag overdue codings", err)
	}
	if anomalies > 0 || codings > 0 {
		e.logger.Info("overdue documents flagged", "anomalies", anomalies, "codings", codings)
		e.plugins.EmitOverdueFlagged(ctx, anomalies, codings)
	}
	return anomalies, codings, nil
}

func (e *Engine) sweepWorker() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), e.sweepInterval)
			if _, _, err := e.SweepOverdue(ctx); err != nil {
				e.logger.Error("overdue sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// ──────────────────────────────────────────────────
// Versioned writes
// ──────────────────────────────────────────────────

// mutate runs load, change and a versioned save until the save wins or
// retries run out. change reports whether it modified the document; an
// unchanged document is not written. The lease, when a Locker is set, is
// held for the whole loop.
func mutate[T any](ctx context.Context, e *Engine, kind, docID string,
	load func(context.Context) (T, error),
	save func(context.Context, T) error,
	change func(T) (bool, error),
) (T, bool, error) {
	var zero T

	lease, err := e.locker.Obtain(ctx, lock.Key(kind, docID), e.lockTTL)
	if err != nil {
		return zero, false, fmt.Errorf("revenue: lock %s %s: %w", kind, docID, err)
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, lock.ErrNotHeld) {
			e.logger.Warn("lock release failed", "kind", kind, "id", docID, "error", rerr)
		}
	}()

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		doc, err := load(ctx)
		if err != nil {
			return zero, false, types.Infra("load "+kind, err)
		}
		changed, err := change(doc)
		if err != nil {
			return zero, false, err
		}
		if !changed {
			return doc, false, nil
		}
		err = save(ctx, doc)
		if err == nil {
			return doc, true, nil
		}
		if !errors.Is(err, types.ErrConcurrencyConflict) {
			return zero, false, types.Infra("save "+kind, err)
		}
		e.logger.Debug("version conflict, retrying", "kind", kind, "id", docID, "attempt", attempt+1)
	}
	return zero, false, fmt.Errorf("%w: %s %s after %d attempts", types.ErrConcurrencyConflict, kind, docID, e.maxRetries+1)
}

// ──────────────────────────────────────────────────
// Tracing
// ──────────────────────────────────────────────────

func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "revenue."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
