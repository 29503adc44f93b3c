package observability

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var _ MetricFactory = (*PrometheusFactory)(nil)

// PrometheusFactory creates Prometheus collectors and registers them on a
// Registerer. Dotted metric names become underscored; counters get the
// conventional _total suffix.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64
}

// PrometheusOption configures a PrometheusFactory.
type PrometheusOption func(*PrometheusFactory)

// WithBuckets sets histogram buckets. Amount histograms default to
// exponential buckets from 100 to roughly 10^9 minor units.
func WithBuckets(b []float64) PrometheusOption {
	return func(f *PrometheusFactory) { f.buckets = b }
}

// NewPrometheusFactory returns a factory registering on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func NewPrometheusFactory(reg prometheus.Registerer, opts ...PrometheusOption) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := &PrometheusFactory{
		reg:     reg,
		buckets: prometheus.ExponentialBuckets(100, 10, 8),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + " events.",
	})
	return register(f.reg, c)
}

func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: f.buckets,
	})
	return register(f.reg, h)
}

// register returns the already registered collector when one with the same
// descriptor exists, so two engines in one process share metrics.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
