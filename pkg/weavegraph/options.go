package weavegraph

import (
	"log/slog"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/checkpoint"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/config"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/event"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/observability"
)

// options collects everything a Runner or App can be configured with.
type options struct {
	name    string
	cfg     config.RuntimeConfig
	store   checkpoint.Store
	bus     *event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

func defaultOptions() options {
	return options{
		name:    "workflow",
		cfg:     config.Default(),
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.cfg = o.cfg.Normalized()
	return o
}

// Option configures a Runner or App.
type Option func(*options)

// WithName labels the workflow in spans and logs.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConfig replaces the runtime configuration. Zero fields fall back to
// defaults via Normalized.
func WithConfig(cfg config.RuntimeConfig) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithCheckpointer attaches a checkpoint store. Without one, sessions run
// purely in memory and cannot resume.
func WithCheckpointer(store checkpoint.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithBus supplies an externally owned event bus. The caller keeps
// responsibility for closing it.
func WithBus(bus *event.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Pass
// observability.NewMetricsRecorder() to enable OTel metrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSpanManager sets the tracing span manager. Pass
// observability.NewSpanManager() to enable OTel tracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *options) {
		if sm != nil {
			o.spans = sm
		}
	}
}

// WithConcurrencyLimit overrides how many frontier nodes execute at once.
func WithConcurrencyLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cfg.ConcurrencyLimit = n
		}
	}
}

// WithFailMode overrides what a fatal node error does to the session.
func WithFailMode(mode config.FailMode) Option {
	return func(o *options) {
		o.cfg.FailMode = mode
	}
}
