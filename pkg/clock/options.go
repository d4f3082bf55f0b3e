package clock

import (
	"log/slog"

	"github.com/BYTE-6D65/jumpclock/pkg/event"
	"github.com/BYTE-6D65/jumpclock/pkg/telemetry"
	"github.com/BYTE-6D65/jumpclock/pkg/timesource"
)

// Option configures a Clock.
type Option func(*options)

type options struct {
	factory timesource.Factory
	logger  *slog.Logger
	metrics *telemetry.Metrics
	errBus  *event.ErrorBus
}

func defaultOptions() options {
	return options{
		factory: timesource.DefaultFactory,
		logger:  slog.Default(),
	}
}

// WithBackend builds the backend with factory instead of timesource.New.
func WithBackend(factory timesource.Factory) Option {
	return func(o *options) {
		if factory != nil {
			o.factory = factory
		}
	}
}

// WithSource wraps an existing, uninitialized Source. The caller keeps the
// pointer to drive overrides.
func WithSource(src *timesource.Source) Option {
	if src == nil {
		return func(*options) {}
	}
	return WithBackend(func() timesource.Backend { return src })
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records reads, jumps, and registrations.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithErrorBus publishes diagnostics in addition to logging them.
func WithErrorBus(bus *event.ErrorBus) Option {
	return func(o *options) {
		o.errBus = bus
	}
}
