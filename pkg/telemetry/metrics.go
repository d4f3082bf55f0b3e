package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for clocks and their jump handlers.
type Metrics struct {
	// Reads
	Reads        *prometheus.CounterVec
	ReadDuration *prometheus.HistogramVec

	// Jumps
	Jumps     *prometheus.CounterVec
	Callbacks *prometheus.CounterVec

	// Registrations
	HandlersArmed          *prometheus.GaugeVec
	Registrations          *prometheus.CounterVec
	DeregistrationFailures *prometheus.CounterVec

	// Clock state
	OverrideActive *prometheus.GaugeVec
	ClocksLive     *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// InitMetrics registers the clock metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func InitMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	// Reads are single backend calls, so the buckets are fine grained:
	// 50ns .. 1ms
	readBuckets := []float64{
		0.00000005, // 50ns
		0.0000001,  // 100ns
		0.0000002,  // 200ns
		0.0000005,  // 500ns
		0.000001,   // 1µs
		0.000002,   // 2µs
		0.000005,   // 5µs
		0.00001,    // 10µs
		0.0001,     // 100µs
		0.001,      // 1ms
	}

	factory := promauto.With(registry)

	m := &Metrics{
		Reads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jumpclock_reads_total",
				Help: "Total number of Now() reads by outcome",
			},
			[]string{"source", "status"},
		),

		ReadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jumpclock_read_duration_seconds",
				Help:    "Time taken by the backend to serve Now()",
				Buckets: readBuckets,
			},
			[]string{"source"},
		),

		Jumps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jumpclock_jumps_total",
				Help: "Jumps observed by handlers, counted once per jump and handler in the post phase",
			},
			[]string{"source", "change"},
		),

		Callbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jumpclock_callbacks_total",
				Help: "Jump callbacks invoked",
			},
			[]string{"source", "phase"},
		),

		HandlersArmed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jumpclock_handlers_armed",
				Help: "Jump handlers currently armed",
			},
			[]string{"source"},
		),

		Registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jumpclock_registrations_total",
				Help: "Jump handler registrations by outcome",
			},
			[]string{"source", "status"},
		),

		DeregistrationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jumpclock_deregistration_failures_total",
				Help: "Jump handler deregistrations the backend refused",
			},
			[]string{"source"},
		),

		OverrideActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jumpclock_override_active",
				Help: "1 if the last IsOverrideActive query saw an active override",
			},
			[]string{"source"},
		),

		ClocksLive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "jumpclock_clocks_live",
				Help: "Backends with at least one open clock handle",
			},
			[]string{"source"},
		),
	}

	return m
}

// Default returns the metrics registered with the default registry,
// registering them on first use.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = InitMetrics(nil)
	})
	return defaultMetrics
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Observe records the elapsed time in seconds to the given histogram.
func (t *Timer) Observe(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Elapsed returns the time elapsed since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// StatusLabel maps an error to the status label used across counters.
func StatusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
