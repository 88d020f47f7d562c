package annbind

import (
	"log/slog"

	"github.com/hupe1980/annbind/capi"
	"github.com/hupe1980/annbind/internal/engine"
)

type options struct {
	table            *capi.Table
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures constructor and package-level call behavior.
type Option func(*options)

// WithTable selects the engine function table to bind against. The
// default is the bundled in-process engine; alternative builds provide
// their own table around a native library.
//
// Handles are only valid against the table that minted them, so the
// table of an index is fixed at construction.
func WithTable(t *capi.Table) Option {
	return func(o *options) {
		if t != nil {
			o.table = t
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &annbind.BasicMetricsCollector{}
//	idx, _ := annbind.NewIndex(annbind.DefaultConfig(128), annbind.WithMetricsCollector(metrics))
//	// ... use idx ...
//	stats := metrics.GetStats()
//	fmt.Printf("Adds: %d, Avg latency: %dns\n", stats.AddCount, stats.AddAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := annbind.NewJSONLogger(slog.LevelInfo)
//	idx, _ := annbind.NewIndex(annbind.DefaultConfig(128), annbind.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		table:            engine.Table(),
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
