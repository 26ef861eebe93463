package engine

import (
	"log/slog"

	"github.com/hupe1980/hnswfield/filter"
)

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetricsObserver sets the metrics observer for the engine.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(e *Engine) {
		if observer != nil {
			e.metrics = observer
		}
	}
}

// WithFilterPolicy adjusts the policy of filtered graph searches.
func WithFilterPolicy(optFns ...func(p *filter.Policy)) Option {
	return func(e *Engine) {
		e.coordinator = filter.NewCoordinator(optFns...)
	}
}
