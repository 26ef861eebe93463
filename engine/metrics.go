package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnInsert is called after every insert attempt.
	OnInsert(field string, duration time.Duration, err error)

	// OnSearch is called after every search attempt. status and path are
	// empty when err is not nil.
	OnSearch(field string, k int, path, status string, duration time.Duration, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnInsert(field string, duration time.Duration, err error) {}
func (NoopMetricsObserver) OnSearch(field string, k int, path, status string, duration time.Duration, err error) {
}
