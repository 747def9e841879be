// Package app provides application services that orchestrate domain logic.
package app

import "time"

// Metrics records tracker and catalog activity.
// *metrics.Collector satisfies it.
type Metrics interface {
	ObserveTrack(eventType, outcome string, credits int64, d time.Duration)
	ObserveWarning(level string)
	ObserveRefresh(catalog string, entries int, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTrack(string, string, int64, time.Duration) {}
func (nopMetrics) ObserveWarning(string)                             {}
func (nopMetrics) ObserveRefresh(string, int, error)                 {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
