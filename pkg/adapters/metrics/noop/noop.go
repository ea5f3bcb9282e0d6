// Package noop provides a metrics collector that records nothing, for
// tests and for deployments without a metrics backend.
package noop

import "time"

// Collector implements ports.MetricsCollector as a no-op.
type Collector struct{}

// NewCollector creates a new no-op metrics collector.
func NewCollector() *Collector { return &Collector{} }

func (*Collector) RecordRunStarted()                                         {}
func (*Collector) RecordRunCompleted(verdict string, duration time.Duration) {}
func (*Collector) RecordStageExecuted(kind, status string, duration time.Duration) {
}
func (*Collector) RecordCacheHit(kind string)  {}
func (*Collector) RecordCacheMiss(kind string) {}
func (*Collector) RecordDeployment(state string, rolledBack bool, duration time.Duration) {
}
func (*Collector) SetActivePipelines(count int) {}
