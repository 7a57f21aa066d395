// Package metrics provides metrics collection for the gateway.
package metrics

import (
	"time"
)

// Series emitted by the gateway.
const (
	QueriesTotal        = "dwgate_queries_total"
	RejectionsTotal     = "dwgate_rejections_total"
	QueryDuration       = "dwgate_query_duration_seconds"
	ConnectionOpens     = "dwgate_connection_opens_total"
	OpenInstances       = "dwgate_open_instances"
	ToolCallsTotal      = "dwgate_tool_calls_total"
	ToolCallDuration    = "dwgate_tool_call_duration_seconds"
	SchemaCacheLookups  = "dwgate_schema_cache_lookups_total"
	GRPCRequestsTotal   = "dwgate_grpc_requests_total"
	GRPCRequestDuration = "dwgate_grpc_request_duration_seconds"
)

// Collector defines the interface for collecting metrics.
type Collector interface {
	// IncrementCounter increments a counter metric.
	IncrementCounter(name string, labels ...string)

	// RecordHistogram records a value in a histogram metric.
	RecordHistogram(name string, value float64, labels ...string)

	// RecordGauge records a gauge metric value.
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer starts a timer for measuring duration.
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	// Stop stops the timer and returns the duration in seconds.
	Stop() float64
}

// NoOpCollector is a no-op implementation of Collector.
type NoOpCollector struct{}

// NewNoOpCollector creates a new no-op collector.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

// IncrementCounter does nothing.
func (n *NoOpCollector) IncrementCounter(name string, labels ...string) {}

// RecordHistogram does nothing.
func (n *NoOpCollector) RecordHistogram(name string, value float64, labels ...string) {}

// RecordGauge does nothing.
func (n *NoOpCollector) RecordGauge(name string, value float64, labels ...string) {}

// StartTimer returns a timer that only measures.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &noOpTimer{start: time.Now()}
}

type noOpTimer struct {
	start time.Time
}

// Stop returns the elapsed time in seconds.
func (t *noOpTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}
