package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates counters for RPC operations.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64

	methodMetrics map[string]*MethodMetrics
}

// MethodMetrics represents counters for a single RPC method.
type MethodMetrics struct {
	callCount     atomic.Int64
	errorCount    atomic.Int64
	totalDuration atomic.Int64 // milliseconds
}

// MethodSnapshot is a point-in-time copy of a method's counters.
type MethodSnapshot struct {
	Calls      int64 `json:"calls"`
	Errors     int64 `json:"errors"`
	DurationMs int64 `json:"durationMs"`
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		methodMetrics: make(map[string]*MethodMetrics),
	}
}

// Global metrics instance.
var globalMetrics = NewMetrics()

// GlobalMetrics returns the global metrics instance.
func GlobalMetrics() *Metrics {
	return globalMetrics
}

// RecordRequest records a request for the method.
func (m *Metrics) RecordRequest(method string) {
	m.requestTotal.Add(1)
	m.getMethodMetrics(method).callCount.Add(1)
}

// RecordFailure records a failed request for the method.
func (m *Metrics) RecordFailure(method string) {
	m.requestFailed.Add(1)
	m.getMethodMetrics(method).errorCount.Add(1)
}

// RecordDuration records a request duration for the method.
func (m *Metrics) RecordDuration(method string, duration time.Duration) {
	m.getMethodMetrics(method).totalDuration.Add(duration.Milliseconds())
}

// GetRequestTotal returns the total number of requests.
func (m *Metrics) GetRequestTotal() int64 {
	return m.requestTotal.Load()
}

// GetRequestFailed returns the total number of failed requests.
func (m *Metrics) GetRequestFailed() int64 {
	return m.requestFailed.Load()
}

// Snapshot returns a copy of all per-method counters.
func (m *Metrics) Snapshot() map[string]MethodSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]MethodSnapshot, len(m.methodMetrics))
	for method, mm := range m.methodMetrics {
		snapshot[method] = MethodSnapshot{
			Calls:      mm.callCount.Load(),
			Errors:     mm.errorCount.Load(),
			DurationMs: mm.totalDuration.Load(),
		}
	}
	return snapshot
}

func (m *Metrics) getMethodMetrics(method string) *MethodMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	mm, ok := m.methodMetrics[method]
	if !ok {
		mm = &MethodMetrics{}
		m.methodMetrics[method] = mm
	}
	return mm
}
