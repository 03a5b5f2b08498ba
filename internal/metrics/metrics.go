package metrics

import (
	"net/http"
	"sync"
)

// Metrics tracks request counters for the running server
type Metrics struct {
	mu sync.RWMutex

	totalRequests   int64
	filesServed     int64
	notFound        int64
	preflights      int64
	rejectedMethods int64
	droppedRecords  int64
	bytesSent       int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// ObserveResponse classifies a finished response by method and status
func (m *Metrics) ObserveResponse(method string, status int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	m.bytesSent += bytes

	switch {
	case method == http.MethodOptions:
		m.preflights++
	case status == http.StatusNotFound:
		m.notFound++
	case status == http.StatusMethodNotAllowed:
		m.rejectedMethods++
	case status >= 200 && status < 400:
		m.filesServed++
	}
}

// IncrementDroppedRecords counts access records discarded because the writer fell behind
func (m *Metrics) IncrementDroppedRecords() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.droppedRecords++
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"total_requests":   m.totalRequests,
		"files_served":     m.filesServed,
		"not_found":        m.notFound,
		"preflights":       m.preflights,
		"rejected_methods": m.rejectedMethods,
		"dropped_records":  m.droppedRecords,
		"bytes_sent":       m.bytesSent,
	}
}
