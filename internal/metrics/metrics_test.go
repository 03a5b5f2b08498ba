package metrics

import (
	"net/http"
	"sync"
	"testing"
)

func TestMetrics_ObserveResponse_FileServed(t *testing.T) {
	m := NewMetrics()
	m.ObserveResponse(http.MethodGet, http.StatusOK, 512)

	snapshot := m.GetSnapshot()
	if snapshot["files_served"] != 1 {
		t.Errorf("expected files_served 1, got %d", snapshot["files_served"])
	}
	if snapshot["bytes_sent"] != 512 {
		t.Errorf("expected bytes_sent 512, got %d", snapshot["bytes_sent"])
	}
}

func TestMetrics_ObserveResponse_NotFound(t *testing.T) {
	m := NewMetrics()
	m.ObserveResponse(http.MethodGet, http.StatusNotFound, 19)

	snapshot := m.GetSnapshot()
	if snapshot["not_found"] != 1 {
		t.Errorf("expected not_found 1, got %d", snapshot["not_found"])
	}
	if snapshot["files_served"] != 0 {
		t.Errorf("expected files_served 0, got %d", snapshot["files_served"])
	}
}

func TestMetrics_ObserveResponse_Preflight(t *testing.T) {
	m := NewMetrics()
	m.ObserveResponse(http.MethodOptions, http.StatusOK, 0)

	snapshot := m.GetSnapshot()
	if snapshot["preflights"] != 1 {
		t.Errorf("expected preflights 1, got %d", snapshot["preflights"])
	}
	if snapshot["files_served"] != 0 {
		t.Errorf("expected preflight not to count as a served file, got %d", snapshot["files_served"])
	}
}

func TestMetrics_ObserveResponse_RejectedMethod(t *testing.T) {
	m := NewMetrics()
	m.ObserveResponse(http.MethodPost, http.StatusMethodNotAllowed, 0)

	snapshot := m.GetSnapshot()
	if snapshot["rejected_methods"] != 1 {
		t.Errorf("expected rejected_methods 1, got %d", snapshot["rejected_methods"])
	}
}

func TestMetrics_IncrementDroppedRecords(t *testing.T) {
	m := NewMetrics()
	m.IncrementDroppedRecords()

	snapshot := m.GetSnapshot()
	if snapshot["dropped_records"] != 1 {
		t.Errorf("expected dropped_records 1, got %d", snapshot["dropped_records"])
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ObserveResponse(http.MethodGet, http.StatusOK, 10)
			m.ObserveResponse(http.MethodGet, http.StatusNotFound, 0)
		}()
	}

	wg.Wait()

	snapshot := m.GetSnapshot()
	if snapshot["total_requests"] != 200 {
		t.Errorf("expected total_requests 200, got %d", snapshot["total_requests"])
	}
	if snapshot["bytes_sent"] != 1000 {
		t.Errorf("expected bytes_sent 1000, got %d", snapshot["bytes_sent"])
	}
}

func TestMetrics_GetSnapshot(t *testing.T) {
	m := NewMetrics()
	m.ObserveResponse(http.MethodGet, http.StatusOK, 1)
	m.ObserveResponse(http.MethodHead, http.StatusOK, 0)
	m.ObserveResponse(http.MethodGet, http.StatusMovedPermanently, 0)
	m.ObserveResponse(http.MethodGet, http.StatusNotFound, 0)
	m.ObserveResponse(http.MethodOptions, http.StatusOK, 0)

	snapshot := m.GetSnapshot()

	expected := map[string]int64{
		"total_requests":   5,
		"files_served":     3,
		"not_found":        1,
		"preflights":       1,
		"rejected_methods": 0,
		"dropped_records":  0,
		"bytes_sent":       1,
	}

	for key, expectedValue := range expected {
		if snapshot[key] != expectedValue {
			t.Errorf("expected %s %d, got %d", key, expectedValue, snapshot[key])
		}
	}
}
