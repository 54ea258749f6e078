package observability

import (
	"strconv"
	"sync"
)

// Metrics provides basic in-memory counters for outbound traffic. The
// refresh gate records every request outcome and every token refresh, which
// is what the single-flight tests observe.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	refreshCount map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		refreshCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for outbound requests.
func (m *Metrics) RecordRequest(method, path string, status int) {
	if m == nil {
		return
	}
	key := method + "|" + path + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordRefresh increments the refresh counter for the given outcome
// ("success" or "failure").
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshCount[outcome]++
}

// Refreshes returns the total number of refresh attempts recorded.
func (m *Metrics) Refreshes() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, n := range m.refreshCount {
		total += n
	}
	return total
}

// Requests returns the total number of requests recorded.
func (m *Metrics) Requests() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, n := range m.requestCount {
		total += n
	}
	return total
}
