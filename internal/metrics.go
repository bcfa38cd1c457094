package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	activeConns   atomic.Int64
	eventsTotal   atomic.Uint64
	delivered     atomic.Uint64
	storeFailures atomic.Uint64
	throttled     atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncConn() {
	m.activeConns.Add(1)
}

func (m *Metrics) DecConn() {
	m.activeConns.Add(-1)
}

func (m *Metrics) IncEvent() {
	m.eventsTotal.Add(1)
}

func (m *Metrics) IncDelivered() {
	m.delivered.Add(1)
}

func (m *Metrics) IncStoreFailure() {
	m.storeFailures.Add(1)
}

func (m *Metrics) IncThrottled() {
	m.throttled.Add(1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"active_connections":   m.activeConns.Load(),
		"events_total":         m.eventsTotal.Load(),
		"deliveries_total":     m.delivered.Load(),
		"store_failures_total": m.storeFailures.Load(),
		"throttled_total":      m.throttled.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
