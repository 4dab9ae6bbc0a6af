// Package metrics keeps in-process counters for the proxy. Snapshots are
// served on /metrics; a collector sidecar scrapes them when telemetry export
// is configured.
package metrics

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	requestsTotal     atomic.Int64
	statusClasses     [6]atomic.Int64
	authFailures      atomic.Int64
	tableRejections   atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	upstreamRequests  atomic.Int64
	upstreamFailures  atomic.Int64
	upstreamLatencyMS atomic.Int64
}

func New() *Metrics {
	return &Metrics{}
}

// All recorders tolerate a nil receiver so wiring metrics stays optional.

func (m *Metrics) RecordRequest(status int) {
	if m == nil {
		return
	}
	m.requestsTotal.Add(1)
	if class := status / 100; class >= 1 && class <= 5 {
		m.statusClasses[class].Add(1)
	}
}

func (m *Metrics) RecordAuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Add(1)
}

func (m *Metrics) RecordTableRejection() {
	if m == nil {
		return
	}
	m.tableRejections.Add(1)
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Add(1)
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Add(1)
}

// RecordUpstream tracks one upstream shape fetch. status 0 means the fetch
// never produced a response (network failure or cancellation).
func (m *Metrics) RecordUpstream(status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.upstreamRequests.Add(1)
	m.upstreamLatencyMS.Add(latency.Milliseconds())
	if status == 0 || status >= 500 {
		m.upstreamFailures.Add(1)
	}
}

func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	snapshot := map[string]int64{
		"requests_total":        m.requestsTotal.Load(),
		"auth_failures":         m.authFailures.Load(),
		"table_rejections":      m.tableRejections.Load(),
		"access_cache_hits":     m.cacheHits.Load(),
		"access_cache_misses":   m.cacheMisses.Load(),
		"upstream_requests":     m.upstreamRequests.Load(),
		"upstream_failures":     m.upstreamFailures.Load(),
		"upstream_latency_ms":   m.upstreamLatencyMS.Load(),
		"responses_2xx":         m.statusClasses[2].Load(),
		"responses_3xx":         m.statusClasses[3].Load(),
		"responses_4xx":         m.statusClasses[4].Load(),
		"responses_5xx":         m.statusClasses[5].Load(),
	}
	return snapshot
}
