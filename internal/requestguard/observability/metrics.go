// Package observability provides in-memory metrics.
package observability

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics records guard measurements.
type Metrics interface {
	IncDecision(guard string, result string)
	ObserveLatency(op string, d time.Duration)
}

// InMemoryMetrics stores counters and latency summaries.
type InMemoryMetrics struct {
	counters  sync.Map
	latencies sync.Map
}

type latencySummary struct {
	count      atomic.Int64
	totalNanos atomic.Int64
	maxNanos   atomic.Int64
}

// NewInMemoryMetrics constructs an in-memory metrics recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncDecision counts a guard decision outcome.
func (m *InMemoryMetrics) IncDecision(guard string, result string) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("decision|%s|%s", guard, result)
	value, _ := m.counters.LoadOrStore(key, &atomic.Int64{})
	if counter, ok := value.(*atomic.Int64); ok {
		counter.Add(1)
	}
}

// ObserveLatency tracks latency measurements per operation.
func (m *InMemoryMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	value, _ := m.latencies.LoadOrStore("latency|"+op, &latencySummary{})
	entry, ok := value.(*latencySummary)
	if !ok {
		return
	}
	nanos := d.Nanoseconds()
	entry.count.Add(1)
	entry.totalNanos.Add(nanos)
	for {
		current := entry.maxNanos.Load()
		if nanos <= current {
			break
		}
		if entry.maxNanos.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// Snapshot returns a copy of all recorded values.
func (m *InMemoryMetrics) Snapshot() map[string]any {
	out := make(map[string]any)
	if m == nil {
		return out
	}
	m.counters.Range(func(key, value any) bool {
		if counter, ok := value.(*atomic.Int64); ok {
			out[key.(string)] = counter.Load()
		}
		return true
	})
	m.latencies.Range(func(key, value any) bool {
		entry, ok := value.(*latencySummary)
		if !ok {
			return true
		}
		count := entry.count.Load()
		summary := map[string]int64{
			"count":     count,
			"max_nanos": entry.maxNanos.Load(),
		}
		if count > 0 {
			summary["avg_nanos"] = entry.totalNanos.Load() / count
		}
		out[key.(string)] = summary
		return true
	})
	return out
}
