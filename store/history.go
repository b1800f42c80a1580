package store

import (
	"math"
	"sync"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// DefaultHistoryCapacity bounds the history ring when no capacity is
// configured.
const DefaultHistoryCapacity = 10000

// History is a strict fixed-capacity ring buffer of readings in insertion
// order. On overflow the single oldest entry is overwritten, so size never
// exceeds capacity and the most-recent `capacity` readings stay queryable.
type History struct {
	mu       sync.RWMutex
	items    []telemetry.Reading
	capacity int
	size     int
	head     int // next write position
	metrics  *historyMetrics
}

// NewHistory creates a history ring. Capacity values below 1 fall back to
// DefaultHistoryCapacity. A nil registry disables metrics.
func NewHistory(capacity int, registry *metric.Registry) (*History, error) {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}

	metrics, err := newHistoryMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &History{
		items:    make([]telemetry.Reading, capacity),
		capacity: capacity,
		metrics:  metrics,
	}, nil
}

// Append adds a reading, overwriting the oldest entry when full. O(1).
func (h *History) Append(reading telemetry.Reading) {
	h.mu.Lock()
	overwrote := h.size == h.capacity
	h.items[h.head] = reading
	h.head = (h.head + 1) % h.capacity
	if !overwrote {
		h.size++
	}
	size := h.size
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.recordAppend(size, overwrote)
	}
}

// Filter narrows a history query. Zero values mean "no constraint".
type Filter struct {
	SensorID      string
	SensorType    string
	AnomaliesOnly bool
	Since         time.Time
	Until         time.Time
}

func (f Filter) matches(r telemetry.Reading) bool {
	if f.SensorID != "" && r.SensorID != f.SensorID {
		return false
	}
	if f.SensorType != "" && r.SensorType != f.SensorType {
		return false
	}
	if f.AnomaliesOnly && !r.Anomaly {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Query returns matching readings newest-first. The limit truncates after
// filtering, never before, so "N most recent matching" stays correct.
// A limit < 1 means unlimited. Returns an empty slice for no matches.
func (h *History) Query(filter Filter, limit int) []telemetry.Reading {
	h.mu.RLock()
	defer h.mu.RUnlock()

	results := make([]telemetry.Reading, 0)
	for i := 0; i < h.size; i++ {
		idx := (h.head - 1 - i + h.capacity) % h.capacity
		r := h.items[idx]
		if !filter.matches(r) {
			continue
		}
		results = append(results, r)
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results
}

// TypeStats aggregates counts for one sensor type.
type TypeStats struct {
	Count     int `json:"count"`
	Anomalies int `json:"anomalies"`
}

// Stats aggregates history counts over a time window.
type Stats struct {
	WindowStart   time.Time            `json:"window_start"`
	WindowEnd     time.Time            `json:"window_end"`
	TotalReadings int                  `json:"total_readings"`
	AnomalyCount  int                  `json:"anomaly_count"`
	AnomalyRate   float64              `json:"anomaly_rate"`
	ByType        map[string]TypeStats `json:"by_sensor_type"`
	ByOrigin      map[string]int       `json:"by_origin"`
	ByProtocol    map[string]int       `json:"by_protocol"`
}

// Stats computes aggregate counts for readings within the window ending at
// now. Read-only; never mutates the ring.
func (h *History) Stats(window time.Duration, now time.Time) Stats {
	start := now.Add(-window)
	readings := h.Query(Filter{Since: start, Until: now}, 0)

	stats := Stats{
		WindowStart: start,
		WindowEnd:   now,
		ByType:      make(map[string]TypeStats),
		ByOrigin:    make(map[string]int),
		ByProtocol:  make(map[string]int),
	}

	for _, r := range readings {
		stats.TotalReadings++
		ts := stats.ByType[r.SensorType]
		ts.Count++
		if r.Anomaly {
			stats.AnomalyCount++
			ts.Anomalies++
		}
		stats.ByType[r.SensorType] = ts
		stats.ByOrigin[r.Origin]++
		stats.ByProtocol[r.SourceProtocol]++
	}

	if stats.TotalReadings > 0 {
		rate := float64(stats.AnomalyCount) / float64(stats.TotalReadings) * 100
		stats.AnomalyRate = math.Round(rate*100) / 100
	}

	return stats
}

// Len returns the current number of stored readings.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Capacity returns the fixed maximum number of readings.
func (h *History) Capacity() int {
	return h.capacity
}
