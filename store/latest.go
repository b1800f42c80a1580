// Package store holds the in-memory state of the ingestion pipeline: the
// latest-value cache and the bounded history ring. Both are mutated only by
// the ingestion bridge; readers take point-in-time snapshots.
package store

import (
	"sync"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// LatestCache keeps the most recent reading per (sensor_type, sensor_id).
// Entries are overwritten on every new reading for the same key and never
// deleted except on process restart.
type LatestCache struct {
	mu      sync.RWMutex
	items   map[telemetry.Key]telemetry.Reading
	metrics *latestMetrics
}

// NewLatestCache creates an empty cache. A nil registry disables metrics.
func NewLatestCache(registry *metric.Registry) (*LatestCache, error) {
	metrics, err := newLatestMetrics(registry)
	if err != nil {
		return nil, err
	}
	return &LatestCache{
		items:   make(map[telemetry.Key]telemetry.Reading),
		metrics: metrics,
	}, nil
}

// Put stores the reading as the latest for its key, overwriting
// unconditionally. This is the only mutator.
func (c *LatestCache) Put(reading telemetry.Reading) {
	c.mu.Lock()
	c.items[reading.Key()] = reading
	size := len(c.items)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.recordPut(size)
	}
}

// Get returns the latest reading for a key, if any.
func (c *LatestCache) Get(key telemetry.Key) (telemetry.Reading, bool) {
	c.mu.RLock()
	reading, ok := c.items[key]
	c.mu.RUnlock()

	if c.metrics != nil {
		c.metrics.recordGet(ok)
	}
	return reading, ok
}

// Snapshot returns a point-in-time copy of all entries keyed by the
// canonical "type/id" string. Callers never observe post-snapshot mutation.
func (c *LatestCache) Snapshot() map[string]telemetry.Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := make(map[string]telemetry.Reading, len(c.items))
	for key, reading := range c.items {
		snapshot[key.String()] = reading
	}
	return snapshot
}

// Len returns the number of distinct keys held.
func (c *LatestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
