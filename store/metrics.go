package store

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
)

// latestMetrics tracks latest-value cache activity.
type latestMetrics struct {
	size   prometheus.Gauge
	puts   prometheus.Counter
	hits   prometheus.Counter
	misses prometheus.Counter
}

func newLatestMetrics(registry *metric.Registry) (*latestMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &latestMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iotstream",
			Subsystem: "latest_cache",
			Name:      "keys",
			Help:      "Number of distinct sensor keys held",
		}),
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "latest_cache",
			Name:      "puts_total",
			Help:      "Total cache writes",
		}),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "latest_cache",
			Name:      "hits_total",
			Help:      "Total cache read hits",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "latest_cache",
			Name:      "misses_total",
			Help:      "Total cache read misses",
		}),
	}

	for name, collector := range map[string]prometheus.Collector{
		"keys":         m.size,
		"puts_total":   m.puts,
		"hits_total":   m.hits,
		"misses_total": m.misses,
	} {
		if err := registry.Register("latest_cache", name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *latestMetrics) recordPut(size int) {
	m.puts.Inc()
	m.size.Set(float64(size))
}

func (m *latestMetrics) recordGet(hit bool) {
	if hit {
		m.hits.Inc()
	} else {
		m.misses.Inc()
	}
}

// historyMetrics tracks history ring activity.
type historyMetrics struct {
	size       prometheus.Gauge
	appends    prometheus.Counter
	overwrites prometheus.Counter
}

func newHistoryMetrics(registry *metric.Registry) (*historyMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &historyMetrics{
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iotstream",
			Subsystem: "history",
			Name:      "readings",
			Help:      "Current number of readings retained",
		}),
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "history",
			Name:      "appends_total",
			Help:      "Total readings appended",
		}),
		overwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "history",
			Name:      "overwrites_total",
			Help:      "Total oldest entries overwritten on overflow",
		}),
	}

	for name, collector := range map[string]prometheus.Collector{
		"readings":         m.size,
		"appends_total":    m.appends,
		"overwrites_total": m.overwrites,
	} {
		if err := registry.Register("history", name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *historyMetrics) recordAppend(size int, overwrote bool) {
	m.appends.Inc()
	m.size.Set(float64(size))
	if overwrote {
		m.overwrites.Inc()
	}
}
