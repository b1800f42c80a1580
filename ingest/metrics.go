package ingest

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
)

// bridgeMetrics tracks handoff queue health and processing outcomes.
type bridgeMetrics struct {
	queueDepth prometheus.Gauge
	enqueued   prometheus.Counter
	dropped    *prometheus.CounterVec
	processed  *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
}

func newBridgeMetrics(registry *metric.Registry) (*bridgeMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &bridgeMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iotstream",
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Messages waiting on the handoff queue",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "ingest",
			Name:      "enqueued_total",
			Help:      "Total messages accepted onto the handoff queue",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "ingest",
			Name:      "dropped_total",
			Help:      "Total messages dropped before processing, by reason",
		}, []string{"reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "ingest",
			Name:      "processed_total",
			Help:      "Total messages processed by the consumer, by result",
		}, []string{"result"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "ingest",
			Name:      "anomalies_total",
			Help:      "Total readings flagged anomalous, by sensor type",
		}, []string{"sensor_type"}),
	}

	for name, collector := range map[string]prometheus.Collector{
		"queue_depth":     m.queueDepth,
		"enqueued_total":  m.enqueued,
		"dropped_total":   m.dropped,
		"processed_total": m.processed,
		"anomalies_total": m.anomalies,
	} {
		if err := registry.Register("ingest", name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *bridgeMetrics) recordEnqueue(depth int) {
	m.enqueued.Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *bridgeMetrics) recordDrop(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *bridgeMetrics) recordProcessed(result string) {
	m.processed.WithLabelValues(result).Inc()
}

func (m *bridgeMetrics) recordAnomaly(sensorType string) {
	m.anomalies.WithLabelValues(sensorType).Inc()
}
