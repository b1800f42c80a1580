package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
)

// managerMetrics tracks subscriber lifecycle and fanout activity.
type managerMetrics struct {
	subscribers      prometheus.Gauge
	connections      prometheus.Counter
	disconnections   prometheus.Counter
	fanouts          *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

func newManagerMetrics(registry *metric.Registry) (*managerMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &managerMetrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "iotstream",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of currently registered subscribers",
		}),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "broadcast",
			Name:      "connections_total",
			Help:      "Total subscriber registrations",
		}),
		disconnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "broadcast",
			Name:      "disconnections_total",
			Help:      "Total subscriber removals",
		}),
		fanouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "broadcast",
			Name:      "fanout_events_total",
			Help:      "Total events fanned out, by event type",
		}, []string{"event_type"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iotstream",
			Subsystem: "broadcast",
			Name:      "delivery_failures_total",
			Help:      "Total per-subscriber delivery failures, by reason",
		}, []string{"reason"}),
	}

	for name, collector := range map[string]prometheus.Collector{
		"subscribers":             m.subscribers,
		"connections_total":       m.connections,
		"disconnections_total":    m.disconnections,
		"fanout_events_total":     m.fanouts,
		"delivery_failures_total": m.deliveryFailures,
	} {
		if err := registry.Register("broadcast", name, collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *managerMetrics) recordRegister(count int) {
	m.connections.Inc()
	m.subscribers.Set(float64(count))
}

func (m *managerMetrics) recordUnregister(count int) {
	m.disconnections.Inc()
	m.subscribers.Set(float64(count))
}

func (m *managerMetrics) recordFanout(eventType string) {
	m.fanouts.WithLabelValues(eventType).Inc()
}

func (m *managerMetrics) recordDeliveryFailure(reason string) {
	m.deliveryFailures.WithLabelValues(reason).Inc()
}
