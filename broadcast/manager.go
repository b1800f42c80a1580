// Package broadcast fans normalized telemetry events out to live
// subscribers with per-connection failure isolation: one slow or dead
// client is removed without blocking or dropping delivery for the others.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// DefaultSendBuffer is the per-subscriber outbound queue depth.
const DefaultSendBuffer = 64

// SnapshotFunc supplies the current latest-value cache snapshot for
// client-originated snapshot requests.
type SnapshotFunc func() map[string]telemetry.Reading

// Manager owns the set of live subscriber connections.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	sendBuffer int
	snapshotFn SnapshotFunc
	logger     *slog.Logger
	metrics    *managerMetrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithSendBuffer sets the per-subscriber outbound queue depth.
func WithSendBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sendBuffer = n
		}
	}
}

// WithSnapshotFunc wires the latest-value cache snapshot used to answer
// client snapshot requests.
func WithSnapshotFunc(fn SnapshotFunc) Option {
	return func(m *Manager) {
		m.snapshotFn = fn
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a broadcast manager. A nil registry disables metrics.
func NewManager(registry *metric.Registry, opts ...Option) (*Manager, error) {
	m := &Manager{
		subscribers: make(map[string]*Subscriber),
		sendBuffer:  DefaultSendBuffer,
		logger:      slog.Default().With("component", "broadcast"),
	}
	for _, opt := range opts {
		opt(m)
	}

	metrics, err := newManagerMetrics(registry)
	if err != nil {
		return nil, err
	}
	m.metrics = metrics
	return m, nil
}

// NewSubscriber creates a subscriber for a connection using the manager's
// configured buffer depth. The subscriber starts in Connecting and enters
// the live set only via Register.
func (m *Manager) NewSubscriber(conn Conn) *Subscriber {
	return NewSubscriber(conn, m.sendBuffer)
}

// Register completes the handshake: the subscriber transitions to Open, is
// added to the live set, and its writer goroutine starts. Safe to call
// concurrently with Fanout. A subscriber that is not in Connecting (already
// registered or already closed) is rejected and never enters the set.
func (m *Manager) Register(sub *Subscriber) error {
	if !sub.open() {
		return fmt.Errorf("subscriber %s is %s, not connecting", sub.id, sub.State())
	}

	m.mu.Lock()
	m.subscribers[sub.id] = sub
	count := len(m.subscribers)
	m.mu.Unlock()

	go sub.writePump(func(id string, err error) {
		m.logger.Warn("subscriber write failed, removing", "subscriber_id", id, "error", err)
		if m.metrics != nil {
			m.metrics.recordDeliveryFailure("write_error")
		}
		m.Unregister(id)
	})

	m.logger.Info("subscriber registered", "subscriber_id", sub.id, "total", count)
	if m.metrics != nil {
		m.metrics.recordRegister(count)
	}
	return nil
}

// Unregister removes a subscriber from the live set and closes it.
// Idempotent: removing an absent id is a no-op.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	sub, exists := m.subscribers[id]
	if exists {
		delete(m.subscribers, id)
	}
	count := len(m.subscribers)
	m.mu.Unlock()

	if !exists {
		return
	}

	sub.close()
	m.logger.Info("subscriber unregistered", "subscriber_id", id, "total", count)
	if m.metrics != nil {
		m.metrics.recordUnregister(count)
	}
}

// Count returns the number of live subscribers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers)
}

// Fanout delivers the event to every currently registered subscriber.
// The subscriber set is snapshotted under the read lock; enqueueing is
// non-blocking, so no lock is ever held across a send. A failed enqueue
// (slow or closed subscriber) is logged and unregisters that subscriber
// without affecting delivery to the rest. Per-subscriber ordering follows
// Fanout invocation order; no ordering is guaranteed across subscribers.
func (m *Manager) Fanout(event telemetry.Event) {
	data, err := event.Marshal()
	if err != nil {
		m.logger.Error("failed to marshal event, dropping", "event_type", event.Type, "error", err)
		if m.metrics != nil {
			m.metrics.recordDeliveryFailure("marshal_error")
		}
		return
	}

	m.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		snapshot = append(snapshot, sub)
	}
	m.mu.RUnlock()

	for _, sub := range snapshot {
		if err := sub.enqueue(data); err != nil {
			m.logger.Warn("subscriber delivery failed, removing",
				"subscriber_id", sub.id, "error", err)
			if m.metrics != nil {
				m.metrics.recordDeliveryFailure("enqueue_full")
			}
			m.Unregister(sub.id)
		}
	}

	if m.metrics != nil {
		m.metrics.recordFanout(event.Type)
	}
}

// Send delivers an event to one subscriber over its ordered channel. Used
// for request/response protocol messages (pong, snapshot, error acks).
func (m *Manager) Send(sub *Subscriber, event telemetry.Event) {
	data, err := event.Marshal()
	if err != nil {
		m.logger.Error("failed to marshal event", "event_type", event.Type, "error", err)
		return
	}
	if err := sub.enqueue(data); err != nil {
		m.logger.Warn("subscriber send failed, removing", "subscriber_id", sub.id, "error", err)
		m.Unregister(sub.id)
	}
}

// HandleClientMessage processes a client-originated protocol message as a
// synchronous request/response over the same channel. Unrecognized types
// are acknowledged with an error event, never a connection close.
func (m *Manager) HandleClientMessage(sub *Subscriber, data []byte) {
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		m.Send(sub, telemetry.NewErrorEvent("invalid JSON format"))
		return
	}

	switch msg.Type {
	case "ping":
		m.Send(sub, telemetry.Event{Type: telemetry.EventPong, Data: map[string]any{}, Timestamp: time.Now().UTC()})
	case "snapshot":
		var snapshot map[string]telemetry.Reading
		if m.snapshotFn != nil {
			snapshot = m.snapshotFn()
		}
		m.Send(sub, telemetry.Event{Type: telemetry.EventSnapshot, Data: snapshot, Timestamp: time.Now().UTC()})
	default:
		m.Send(sub, telemetry.NewErrorEvent(fmt.Sprintf("unsupported message type: %q", msg.Type)))
	}
}

// Close unregisters and closes every subscriber.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subscribers
	m.subscribers = make(map[string]*Subscriber)
	m.mu.Unlock()

	remaining := len(subs)
	for _, sub := range subs {
		sub.close()
		remaining--
		if m.metrics != nil {
			m.metrics.recordUnregister(remaining)
		}
	}
}
