// Package ingest bridges transport callbacks into the pipeline. Messages
// arrive on transport-owned goroutines and are handed off through a bounded
// queue to a single consumer goroutine, which serializes decode, classify,
// store and fanout for every reading. One consumer means the previous-value
// lookup and the store writes for a key can never interleave.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/classifier"
	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/store"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// DefaultQueueSize bounds the handoff queue between transport callbacks and
// the consumer goroutine.
const DefaultQueueSize = 1024

// Broadcaster delivers processed events to live subscribers.
type Broadcaster interface {
	Fanout(event telemetry.Event)
}

// message is one raw transport delivery awaiting processing.
type message struct {
	subject  string
	data     []byte
	received time.Time
}

// Bridge owns the handoff queue and the consumer goroutine.
type Bridge struct {
	cache       *store.LatestCache
	history     *store.History
	policies    classifier.PolicySet
	broadcaster Broadcaster

	queue chan message
	now   func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
	wg      sync.WaitGroup

	logger  *slog.Logger
	metrics *bridgeMetrics
}

// Option configures a Bridge.
type Option func(*Bridge) error

// WithQueueSize sets the handoff queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) error {
		if n < 1 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "WithQueueSize", "queue size must be positive")
		}
		b.queue = make(chan message, n)
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Bridge", "WithLogger", "logger must not be nil")
		}
		b.logger = logger
		return nil
	}
}

// NewBridge creates a bridge wiring the stores, the classification policies
// and the broadcaster together. A nil registry disables metrics.
func NewBridge(cache *store.LatestCache, history *store.History, policies classifier.PolicySet, broadcaster Broadcaster, registry *metric.Registry, opts ...Option) (*Bridge, error) {
	if cache == nil || history == nil || broadcaster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Bridge", "NewBridge", "cache, history and broadcaster are required")
	}

	b := &Bridge{
		cache:       cache,
		history:     history,
		policies:    policies,
		broadcaster: broadcaster,
		queue:       make(chan message, DefaultQueueSize),
		now:         time.Now,
		quit:        make(chan struct{}),
		logger:      slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	metrics, err := newBridgeMetrics(registry)
	if err != nil {
		return nil, err
	}
	b.metrics = metrics
	return b, nil
}

// Start launches the consumer goroutine.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.ErrAlreadyStarted
	}
	b.started = true

	b.wg.Add(1)
	go b.run()
	b.logger.Info("ingestion bridge started", "queue_capacity", cap(b.queue))
	return nil
}

// Stop shuts the consumer down. Messages already on the queue are drained
// before the consumer exits; new enqueues are dropped. Waits until the
// consumer is done or the context expires.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return errors.ErrNotStarted
	}
	if b.stopped {
		b.mu.Unlock()
		return errors.ErrAlreadyStopped
	}
	b.stopped = true
	close(b.quit)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("ingestion bridge stopped")
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Bridge", "Stop", "wait for consumer drain")
	}
}

// Enqueue hands a raw transport message to the consumer without blocking.
// Called from transport-owned goroutines; when the queue is full the message
// is dropped and counted rather than stalling the transport callback.
func (b *Bridge) Enqueue(subject string, data []byte) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.recordDrop("shutdown")
		}
		return
	}
	b.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case b.queue <- message{subject: subject, data: buf, received: b.now().UTC()}:
		if b.metrics != nil {
			b.metrics.recordEnqueue(len(b.queue))
		}
	default:
		b.logger.Warn("handoff queue full, dropping message", "subject", subject)
		if b.metrics != nil {
			b.metrics.recordDrop("queue_full")
		}
	}
}

// run is the single consumer loop. After quit it drains whatever is already
// queued, then exits.
func (b *Bridge) run() {
	defer b.wg.Done()

	for {
		select {
		case msg := <-b.queue:
			b.process(msg)
		case <-b.quit:
			for {
				select {
				case msg := <-b.queue:
					b.process(msg)
				default:
					return
				}
			}
		}
	}
}

// process handles one message end to end. A panic from processing one
// message is contained so a poison message cannot kill the pipeline.
func (b *Bridge) process(msg message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while processing message", "subject", msg.subject, "panic", r)
			if b.metrics != nil {
				b.metrics.recordProcessed("panic")
			}
		}
	}()

	if isSystemSubject(msg.subject) {
		b.processSystem(msg)
		return
	}

	reading, err := telemetry.Decode(msg.subject, msg.data, msg.received)
	if err != nil {
		b.logger.Warn("dropping undecodable message", "subject", msg.subject, "error", err)
		if b.metrics != nil {
			b.metrics.recordProcessed("decode_error")
		}
		return
	}

	var previous *telemetry.Reading
	if prev, ok := b.cache.Get(reading.Key()); ok {
		previous = &prev
	}

	reading.Anomaly, reading.AnomalyDetail = classifier.Classify(reading, previous, b.policies)

	b.cache.Put(reading)
	b.history.Append(reading)
	b.broadcaster.Fanout(telemetry.NewSensorDataEvent(reading))

	if reading.Anomaly {
		b.logger.Warn("anomalous reading",
			"sensor_type", reading.SensorType,
			"sensor_id", reading.SensorID,
			"value", reading.Value,
			"out_of_range", reading.AnomalyDetail.OutOfRange,
			"sudden_jump", reading.AnomalyDetail.SuddenJump)
		if b.metrics != nil {
			b.metrics.recordAnomaly(reading.SensorType)
		}
	}
	if b.metrics != nil {
		b.metrics.recordProcessed("ok")
	}
}

// systemWire is the loose shape of service status publications.
type systemWire struct {
	Service string `json:"service"`
	Status  string `json:"status"`
}

// processSystem forwards service status messages to subscribers without
// touching the stores.
func (b *Bridge) processSystem(msg message) {
	status := decodeSystemStatus(msg.data)
	service := status.Service
	if service == "" {
		if parts := strings.Split(msg.subject, "."); len(parts) >= 2 {
			service = parts[1]
		} else {
			service = "unknown"
		}
	}

	b.logger.Info("service status", "service", service, "status", status.Status, "subject", msg.subject)
	b.broadcaster.Fanout(telemetry.NewSystemStatusEvent(service, status.Status, msg.subject))
	if b.metrics != nil {
		b.metrics.recordProcessed("ok")
	}
}

// decodeSystemStatus accepts either the JSON shape or a bare string status,
// which is what lightweight edge publishers send.
func decodeSystemStatus(data []byte) systemWire {
	var s systemWire
	if err := json.Unmarshal(data, &s); err == nil && (s.Service != "" || s.Status != "") {
		return s
	}
	return systemWire{Status: strings.Trim(strings.TrimSpace(string(data)), `"`)}
}

func isSystemSubject(subject string) bool {
	return strings.HasPrefix(subject, "system.") || strings.HasPrefix(subject, "system/")
}
