// Package simulator generates synthetic sensor traffic for development and
// load testing. Each simulated sensor random-walks inside its normal band
// and occasionally emits a deliberate anomaly so the classification path
// gets exercised end to end.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

// Publisher is the transport the simulator publishes through.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Sensor describes one simulated device.
type Sensor struct {
	Type          string
	ID            string
	Unit          string
	Min           float64
	Max           float64
	Step          float64
	AnomalyChance float64
}

// DefaultSensors mirrors a small edge deployment: two temperature probes,
// one humidity probe and one luminosity probe.
func DefaultSensors() []Sensor {
	return []Sensor{
		{Type: "temperature", ID: "esp32-sim-1", Unit: "C", Min: 15, Max: 35, Step: 1.5, AnomalyChance: 0.05},
		{Type: "temperature", ID: "esp32-sim-2", Unit: "C", Min: 15, Max: 35, Step: 1.5, AnomalyChance: 0.05},
		{Type: "humidity", ID: "esp32-sim-3", Unit: "%", Min: 20, Max: 90, Step: 4, AnomalyChance: 0.05},
		{Type: "luminosity", ID: "esp32-sim-4", Unit: "lux", Min: 0, Max: 1000, Step: 60, AnomalyChance: 0.05},
	}
}

// Simulator drives a set of sensors on a fixed interval.
type Simulator struct {
	publisher Publisher
	sensors   []Sensor
	interval  time.Duration
	rng       *rand.Rand
	logger    *slog.Logger
	values    map[string]float64
}

// Option configures a Simulator.
type Option func(*Simulator) error

// WithInterval sets the publish interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Simulator) error {
		if interval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Simulator", "WithInterval", "interval must be positive")
		}
		s.interval = interval
		return nil
	}
}

// WithSeed makes the walk deterministic.
func WithSeed(seed int64) Option {
	return func(s *Simulator) error {
		s.rng = rand.New(rand.NewSource(seed))
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Simulator) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Simulator", "WithLogger", "logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// New creates a simulator for the given sensors.
func New(publisher Publisher, sensors []Sensor, opts ...Option) (*Simulator, error) {
	if publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Simulator", "New", "publisher is required")
	}
	if len(sensors) == 0 {
		sensors = DefaultSensors()
	}

	s := &Simulator{
		publisher: publisher,
		sensors:   sensors,
		interval:  2 * time.Second,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    slog.Default().With("component", "simulator"),
		values:    make(map[string]float64),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	for _, sensor := range s.sensors {
		mid := (sensor.Min + sensor.Max) / 2
		s.values[sensor.key()] = mid
	}
	return s, nil
}

func (sn Sensor) key() string {
	return sn.Type + "/" + sn.ID
}

// Subject returns the transport subject this sensor publishes on.
func (sn Sensor) Subject() string {
	return fmt.Sprintf("sensors.%s.%s", sn.Type, sn.ID)
}

// next advances the sensor's random walk. An anomaly roll produces either a
// spike well outside the normal band or a jump large enough to trip the
// jump threshold.
func (s *Simulator) next(sensor Sensor) (float64, bool) {
	prev := s.values[sensor.key()]

	if s.rng.Float64() < sensor.AnomalyChance {
		span := sensor.Max - sensor.Min
		var value float64
		if s.rng.Float64() < 0.5 {
			value = sensor.Max + span*0.3 + s.rng.Float64()*span*0.2
		} else {
			value = sensor.Min - span*0.3 - s.rng.Float64()*span*0.2
		}
		s.values[sensor.key()] = value
		return value, true
	}

	value := prev + (s.rng.Float64()*2-1)*sensor.Step
	if value > sensor.Max {
		value = sensor.Max
	}
	if value < sensor.Min {
		value = sensor.Min
	}
	s.values[sensor.key()] = value
	return value, false
}

// payload is the wire shape the ingestion side decodes.
type payload struct {
	TS             string  `json:"ts"`
	Type           string  `json:"type"`
	SensorID       string  `json:"sensor_id"`
	Value          float64 `json:"value"`
	Unit           string  `json:"unit"`
	Origin         string  `json:"origin"`
	SourceProtocol string  `json:"source_protocol"`
}

// Tick publishes one reading per sensor.
func (s *Simulator) Tick(ctx context.Context) error {
	now := time.Now().UTC()
	for _, sensor := range s.sensors {
		value, intended := s.next(sensor)

		data, err := json.Marshal(payload{
			TS:             now.Format(time.RFC3339Nano),
			Type:           sensor.Type,
			SensorID:       sensor.ID,
			Value:          value,
			Unit:           sensor.Unit,
			Origin:         sensor.ID,
			SourceProtocol: "nats",
		})
		if err != nil {
			return errors.WrapFatal(err, "Simulator", "Tick", "marshal payload")
		}

		if err := s.publisher.Publish(ctx, sensor.Subject(), data); err != nil {
			return errors.WrapTransient(err, "Simulator", "Tick", "publish reading")
		}
		if intended {
			s.logger.Info("published intentional anomaly",
				"sensor_type", sensor.Type, "sensor_id", sensor.ID, "value", value)
		}
	}
	return nil
}

// Run announces the simulator, then ticks until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	status, _ := json.Marshal(map[string]string{"service": "sensor-simulator", "status": "online"})
	if err := s.publisher.Publish(ctx, "system.simulator.status", status); err != nil {
		s.logger.Warn("status announcement failed", "error", err)
	}

	s.logger.Info("simulator running", "sensors", len(s.sensors), "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			offline, _ := json.Marshal(map[string]string{"service": "sensor-simulator", "status": "offline"})
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = s.publisher.Publish(shutdownCtx, "system.simulator.status", offline)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("tick failed", "error", err)
			}
		}
	}
}
