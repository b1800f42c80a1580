package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

type capturePublisher struct {
	mu       sync.Mutex
	messages []struct {
		subject string
		data    []byte
	}
	failWith error
}

func (p *capturePublisher) Publish(_ context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	p.messages = append(p.messages, struct {
		subject string
		data    []byte
	}{subject, buf})
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestTickPublishesDecodableReadings(t *testing.T) {
	pub := &capturePublisher{}
	sim, err := New(pub, nil, WithSeed(42))
	require.NoError(t, err)

	require.NoError(t, sim.Tick(context.Background()))
	require.Equal(t, len(DefaultSensors()), pub.count())

	now := time.Now().UTC()
	for _, msg := range pub.messages {
		reading, err := telemetry.Decode(msg.subject, msg.data, now)
		require.NoError(t, err, "subject %s", msg.subject)
		assert.NotEmpty(t, reading.SensorType)
		assert.NotEmpty(t, reading.SensorID)
		assert.Equal(t, "nats", reading.SourceProtocol)
		assert.Equal(t, reading.SensorID, reading.Origin)
	}
}

func TestWalkStaysInBandWithoutAnomalies(t *testing.T) {
	sensors := []Sensor{{Type: "temperature", ID: "t1", Unit: "C", Min: 15, Max: 35, Step: 2, AnomalyChance: 0}}
	pub := &capturePublisher{}
	sim, err := New(pub, sensors, WithSeed(7))
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		value, intended := sim.next(sensors[0])
		assert.False(t, intended)
		assert.GreaterOrEqual(t, value, 15.0)
		assert.LessOrEqual(t, value, 35.0)
	}
}

func TestAnomalyRollLeavesBand(t *testing.T) {
	sensors := []Sensor{{Type: "temperature", ID: "t1", Unit: "C", Min: 15, Max: 35, Step: 2, AnomalyChance: 1}}
	pub := &capturePublisher{}
	sim, err := New(pub, sensors, WithSeed(7))
	require.NoError(t, err)

	value, intended := sim.next(sensors[0])
	assert.True(t, intended)
	assert.True(t, value > 35 || value < 15, "anomaly value %v must be outside the band", value)
}

func TestSensorSubject(t *testing.T) {
	s := Sensor{Type: "humidity", ID: "esp32-3"}
	assert.Equal(t, "sensors.humidity.esp32-3", s.Subject())
}

func TestRunAnnouncesAndStops(t *testing.T) {
	pub := &capturePublisher{}
	sim, err := New(pub, nil, WithSeed(1), WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err = sim.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Online announcement plus at least one tick plus offline announcement.
	require.Greater(t, pub.count(), len(DefaultSensors()))
	assert.Equal(t, "system.simulator.status", pub.messages[0].subject)
	assert.Equal(t, "system.simulator.status", pub.messages[pub.count()-1].subject)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New(&capturePublisher{}, nil, WithInterval(0))
	assert.Error(t, err)

	_, err = New(&capturePublisher{}, nil, WithLogger(nil))
	assert.Error(t, err)
}
