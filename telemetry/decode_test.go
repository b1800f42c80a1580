package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

var ingestTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestDecodeFullPayload(t *testing.T) {
	payload := []byte(`{
		"value": 22.5,
		"ts": "2025-06-01T11:59:30Z",
		"type": "temperature",
		"sensor_id": "temp_sim_001",
		"unit": "C",
		"origin": "edge"
	}`)

	r, err := Decode("sensors.temperature.sim001", payload, ingestTime)
	require.NoError(t, err)

	assert.Equal(t, "temperature", r.SensorType)
	assert.Equal(t, "temp_sim_001", r.SensorID, "payload sensor_id overrides topic")
	assert.Equal(t, 22.5, r.Value)
	assert.Equal(t, "C", r.Unit)
	assert.Equal(t, "edge", r.Origin)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 59, 30, 0, time.UTC), r.Timestamp)
	assert.False(t, r.Anomaly, "anomaly is never set at decode time")
	assert.Nil(t, r.AnomalyDetail)
}

func TestDecodeTypeAndIDFromTopic(t *testing.T) {
	r, err := Decode("sensors.humidity.hum01", []byte(`{"value": 55.0}`), ingestTime)
	require.NoError(t, err)

	assert.Equal(t, "humidity", r.SensorType)
	assert.Equal(t, "hum01", r.SensorID)
	assert.Equal(t, ingestTime, r.Timestamp, "missing ts falls back to ingestion time")
	assert.Equal(t, "unknown", r.Origin)
}

func TestDecodeSlashSeparatedTopic(t *testing.T) {
	r, err := Decode("sensors/luminosity/lum01", []byte(`{"value": 800}`), ingestTime)
	require.NoError(t, err)

	assert.Equal(t, "luminosity", r.SensorType)
	assert.Equal(t, "lum01", r.SensorID)
}

func TestDecodeMissingValue(t *testing.T) {
	_, err := Decode("sensors.temperature.t1", []byte(`{"unit": "C"}`), ingestTime)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode("sensors.temperature.t1", []byte(`{not json`), ingestTime)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeNoTypeAnywhere(t *testing.T) {
	_, err := Decode("status", []byte(`{"value": 1}`), ingestTime)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeBadTimestampFallsBack(t *testing.T) {
	r, err := Decode("sensors.temperature.t1", []byte(`{"value": 20, "ts": "yesterday"}`), ingestTime)
	require.NoError(t, err, "bad timestamp never rejects a reading")
	assert.Equal(t, ingestTime, r.Timestamp)
}

func TestDecodeSenderAnomalyIgnored(t *testing.T) {
	r, err := Decode("sensors.temperature.t1", []byte(`{"value": 20, "anomaly": true}`), ingestTime)
	require.NoError(t, err)
	assert.False(t, r.Anomaly, "sender-asserted anomaly flag is untrusted")
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"with UTC marker", "2025-06-01T10:00:00Z", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"without zone", "2025-06-01T10:00:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"fractional seconds", "2025-06-01T10:00:00.5Z", time.Date(2025, 6, 1, 10, 0, 0, 500000000, time.UTC)},
		{"empty falls back", "", ingestTime},
		{"garbage falls back", "not-a-time", ingestTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(tt.in, ingestTime)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestEventMarshal(t *testing.T) {
	r := Reading{SensorType: "temperature", SensorID: "t1", Value: 21.0, Timestamp: ingestTime}
	ev := NewSensorDataEvent(r)
	assert.Equal(t, EventSensorData, ev.Type)

	data, err := ev.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sensor_data"`)
	assert.Contains(t, string(data), `"t1"`)
}

func TestKeyString(t *testing.T) {
	k := Key{SensorType: "temperature", SensorID: "t1"}
	assert.Equal(t, "temperature/t1", k.String())

	r := Reading{SensorType: "temperature", SensorID: "t1"}
	assert.Equal(t, k, r.Key())
}
