package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

func TestCurrentMockWithoutAPIKey(t *testing.T) {
	c, err := NewClient("", "Salvador")
	require.NoError(t, err)

	obs, err := c.Current(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "Salvador", obs.City)
	assert.Equal(t, "mock", obs.Source)
	assert.InDelta(t, 25, obs.Temperature, 6)
	assert.InDelta(t, 65, obs.Humidity, 11)
}

func TestCurrentFetchesUpstream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Salvador", r.URL.Query().Get("q"))
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		w.Write([]byte(`{"name":"Salvador","main":{"temp":28.3,"humidity":74},"weather":[{"description":"light rain"}]}`))
	}))
	defer server.Close()

	c, err := NewClient("test-key", "Salvador", WithBaseURL(server.URL))
	require.NoError(t, err)

	obs, err := c.Current(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, "Salvador", obs.City)
	assert.Equal(t, 28.3, obs.Temperature)
	assert.Equal(t, 74.0, obs.Humidity)
	assert.Equal(t, "light rain", obs.Description)
	assert.Equal(t, "openweather", obs.Source)
}

func TestCurrentFallsBackToMockOnUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c, err := NewClient("bad-key", "Salvador", WithBaseURL(server.URL))
	require.NoError(t, err)

	obs, err := c.Current(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "mock", obs.Source)
}

func TestCurrentFallsBackToMockOnMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c, err := NewClient("test-key", "Salvador", WithBaseURL(server.URL))
	require.NoError(t, err)

	obs, err := c.Current(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "mock", obs.Source)
}

func TestCurrentCityOverride(t *testing.T) {
	c, err := NewClient("", "Salvador")
	require.NoError(t, err)

	obs, err := c.Current(context.Background(), "Recife")
	require.NoError(t, err)
	assert.Equal(t, "Recife", obs.City)
}

func TestCurrentCancelledContext(t *testing.T) {
	c, err := NewClient("", "Salvador")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Current(ctx, "")
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "")
	assert.Error(t, err)

	_, err = NewClient("", "Salvador", WithBaseURL(""))
	assert.Error(t, err)

	_, err = NewClient("", "Salvador", WithTimeout(0))
	assert.Error(t, err)

	_, err = NewClient("", "Salvador", WithLogger(nil))
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	obs := Observation{City: "Salvador", Temperature: 28.0, Humidity: 70.0, Source: "openweather"}

	localTemp := &telemetry.Reading{
		SensorType: "temperature", SensorID: "esp32-1",
		Value: 25.5, Timestamp: now.Add(-30 * time.Second),
	}
	localHum := &telemetry.Reading{
		SensorType: "humidity", SensorID: "esp32-2", Value: 62.0, Timestamp: now,
	}

	cmp := Compare(obs, localTemp, localHum, now)

	require.NotNil(t, cmp.LocalTemperature)
	assert.Equal(t, 25.5, *cmp.LocalTemperature)
	assert.Equal(t, -2.5, *cmp.TemperatureDelta)
	assert.Equal(t, 30.0, *cmp.LocalTemperatureAge)
	assert.Equal(t, 62.0, *cmp.LocalHumidity)
	assert.Equal(t, -8.0, *cmp.HumidityDelta)
}

func TestCompareWithoutLocalReadings(t *testing.T) {
	obs := Observation{City: "Salvador", Temperature: 28.0, Humidity: 70.0}
	cmp := Compare(obs, nil, nil, time.Now())

	assert.Nil(t, cmp.LocalTemperature)
	assert.Nil(t, cmp.TemperatureDelta)
	assert.Nil(t, cmp.LocalHumidity)
	assert.Nil(t, cmp.HumidityDelta)
}
