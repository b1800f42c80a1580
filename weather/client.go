// Package weather fetches current outdoor conditions from OpenWeather for
// comparison against local sensor readings. Without an API key, or when the
// upstream call fails, the client serves a deterministic mock observation so
// the comparison endpoints keep working offline.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// DefaultBaseURL is the OpenWeather current-weather API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Observation is one external weather reading.
type Observation struct {
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Client queries OpenWeather with a mock fallback.
type Client struct {
	apiKey     string
	city       string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL overrides the API root, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "weather", "WithBaseURL", "base URL must not be empty")
		}
		c.baseURL = baseURL
		return nil
	}
}

// WithTimeout bounds each upstream request.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "weather", "WithTimeout", "timeout must be positive")
		}
		c.httpClient.Timeout = timeout
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "weather", "WithLogger", "logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a weather client. An empty apiKey puts the client in
// mock mode permanently.
func NewClient(apiKey, city string, opts ...Option) (*Client, error) {
	if city == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "weather", "NewClient", "city is required")
	}

	c := &Client{
		apiKey:     apiKey,
		city:       city,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.Default().With("component", "weather"),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// currentWire mirrors the subset of the OpenWeather response we use.
type currentWire struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Current returns the current conditions for city (the configured city when
// empty). Upstream failure degrades to the mock observation; Current itself
// only errors when the context is already done.
func (c *Client) Current(ctx context.Context, city string) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, errors.WrapTransient(err, "weather", "Current", "context done")
	}
	if city == "" {
		city = c.city
	}
	if c.apiKey == "" {
		return c.mock(city), nil
	}

	obs, err := c.fetch(ctx, city)
	if err != nil {
		c.logger.Warn("upstream weather lookup failed, serving mock", "city", city, "error", err)
		return c.mock(city), nil
	}
	return obs, nil
}

func (c *Client) fetch(ctx context.Context, city string) (Observation, error) {
	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric",
		c.baseURL, url.QueryEscape(city), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Observation{}, errors.WrapInvalid(err, "weather", "fetch", "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Observation{}, errors.WrapTransient(err, "weather", "fetch", "execute request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Observation{}, errors.WrapTransient(
			fmt.Errorf("unexpected status %d", resp.StatusCode), "weather", "fetch", "check response status")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Observation{}, errors.WrapTransient(err, "weather", "fetch", "read response body")
	}

	var wire currentWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return Observation{}, errors.WrapInvalid(err, "weather", "fetch", "decode response")
	}

	description := ""
	if len(wire.Weather) > 0 {
		description = wire.Weather[0].Description
	}
	name := wire.Name
	if name == "" {
		name = city
	}

	return Observation{
		City:        name,
		Temperature: wire.Main.Temp,
		Humidity:    wire.Main.Humidity,
		Description: description,
		Source:      "openweather",
		FetchedAt:   c.now().UTC(),
	}, nil
}

// mock produces a plausible observation that drifts slowly over the day so
// dashboards do not show a flat line.
func (c *Client) mock(city string) Observation {
	now := c.now().UTC()
	hour := float64(now.Hour()) + float64(now.Minute())/60

	// Peaks mid-afternoon, coolest before dawn.
	temp := 25 + 5*math.Sin((hour-9)*math.Pi/12)
	humidity := 65 - 10*math.Sin((hour-9)*math.Pi/12)

	return Observation{
		City:        city,
		Temperature: math.Round(temp*10) / 10,
		Humidity:    math.Round(humidity*10) / 10,
		Description: "scattered clouds",
		Source:      "mock",
		FetchedAt:   now,
	}
}

// Comparison relates external conditions to the latest local readings.
// Local values and deltas are nil when no local reading exists yet.
type Comparison struct {
	City                string      `json:"city"`
	External            Observation `json:"external"`
	LocalTemperature    *float64    `json:"local_temperature,omitempty"`
	TemperatureDelta    *float64    `json:"temperature_delta,omitempty"`
	LocalHumidity       *float64    `json:"local_humidity,omitempty"`
	HumidityDelta       *float64    `json:"humidity_delta,omitempty"`
	LocalTemperatureAge *float64    `json:"local_temperature_age_seconds,omitempty"`
}

// Compare builds a local-versus-external comparison. Deltas are local minus
// external.
func Compare(obs Observation, localTemp, localHumidity *telemetry.Reading, now time.Time) Comparison {
	cmp := Comparison{City: obs.City, External: obs}

	if localTemp != nil {
		v := localTemp.Value
		delta := math.Round((v-obs.Temperature)*100) / 100
		age := now.Sub(localTemp.Timestamp).Seconds()
		cmp.LocalTemperature = &v
		cmp.TemperatureDelta = &delta
		cmp.LocalTemperatureAge = &age
	}
	if localHumidity != nil {
		v := localHumidity.Value
		delta := math.Round((v-obs.Humidity)*100) / 100
		cmp.LocalHumidity = &v
		cmp.HumidityDelta = &delta
	}
	return cmp
}
