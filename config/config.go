// Package config loads service configuration from a YAML file with
// environment variable overrides. Environment values win over file values,
// which win over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LuisPassosRamos/IoT-Ecosystem/classifier"
	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

// NATSConfig configures the transport connection and the ingestion stream.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	ClientName    string        `yaml:"client_name"`
	Stream        string        `yaml:"stream"`
	Subjects      []string      `yaml:"subjects"`
	Durable       string        `yaml:"durable"`
	MaxMsgs       int64         `yaml:"max_msgs"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig configures the demo credential and token issuance.
type AuthConfig struct {
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// WeatherConfig configures the external weather lookup. An empty APIKey
// switches the client to deterministic mock responses.
type WeatherConfig struct {
	APIKey  string        `yaml:"api_key"`
	City    string        `yaml:"city"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PipelineConfig sizes the in-memory pipeline stages.
type PipelineConfig struct {
	HistoryCapacity int `yaml:"history_capacity"`
	QueueSize       int `yaml:"queue_size"`
	SendBuffer      int `yaml:"send_buffer"`
}

// Config is the full service configuration.
type Config struct {
	LogLevel string               `yaml:"log_level"`
	NATS     NATSConfig           `yaml:"nats"`
	HTTP     HTTPConfig           `yaml:"http"`
	Pipeline PipelineConfig       `yaml:"pipeline"`
	Policies classifier.PolicySet `yaml:"policies"`
	Auth     AuthConfig           `yaml:"auth"`
	Weather  WeatherConfig        `yaml:"weather"`
}

// Default returns the configuration used when no file and no environment
// overrides are present. The policy thresholds mirror the edge simulators.
func Default() Config {
	return Config{
		LogLevel: "info",
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			ClientName:    "iotstream",
			Stream:        "SENSORS",
			Subjects:      []string{"sensors.>", "system.>"},
			Durable:       "iotstream-ingest",
			MaxMsgs:       100000,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			HistoryCapacity: 10000,
			QueueSize:       1024,
			SendBuffer:      64,
		},
		Policies: classifier.PolicySet{
			"temperature": {Min: 15, Max: 35, JumpThreshold: 5},
			"humidity":    {Min: 20, Max: 90, JumpThreshold: 15},
			"luminosity":  {Min: 0, Max: 1000, JumpThreshold: 300},
		},
		Auth: AuthConfig{
			Username: "admin",
			Password: "admin",
			TokenTTL: time.Hour,
		},
		Weather: WeatherConfig{
			City:    "Salvador",
			BaseURL: "https://api.openweathermap.org/data/2.5",
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads configuration from path, merged over defaults, then applies
// environment overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays IOTSTREAM_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("IOTSTREAM_LOG_LEVEL", &cfg.LogLevel)
	setString("IOTSTREAM_NATS_URL", &cfg.NATS.URL)
	setString("IOTSTREAM_NATS_STREAM", &cfg.NATS.Stream)
	setString("IOTSTREAM_HTTP_ADDR", &cfg.HTTP.Addr)
	setInt("IOTSTREAM_HISTORY_CAPACITY", &cfg.Pipeline.HistoryCapacity)
	setInt("IOTSTREAM_QUEUE_SIZE", &cfg.Pipeline.QueueSize)
	setString("IOTSTREAM_AUTH_USERNAME", &cfg.Auth.Username)
	setString("IOTSTREAM_AUTH_PASSWORD", &cfg.Auth.Password)
	setString("IOTSTREAM_JWT_SECRET", &cfg.Auth.JWTSecret)
	setString("IOTSTREAM_WEATHER_API_KEY", &cfg.Weather.APIKey)
	setString("IOTSTREAM_WEATHER_CITY", &cfg.Weather.City)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	invalid := func(msg string) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate", msg)
	}

	if c.NATS.URL == "" {
		return invalid("nats.url is required")
	}
	if c.NATS.Stream == "" {
		return invalid("nats.stream is required")
	}
	if len(c.NATS.Subjects) == 0 {
		return invalid("nats.subjects must not be empty")
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.Pipeline.HistoryCapacity < 1 {
		return invalid("pipeline.history_capacity must be positive")
	}
	if c.Pipeline.QueueSize < 1 {
		return invalid("pipeline.queue_size must be positive")
	}
	if c.Pipeline.SendBuffer < 1 {
		return invalid("pipeline.send_buffer must be positive")
	}
	for sensorType, policy := range c.Policies {
		if policy.Min > policy.Max {
			return invalid(fmt.Sprintf("policy %s: min %v exceeds max %v", sensorType, policy.Min, policy.Max))
		}
		if policy.JumpThreshold < 0 {
			return invalid(fmt.Sprintf("policy %s: jump_threshold must not be negative", sensorType))
		}
	}
	if c.Auth.Username == "" || c.Auth.Password == "" {
		return invalid("auth.username and auth.password are required")
	}
	if c.Auth.TokenTTL <= 0 {
		return invalid("auth.token_ttl must be positive")
	}
	return nil
}
