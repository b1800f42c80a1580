package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/store"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
	"github.com/LuisPassosRamos/IoT-Ecosystem/weather"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	defaultStatsWindow  = time.Hour
)

// handleLatest returns the latest reading per sensor, or a single reading
// when both type and id are given.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sensorType := r.URL.Query().Get("type")
	sensorID := r.URL.Query().Get("id")

	if sensorType != "" && sensorID != "" {
		reading, ok := s.deps.Cache.Get(telemetry.Key{SensorType: sensorType, SensorID: sensorID})
		if !ok {
			writeError(w, http.StatusNotFound, "no reading for sensor")
			return
		}
		writeJSON(w, http.StatusOK, reading)
		return
	}

	snapshot := s.deps.Cache.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(snapshot),
		"readings": snapshot,
	})
}

// parseHistoryQuery builds a store filter from query parameters.
func parseHistoryQuery(r *http.Request, defaultLimit int) (store.Filter, int, error) {
	q := r.URL.Query()
	filter := store.Filter{
		SensorID:   q.Get("sensor_id"),
		SensorType: q.Get("sensor_type"),
	}

	if v := q.Get("anomalies_only"); v != "" {
		anomaliesOnly, err := strconv.ParseBool(v)
		if err != nil {
			return store.Filter{}, 0, err
		}
		filter.AnomaliesOnly = anomaliesOnly
	}

	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return store.Filter{}, 0, err
		}
		filter.Since = since
	}
	if v := q.Get("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return store.Filter{}, 0, err
		}
		filter.Until = until
	}

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return store.Filter{}, 0, strconv.ErrSyntax
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return filter, limit, nil
}

// handleHistory returns recent readings newest-first with optional filters.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parseHistoryQuery(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter")
		return
	}

	readings := s.deps.History.Query(filter, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(readings),
		"limit":    limit,
		"readings": readings,
	})
}

// handleAnomalies is the history query restricted to anomalous readings.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	filter, limit, err := parseHistoryQuery(r, defaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query parameter")
		return
	}
	filter.AnomaliesOnly = true

	readings := s.deps.History.Query(filter, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(readings),
		"limit":    limit,
		"readings": readings,
	})
}

// handleStats aggregates readings over a trailing window (default 1h).
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	if v := r.URL.Query().Get("window"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = parsed
	}

	writeJSON(w, http.StatusOK, s.deps.History.Stats(window, time.Now().UTC()))
}

// handleLive reports pipeline liveness for dashboards.
func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"subscribers":      s.deps.Broadcast.Count(),
		"tracked_sensors":  s.deps.Cache.Len(),
		"history_size":     s.deps.History.Len(),
		"history_capacity": s.deps.History.Capacity(),
	})
}

// handleWeather proxies the external current-conditions lookup.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	obs, err := s.deps.Weather.Current(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "weather lookup unavailable")
		return
	}
	writeJSON(w, http.StatusOK, obs)
}

// handleCompareWeather relates external conditions to the freshest local
// temperature and humidity readings across all sensors.
func (s *Server) handleCompareWeather(w http.ResponseWriter, r *http.Request) {
	obs, err := s.deps.Weather.Current(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "weather lookup unavailable")
		return
	}

	localTemp := s.freshestByType("temperature")
	localHum := s.freshestByType("humidity")
	writeJSON(w, http.StatusOK, weather.Compare(obs, localTemp, localHum, time.Now().UTC()))
}

// freshestByType returns the newest cached reading of a sensor type, across
// all sensor ids.
func (s *Server) freshestByType(sensorType string) *telemetry.Reading {
	var freshest *telemetry.Reading
	for _, reading := range s.deps.Cache.Snapshot() {
		if reading.SensorType != sensorType {
			continue
		}
		if freshest == nil || reading.Timestamp.After(freshest.Timestamp) {
			r := reading
			freshest = &r
		}
	}
	return freshest
}

// handleHealth reports overall service health including the transport link.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	transportConnected := true
	if s.deps.TransportHealthy != nil {
		transportConnected = s.deps.TransportHealthy()
		if !transportConnected {
			status = "degraded"
		}
	}

	statusCode := http.StatusOK
	if status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":         status,
		"transport":      transportConnected,
		"subscribers":    s.deps.Broadcast.Count(),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
