package telemetry

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/errors"
)

// wirePayload mirrors the JSON published by sensors. Only value is
// required; everything else has a topic-derived or constant fallback.
// A sender-asserted anomaly flag is untrusted telemetry metadata, so it is
// deliberately not decoded here.
type wirePayload struct {
	Value          *float64 `json:"value"`
	TS             string   `json:"ts"`
	Timestamp      string   `json:"timestamp"`
	Type           string   `json:"type"`
	SensorType     string   `json:"sensor_type"`
	SensorID       string   `json:"sensor_id"`
	Unit           string   `json:"unit"`
	Origin         string   `json:"origin"`
	SourceProtocol string   `json:"source_protocol"`
}

// timestampLayouts are the accepted ISO-8601 shapes, with or without a
// trailing UTC marker or fractional seconds.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an origin-assigned timestamp. A missing or
// unparsable timestamp falls back to fallback (the ingestion time); a bad
// timestamp never rejects a reading.
func ParseTimestamp(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return fallback
}

// splitTopic splits a transport topic on either NATS (".") or MQTT ("/")
// separators so MQTT-bridged subjects decode the same way.
func splitTopic(topic string) []string {
	if strings.Contains(topic, "/") {
		return strings.Split(topic, "/")
	}
	return strings.Split(topic, ".")
}

// Decode parses a raw transport message into a Reading. The sensor type and
// id come from the payload when present, otherwise from the topic
// convention "prefix/{type}/{id}". The required value field missing or an
// unparsable payload is a decode failure; the caller drops such messages
// without retry.
func Decode(topic string, data []byte, now time.Time) (Reading, error) {
	var p wirePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Reading{}, errors.WrapInvalid(errors.ErrInvalidPayload, "telemetry", "Decode", "unmarshal payload")
	}

	if p.Value == nil {
		return Reading{}, errors.WrapInvalid(errors.ErrMissingValue, "telemetry", "Decode", "validate payload")
	}

	var topicType, topicID string
	if parts := splitTopic(topic); len(parts) >= 3 {
		topicType = parts[1]
		topicID = parts[2]
	}

	sensorType := p.SensorType
	if sensorType == "" {
		sensorType = p.Type
	}
	if sensorType == "" {
		sensorType = topicType
	}
	if sensorType == "" {
		return Reading{}, errors.WrapInvalid(errors.ErrInvalidTopic, "telemetry", "Decode", "derive sensor type")
	}

	sensorID := p.SensorID
	if sensorID == "" {
		sensorID = topicID
	}
	if sensorID == "" {
		sensorID = "unknown"
	}

	tsField := p.TS
	if tsField == "" {
		tsField = p.Timestamp
	}

	origin := p.Origin
	if origin == "" {
		origin = "unknown"
	}

	protocol := p.SourceProtocol
	if protocol == "" {
		protocol = "nats"
	}

	return Reading{
		Timestamp:      ParseTimestamp(tsField, now),
		SensorType:     sensorType,
		SensorID:       sensorID,
		Value:          *p.Value,
		Unit:           p.Unit,
		Origin:         origin,
		SourceProtocol: protocol,
	}, nil
}
