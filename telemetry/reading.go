// Package telemetry defines the sensor reading model shared by the
// ingestion pipeline, the stores, and the broadcast layer, along with
// payload decoding for the pub/sub transport.
package telemetry

import "time"

// Key identifies a distinct telemetry source: one physical or simulated
// sensor of a given type.
type Key struct {
	SensorType string
	SensorID   string
}

// String returns the canonical "type/id" form used for map keys and logs.
func (k Key) String() string {
	return k.SensorType + "/" + k.SensorID
}

// AnomalyDetail describes why a reading was flagged by the classifier.
type AnomalyDetail struct {
	OutOfRange    bool     `json:"out_of_range"`
	SuddenJump    bool     `json:"sudden_jump"`
	PreviousValue *float64 `json:"previous_value,omitempty"`
}

// Reading is one timestamped telemetry sample. The Anomaly flag and
// AnomalyDetail are assigned by the classifier during ingestion; any
// sender-asserted anomaly flag is discarded at decode time.
type Reading struct {
	Timestamp      time.Time      `json:"timestamp"`
	SensorType     string         `json:"sensor_type"`
	SensorID       string         `json:"sensor_id"`
	Value          float64        `json:"value"`
	Unit           string         `json:"unit,omitempty"`
	Origin         string         `json:"origin,omitempty"`
	SourceProtocol string         `json:"source_protocol,omitempty"`
	Anomaly        bool           `json:"anomaly"`
	AnomalyDetail  *AnomalyDetail `json:"anomaly_detail,omitempty"`
}

// Key returns the (sensor_type, sensor_id) pair identifying this reading's
// source.
func (r Reading) Key() Key {
	return Key{SensorType: r.SensorType, SensorID: r.SensorID}
}
