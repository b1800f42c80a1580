package telemetry

import (
	"encoding/json"
	"time"
)

// Event types carried over the subscriber channel.
const (
	EventSensorData   = "sensor_data"
	EventSystemStatus = "system_status"
	EventConnection   = "connection"
	EventSnapshot     = "snapshot"
	EventPong         = "pong"
	EventError        = "error"
)

// Event is the normalized message delivered to every live subscriber.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal encodes the event as JSON for transmission.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewSensorDataEvent wraps a classified reading for broadcast.
func NewSensorDataEvent(r Reading) Event {
	return Event{
		Type:      EventSensorData,
		Data:      r,
		Timestamp: time.Now().UTC(),
	}
}

// SystemStatus reports a non-sensor service status message.
type SystemStatus struct {
	Service string `json:"service"`
	Status  string `json:"status"`
	Topic   string `json:"topic"`
}

// NewSystemStatusEvent wraps a system status message for broadcast.
func NewSystemStatusEvent(service, status, topic string) Event {
	return Event{
		Type:      EventSystemStatus,
		Data:      SystemStatus{Service: service, Status: status, Topic: topic},
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent acknowledges an unrecognized client message without closing
// the connection.
func NewErrorEvent(message string) Event {
	return Event{
		Type:      EventError,
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().UTC(),
	}
}
