// Package classifier flags anomalous sensor readings using per-type range
// and jump thresholds. Classification is pure: it never errors and has no
// side effects; state (the previous reading per key) is supplied by the
// caller.
package classifier

import (
	"math"

	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

// Policy holds the classification thresholds for one sensor type.
// Bounds are inclusive: a value exactly at Min or Max is not anomalous.
// A jump exactly equal to JumpThreshold is not anomalous.
type Policy struct {
	Min           float64 `json:"min"            yaml:"min"`
	Max           float64 `json:"max"            yaml:"max"`
	JumpThreshold float64 `json:"jump_threshold" yaml:"jump_threshold"`
}

// PolicySet maps sensor types to their policies. Loaded at startup and
// immutable thereafter.
type PolicySet map[string]Policy

// Lookup returns the policy for a sensor type, if configured.
func (ps PolicySet) Lookup(sensorType string) (Policy, bool) {
	p, ok := ps[sensorType]
	return p, ok
}

// Classify evaluates one reading against its type's policy and the previous
// reading for the same key. Unknown sensor types (no policy) are never
// flagged, so new types can appear without a core change. The returned
// detail is nil exactly when the verdict is false.
func Classify(reading telemetry.Reading, previous *telemetry.Reading, policies PolicySet) (bool, *telemetry.AnomalyDetail) {
	policy, ok := policies.Lookup(reading.SensorType)
	if !ok {
		return false, nil
	}

	outOfRange := reading.Value < policy.Min || reading.Value > policy.Max

	var suddenJump bool
	var prevValue *float64
	if previous != nil {
		v := previous.Value
		prevValue = &v
		suddenJump = math.Abs(reading.Value-v) > policy.JumpThreshold
	}

	if !outOfRange && !suddenJump {
		return false, nil
	}

	return true, &telemetry.AnomalyDetail{
		OutOfRange:    outOfRange,
		SuddenJump:    suddenJump,
		PreviousValue: prevValue,
	}
}
