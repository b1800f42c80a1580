package classifier

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
)

var testPolicies = PolicySet{
	"temperature": {Min: 15, Max: 35, JumpThreshold: 5},
	"humidity":    {Min: 30, Max: 70, JumpThreshold: 10},
}

func reading(sensorType string, value float64) telemetry.Reading {
	return telemetry.Reading{SensorType: sensorType, SensorID: "t1", Value: value}
}

func TestClassifyInRangeNoPrevious(t *testing.T) {
	anomaly, detail := Classify(reading("temperature", 22.0), nil, testPolicies)
	assert.False(t, anomaly)
	assert.Nil(t, detail)
}

func TestClassifyInclusiveBounds(t *testing.T) {
	for _, value := range []float64{15.0, 35.0} {
		anomaly, detail := Classify(reading("temperature", value), nil, testPolicies)
		assert.False(t, anomaly, "value %v exactly at bound must not be anomalous", value)
		assert.Nil(t, detail)
	}
}

func TestClassifyOutOfRange(t *testing.T) {
	tests := []struct {
		value float64
	}{
		{14.9},
		{35.1},
		{-40},
		{100},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("value_%v", tt.value), func(t *testing.T) {
			anomaly, detail := Classify(reading("temperature", tt.value), nil, testPolicies)
			assert.True(t, anomaly)
			require.NotNil(t, detail)
			assert.True(t, detail.OutOfRange)
			assert.False(t, detail.SuddenJump, "no previous value, jump check skipped")
			assert.Nil(t, detail.PreviousValue)
		})
	}
}

func TestClassifyJumpExactlyAtThresholdNotAnomalous(t *testing.T) {
	prev := reading("temperature", 20.0)
	anomaly, detail := Classify(reading("temperature", 25.0), &prev, testPolicies)
	assert.False(t, anomaly, "jump of exactly jump_threshold must not be flagged")
	assert.Nil(t, detail)
}

func TestClassifySuddenJump(t *testing.T) {
	prev := reading("temperature", 20.0)
	anomaly, detail := Classify(reading("temperature", 25.1), &prev, testPolicies)
	assert.True(t, anomaly)
	require.NotNil(t, detail)
	assert.False(t, detail.OutOfRange)
	assert.True(t, detail.SuddenJump)
	require.NotNil(t, detail.PreviousValue)
	assert.Equal(t, 20.0, *detail.PreviousValue)
}

func TestClassifyDownwardJump(t *testing.T) {
	prev := reading("temperature", 30.0)
	anomaly, detail := Classify(reading("temperature", 24.0), &prev, testPolicies)
	assert.True(t, anomaly)
	require.NotNil(t, detail)
	assert.True(t, detail.SuddenJump)
}

func TestClassifyOutOfRangeAndJump(t *testing.T) {
	// A reading that leaves the allowed band and jumps past the
	// threshold from the prior value raises both flags at once:
	// 22.0 then 45.0 with min=15 max=35 jump_threshold=5.
	prev := reading("temperature", 22.0)
	anomaly, detail := Classify(reading("temperature", 45.0), &prev, testPolicies)
	assert.True(t, anomaly)
	require.NotNil(t, detail)
	assert.True(t, detail.OutOfRange)
	assert.True(t, detail.SuddenJump)
	require.NotNil(t, detail.PreviousValue)
	assert.Equal(t, 22.0, *detail.PreviousValue)
}

func TestClassifyUnknownTypeNeverFlagged(t *testing.T) {
	for i, value := range []float64{-1e9, 0, 1e9} {
		r := telemetry.Reading{SensorType: "radiation", SensorID: fmt.Sprintf("r%d", i), Value: value}
		anomaly, detail := Classify(r, nil, testPolicies)
		assert.False(t, anomaly, "unknown types are never flagged by default")
		assert.Nil(t, detail)
	}
}

func TestClassifyInvariantDetailMatchesVerdict(t *testing.T) {
	prev := reading("temperature", 20.0)
	cases := []struct {
		value    float64
		previous *telemetry.Reading
	}{
		{22, nil}, {14, nil}, {36, nil}, {26, &prev}, {20, &prev}, {45, &prev},
	}
	for _, c := range cases {
		anomaly, detail := Classify(reading("temperature", c.value), c.previous, testPolicies)
		if anomaly {
			require.NotNil(t, detail)
			assert.True(t, detail.OutOfRange || detail.SuddenJump,
				"anomaly must imply at least one cause")
		} else {
			assert.Nil(t, detail)
		}
	}
}
