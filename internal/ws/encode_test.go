package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/frame"
	"github.com/orbo-vision/coreflow/internal/telemetry"
)

func TestEncodeEvent_Motion(t *testing.T) {
	data, err := encodeEvent(telemetry.Event{
		Kind: telemetry.EventMotion, FrameSeq: 5,
		Motion: &frame.Delta{MotionPercent: 42.5, Regions: []frame.Region{{}, {}}},
	})
	require.NoError(t, err)
	require.NotNil(t, data)

	var msg MotionMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "motion", msg.Type)
	assert.Equal(t, uint64(5), msg.FrameSeq)
	assert.Equal(t, 42.5, msg.MotionPercent)
	assert.Equal(t, 2, msg.RegionCount)
}

func TestEncodeEvent_Tracking(t *testing.T) {
	data, err := encodeEvent(telemetry.Event{
		Kind: telemetry.EventTracking, FrameSeq: 9,
		Tracking: &frame.Result{
			ActiveCount: 1,
			Active:      []*frame.TrackedObject{{ID: 1, Class: "person", Box: frame.BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}, Direction: frame.DirLeft, Zone: "middle_center"}},
			Entries:     []frame.Event{{Kind: frame.EventEntry}},
		},
	})
	require.NoError(t, err)

	var msg TrackingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "tracking", msg.Type)
	assert.Equal(t, 1, msg.ActiveCount)
	assert.Equal(t, 1, msg.Entries)
	require.Len(t, msg.Objects, 1)
	assert.Equal(t, "person", msg.Objects[0].Class)
}

func TestEncodeEvent_Alert(t *testing.T) {
	data, err := encodeEvent(telemetry.Event{
		Kind: telemetry.EventAlert, FrameSeq: 3,
		Alert: &frame.Observation{Summary: "person detected", Triggered: true},
	})
	require.NoError(t, err)

	var msg AlertMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "alert", msg.Type)
	assert.True(t, msg.Triggered)
}

func TestEncodeEvent_UnknownKindOrWrongPayloadIsSkipped(t *testing.T) {
	data, err := encodeEvent(telemetry.Event{Kind: telemetry.EventKind("unknown")})
	assert.NoError(t, err)
	assert.Nil(t, data)

	data, err = encodeEvent(telemetry.Event{Kind: telemetry.EventMotion, Motion: "not a delta"})
	assert.NoError(t, err)
	assert.Nil(t, data)
}
