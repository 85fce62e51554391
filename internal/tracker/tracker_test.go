package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
)

func det(x, y, w, h float64) frame.Detection {
	return frame.Detection{Box: frame.BoundingBox{X: x, Y: y, W: w, H: h}, Class: "object", Confidence: 0.9}
}

func TestTracker_SingleTraversal(t *testing.T) {
	cfg := config.Defaults()
	tr := New(cfg)
	now := time.Now()

	var lastResult *frame.Result
	xs := []float64{0.05, 0.15, 0.25, 0.35, 0.45, 0.55, 0.65, 0.75, 0.85, 0.95}
	for i, x := range xs {
		lastResult = tr.Update([]frame.Detection{det(x, 0.5, 0.1, 0.1)}, now.Add(time.Duration(i)*time.Second))
	}

	require.Len(t, lastResult.Active, 1)
	assert.Equal(t, 1, lastResult.Active[0].ID)

	// Object disappears; after max_lost_frames it must exit with a stable id.
	for i := 0; i < cfg.MaxLostFrames; i++ {
		lastResult = tr.Update(nil, now.Add(time.Duration(len(xs)+i)*time.Second))
	}
	require.Len(t, lastResult.LostObjects, 1)
	assert.Equal(t, 1, lastResult.LostObjects[0].ID)
	assert.Equal(t, frame.StateGone, lastResult.LostObjects[0].State)
	assert.Len(t, lastResult.Exits, 1)
}

func TestTracker_TwoObjectsCrossingNoIDSwap(t *testing.T) {
	cfg := config.Defaults()
	tr := New(cfg)
	now := time.Now()

	// Two rectangles moving toward each other; paths cross around step 8.
	leftX := []float64{0.05, 0.12, 0.19, 0.26, 0.33, 0.40, 0.47, 0.54, 0.61, 0.68}
	rightX := []float64{0.95, 0.88, 0.81, 0.74, 0.67, 0.60, 0.53, 0.46, 0.39, 0.32}

	var result *frame.Result
	for i := range leftX {
		result = tr.Update([]frame.Detection{
			det(leftX[i], 0.5, 0.08, 0.08),
			det(rightX[i], 0.5, 0.08, 0.08),
		}, now.Add(time.Duration(i)*time.Second))
	}

	require.Len(t, result.Active, 2)
	ids := map[int]bool{result.Active[0].ID: true, result.Active[1].ID: true}
	assert.True(t, ids[1] && ids[2], "expected stable ids 1 and 2 with no swap, got %v", ids)
}

func TestTracker_DeterministicTieBreak(t *testing.T) {
	cfg := config.Defaults()
	tr1 := New(cfg)
	tr2 := New(cfg)
	now := time.Now()

	dets := []frame.Detection{det(0.5, 0.5, 0.1, 0.1), det(0.5, 0.5, 0.1, 0.1)}
	r1 := tr1.Update(dets, now)
	r2 := tr2.Update(dets, now)

	require.Len(t, r1.Active, 2)
	require.Len(t, r2.Active, 2)
	assert.Equal(t, r1.Active[0].ID, r2.Active[0].ID)
	assert.Equal(t, r1.Active[1].ID, r2.Active[1].ID)
}

func TestTracker_ActiveCountMatchesNonGone(t *testing.T) {
	cfg := config.Defaults()
	tr := New(cfg)
	now := time.Now()

	result := tr.Update([]frame.Detection{det(0.1, 0.1, 0.1, 0.1), det(0.9, 0.9, 0.1, 0.1)}, now)
	assert.Equal(t, len(result.Active), result.ActiveCount)

	for _, obj := range result.Active {
		assert.NotEqual(t, frame.StateGone, obj.State)
	}
}

func TestTracker_Update_EmitsZoneTransitionEvents(t *testing.T) {
	cfg := config.Defaults()
	tr := New(cfg)
	now := time.Now()

	result := tr.Update([]frame.Detection{det(0.5, 0.5, 0.1, 0.1)}, now)
	require.Len(t, result.Active, 1)
	assert.Empty(t, result.ZoneEvents, "a freshly spawned track reports its zone via the entry event, not a transition")

	// Move the same object from middle_center into middle_right.
	result = tr.Update([]frame.Detection{det(0.68, 0.5, 0.1, 0.1)}, now.Add(time.Second))
	require.Len(t, result.ZoneEvents, 2)
	assert.Equal(t, frame.EventZoneExit, result.ZoneEvents[0].Kind)
	assert.Equal(t, "middle_center", result.ZoneEvents[0].Zone)
	assert.Equal(t, frame.EventZoneEnter, result.ZoneEvents[1].Kind)
	assert.Equal(t, "middle_right", result.ZoneEvents[1].Zone)

	// No further movement within the same zone emits no new transitions.
	result = tr.Update([]frame.Detection{det(0.81, 0.5, 0.1, 0.1)}, now.Add(2*time.Second))
	assert.Empty(t, result.ZoneEvents)
}

func TestZoneOf(t *testing.T) {
	assert.Equal(t, "top_left", zoneOf(frame.BoundingBox{X: 0.1, Y: 0.1}))
	assert.Equal(t, "middle_center", zoneOf(frame.BoundingBox{X: 0.5, Y: 0.5}))
	assert.Equal(t, "bottom_right", zoneOf(frame.BoundingBox{X: 0.9, Y: 0.9}))
}

func TestClassifyDirection_Stationary(t *testing.T) {
	now := time.Now()
	history := []frame.Position{
		{X: 0.5, Y: 0.5, Timestamp: now},
		{X: 0.5001, Y: 0.5, Timestamp: now.Add(time.Second)},
	}
	assert.Equal(t, frame.DirStationary, classifyDirection(history))
}
