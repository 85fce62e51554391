package describer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/frame"
)

func obj(id int, class string) *frame.TrackedObject {
	return &frame.TrackedObject{ID: id, Class: class}
}

func TestDescribe_FirstCallAlwaysEmits(t *testing.T) {
	d := New()
	now := time.Now()
	result := &frame.Result{FrameSeq: 1, Active: []*frame.TrackedObject{obj(1, "person")}, ActiveCount: 1}

	obs := d.Describe(result, "", nil, now)
	require.NotNil(t, obs)
	assert.Equal(t, "1 person", obs.Summary)
}

func TestDescribe_NoObjectsSummary(t *testing.T) {
	d := New()
	obs := d.Describe(&frame.Result{}, "", nil, time.Now())
	require.NotNil(t, obs)
	assert.Equal(t, "no objects tracked", obs.Summary)
}

func TestDescribe_SuppressesUnchangedState(t *testing.T) {
	d := New()
	now := time.Now()
	result := &frame.Result{FrameSeq: 1, Active: []*frame.TrackedObject{obj(1, "person")}, ActiveCount: 1}

	first := d.Describe(result, "", nil, now)
	require.NotNil(t, first)

	// Same ids, same cascade-less summary next frame: nothing materially
	// changed, so no second Observation should be emitted.
	second := d.Describe(result, "", nil, now.Add(time.Second))
	assert.Nil(t, second)
}

func TestDescribe_EmitsWhenIDSetChanges(t *testing.T) {
	d := New()
	now := time.Now()
	result := &frame.Result{FrameSeq: 1, Active: []*frame.TrackedObject{obj(1, "person")}, ActiveCount: 1}
	d.Describe(result, "", nil, now)

	result2 := &frame.Result{FrameSeq: 2, Active: []*frame.TrackedObject{obj(1, "person"), obj(2, "car")}, ActiveCount: 2}
	obs := d.Describe(result2, "", nil, now.Add(time.Second))
	require.NotNil(t, obs, "a newly tracked id must force an Observation even if the summary text overlaps")
}

func TestDescribe_EmitsWhenCascadeSummaryDiffersMaterially(t *testing.T) {
	d := New()
	now := time.Now()
	result := &frame.Result{FrameSeq: 1, ActiveCount: 1, Active: []*frame.TrackedObject{obj(1, "person")}}

	d.Describe(result, "a person stands near the door", nil, now)
	obs := d.Describe(result, "a dog runs across the yard", nil, now.Add(time.Second))
	require.NotNil(t, obs, "an unrelated summary should count as materially different")
}

func TestDescribe_TruncatesLongSummary(t *testing.T) {
	d := New()
	longSummary := ""
	for i := 0; i < 20; i++ {
		longSummary += "a very long description of the scene "
	}
	obs := d.Describe(&frame.Result{ActiveCount: 1, Active: []*frame.TrackedObject{obj(1, "person")}}, longSummary, nil, time.Now())
	require.NotNil(t, obs)
	assert.LessOrEqual(t, len(obs.Summary), 80)
}

func TestDescribe_TriggerMatchAndCooldown(t *testing.T) {
	d := New()
	now := time.Now()
	triggers := []frame.Trigger{{Label: "person_detected", Pattern: "person", Action: frame.ActionNotify, CooldownSecs: 60}}
	result := &frame.Result{ActiveCount: 1, Active: []*frame.TrackedObject{obj(1, "person")}}

	obs := d.Describe(result, "", triggers, now)
	require.NotNil(t, obs)
	assert.True(t, obs.Triggered)
	assert.Equal(t, []string{"person_detected"}, obs.MatchedTriggers)

	// Force a second emission (id set change) within the cooldown window;
	// the trigger must not re-fire.
	result2 := &frame.Result{ActiveCount: 2, Active: []*frame.TrackedObject{obj(1, "person"), obj(2, "person")}}
	obs2 := d.Describe(result2, "", triggers, now.Add(5*time.Second))
	require.NotNil(t, obs2)
	assert.False(t, obs2.Triggered, "trigger should be suppressed during its cooldown window")
}
