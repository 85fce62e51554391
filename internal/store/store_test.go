package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/frame"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coreflow.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrate_IsIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestSaveAndRecentObservations(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.SaveObservation(&frame.Observation{
		FrameSeq: 1, Timestamp: now, Summary: "1 person", Triggered: true, MatchedTriggers: []string{"person_detected"},
	}))
	require.NoError(t, s.SaveObservation(&frame.Observation{
		FrameSeq: 2, Timestamp: now.Add(time.Second), Summary: "no objects tracked",
	}))

	recs, err := s.RecentObservations(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), recs[0].FrameSeq, "most recent observation first")
	assert.False(t, recs[0].Triggered)
	assert.True(t, recs[1].Triggered)
}

func TestRecentObservations_RespectsLimit(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveObservation(&frame.Observation{
			FrameSeq: uint64(i), Timestamp: now.Add(time.Duration(i) * time.Second), Summary: "x",
		}))
	}

	recs, err := s.RecentObservations(2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSaveZoneEvents_Transactional(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	events := []frame.Event{
		{Kind: frame.EventEntry, TrackID: 1, Zone: "middle_center", Occurred: now},
		{Kind: frame.EventZoneExit, TrackID: 1, Zone: "top_left", Occurred: now.Add(time.Second)},
	}
	require.NoError(t, s.SaveZoneEvents(events))
}

func TestSaveZoneEvents_EmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveZoneEvents(nil))
}
