// Package tracker implements ObjectTracker (spec.md §4.G): greedy IoU +
// center-distance association, direction/zone classification, and
// entry/exit lifecycle.
//
// Grounded on original_source/streamware/object_tracker.py's ObjectTracker
// class: _associate's greedy descending-score matching, TrackedObject.
// _calculate_movement's dominant-axis/edge-proximity direction rules, and
// _update_zone's normalized-thirds zoning. The Go port keeps the algorithm
// and constants, replacing Python dataclasses with plain structs per
// frame.TrackedObject (spec.md's Non-goal explicitly excludes
// Kalman/Deep-SORT-quality tracking, so no smoothing filter -- see
// DESIGN.md on why miface's kalman.go was not reused here).
package tracker

import (
	"math"
	"sort"
	"time"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
)

// Tracker maintains id -> TrackedObject across calls to Update.
type Tracker struct {
	cfg *config.Snapshot

	active   map[int]*frame.TrackedObject
	nextID   int
	everSeen int
}

// New creates a Tracker bound to cfg.
func New(cfg *config.Snapshot) *Tracker {
	return &Tracker{
		cfg:    cfg,
		active: make(map[int]*frame.TrackedObject),
		nextID: 1,
	}
}

type candidate struct {
	score   float64
	trackID int
	detIdx  int
}

// Update associates detections against active tracks, ages unmatched
// tracks, spawns new ones for unmatched detections, and returns the diff
// since the prior call.
func (t *Tracker) Update(detections []frame.Detection, now time.Time) *frame.Result {
	matchedTracks := make(map[int]bool)
	matchedDets := make(map[int]bool)

	// Build every (track, detection) pair whose score exceeds the gate,
	// exactly as object_tracker.py._associate does before sorting.
	var candidates []candidate
	trackIDs := make([]int, 0, len(t.active))
	for id := range t.active {
		trackIDs = append(trackIDs, id)
	}
	sort.Ints(trackIDs)

	for _, id := range trackIDs {
		tr := t.active[id]
		for di, det := range detections {
			iou := tr.Box.IoU(det.Box)
			dist := tr.Box.CenterDistance(det.Box)
			if iou < t.cfg.IoUThreshold && dist > t.cfg.DistanceThreshold {
				continue
			}
			score := iou + (1 - dist)
			candidates = append(candidates, candidate{score: score, trackID: id, detIdx: di})
		}
	}

	// Greedy match in descending score; ties broken by smaller detection
	// index, then smaller track id (deterministic, per spec.md §4.G).
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.detIdx != b.detIdx {
			return a.detIdx < b.detIdx
		}
		return a.trackID < b.trackID
	})

	var newObjects, lostObjects []*frame.TrackedObject
	var entries, exits, zoneEvents []frame.Event

	for _, c := range candidates {
		if matchedTracks[c.trackID] || matchedDets[c.detIdx] {
			continue
		}
		matchedTracks[c.trackID] = true
		matchedDets[c.detIdx] = true

		tr := t.active[c.trackID]
		prevZone := tr.Zone
		t.updateMatched(tr, detections[c.detIdx], now)
		zoneEvents = append(zoneEvents, ZoneTransitions(prevZone, tr.Zone, c.trackID, now)...)
	}

	// Spawn unmatched detections as new tracks.
	for di, det := range detections {
		if matchedDets[di] {
			continue
		}
		id := t.nextID
		t.nextID++
		t.everSeen++

		zone := zoneOf(det.Box)
		obj := &frame.TrackedObject{
			ID:            id,
			Class:         det.Class,
			Box:           det.Box,
			State:         frame.StateNew,
			Direction:     frame.DirEntering,
			Zone:          zone,
			EntryZone:     zone,
			History:       []frame.Position{{X: det.Box.X, Y: det.Box.Y, Timestamp: now}},
			FirstSeen:     now,
			LastSeen:      now,
			FramesTracked: 1,
		}
		t.active[id] = obj
		newObjects = append(newObjects, obj)
		entries = append(entries, frame.Event{Kind: frame.EventEntry, TrackID: id, Occurred: now})
	}

	// Age unmatched tracks; transition to Gone past max_lost_frames.
	for _, id := range trackIDs {
		if matchedTracks[id] {
			continue
		}
		tr := t.active[id]
		tr.FramesLost++
		tr.State = frame.StateLost
		if tr.FramesLost >= t.cfg.MaxLostFrames {
			tr.State = frame.StateGone
			lostObjects = append(lostObjects, tr)
			exits = append(exits, frame.Event{Kind: frame.EventExit, TrackID: id, Occurred: now})
			delete(t.active, id)
		}
	}

	result := &frame.Result{
		Timestamp:        now,
		NewObjects:       newObjects,
		LostObjects:      lostObjects,
		Entries:          entries,
		Exits:            exits,
		ZoneEvents:       zoneEvents,
		TotalTrackedEver: t.everSeen,
	}
	for _, id := range sortedKeys(t.active) {
		result.Active = append(result.Active, t.active[id])
	}
	result.ActiveCount = len(result.Active)
	return result
}

func sortedKeys(m map[int]*frame.TrackedObject) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// updateMatched advances a matched track's box/history/direction/zone and
// stability state.
func (t *Tracker) updateMatched(tr *frame.TrackedObject, det frame.Detection, now time.Time) {
	tr.Box = det.Box
	tr.FramesLost = 0
	tr.LastSeen = now
	tr.FramesTracked++

	tr.History = append(tr.History, frame.Position{X: det.Box.X, Y: det.Box.Y, Timestamp: now})
	if len(tr.History) > frame.MaxHistory {
		tr.History = tr.History[len(tr.History)-frame.MaxHistory:]
	}

	tr.Direction = classifyDirection(tr.History)

	newZone := zoneOf(det.Box)
	if newZone != tr.Zone {
		tr.Zone = newZone
	}

	if tr.State == frame.StateNew && tr.FramesTracked >= t.cfg.MinStableFrames {
		tr.State = frame.StateTracked
	} else if tr.State == frame.StateLost {
		tr.State = frame.StateTracked
	}
}

// ZoneTransitions compares the zone before and after updateMatched and
// returns the ZoneEnter/ZoneExit events for that change, called from Update
// for every matched track.
func ZoneTransitions(prevZone, newZone string, trackID int, now time.Time) []frame.Event {
	if prevZone == newZone {
		return nil
	}
	var events []frame.Event
	if prevZone != "" {
		events = append(events, frame.Event{Kind: frame.EventZoneExit, TrackID: trackID, Zone: prevZone, Occurred: now})
	}
	events = append(events, frame.Event{Kind: frame.EventZoneEnter, TrackID: trackID, Zone: newZone, Occurred: now})
	return events
}

// zoneOf computes one of nine zones from normalized-thirds of the frame
// (horizontal x vertical), per spec.md §9's resolved open question.
func zoneOf(b frame.BoundingBox) string {
	var h, v string
	switch {
	case b.X < 0.33:
		h = "left"
	case b.X < 0.66:
		h = "center"
	default:
		h = "right"
	}
	switch {
	case b.Y < 0.33:
		v = "top"
	case b.Y < 0.66:
		v = "middle"
	default:
		v = "bottom"
	}
	return v + "_" + h
}

const (
	minSpeed          = 0.01
	dominanceRatio    = 1.5
	dominantEdgeHigh  = 0.85
	dominantEdgeLow   = 0.15
	diagonalEdgeHigh  = 0.8
	diagonalEdgeLow   = 0.2
)

// classifyDirection implements object_tracker.py's _calculate_movement:
// average velocity over the last n<=5 positions, then dominant-axis /
// diagonal classification with edge-proximity overrides.
func classifyDirection(history []frame.Position) frame.Direction {
	n := len(history)
	if n < 2 {
		return frame.DirUnknown
	}
	if n > 5 {
		history = history[n-5:]
		n = 5
	}

	first, last := history[0], history[n-1]
	dt := last.Timestamp.Sub(first.Timestamp).Seconds()
	if dt <= 0 {
		return frame.DirUnknown
	}

	vx := (last.X - first.X) / dt
	vy := (last.Y - first.Y) / dt
	speed := math.Hypot(vx, vy)

	if speed < minSpeed {
		return frame.DirStationary
	}

	absVx, absVy := math.Abs(vx), math.Abs(vy)
	x, y := last.X, last.Y

	switch {
	case absVx > dominanceRatio*absVy:
		if vx > 0 {
			if x > dominantEdgeHigh {
				return frame.DirExiting
			}
			return frame.DirRight
		}
		if x < dominantEdgeLow {
			return frame.DirExiting
		}
		return frame.DirLeft

	case absVy > dominanceRatio*absVx:
		if vy > 0 {
			if y > dominantEdgeHigh {
				return frame.DirApproaching
			}
			return frame.DirDown
		}
		if y < dominantEdgeLow {
			return frame.DirLeaving
		}
		return frame.DirUp

	default:
		// Diagonal: classify by edge proximity using the wider 0.8/0.2 band
		// (object_tracker.py's diagonal fallback, distinct from the
		// dominant-path 0.85/0.15 thresholds -- see SPEC_FULL.md §12).
		// frame.Direction has no "Moving" value (object_tracker.py's own
		// fallback label, absent from spec.md §3's enum), so the no-edge
		// case falls back to whichever axis leans larger, same as the
		// dominant-path branches above.
		switch {
		case x > diagonalEdgeHigh || y > diagonalEdgeHigh:
			return frame.DirExiting
		case x < diagonalEdgeLow || y < diagonalEdgeLow:
			return frame.DirApproaching
		case absVx >= absVy:
			if vx > 0 {
				return frame.DirRight
			}
			return frame.DirLeft
		default:
			if vy > 0 {
				return frame.DirDown
			}
			return frame.DirUp
		}
	}
}
