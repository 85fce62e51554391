// Package frame holds the data types shared across every pipeline stage:
// FrameRef, MotionRegion, FrameDelta, BoundingBox, Detection, and the
// tracking/observation/trigger types downstream stages exchange.
package frame

import (
	"math"
	"time"
)

// Ref is a handle to one decoded image. Owned exclusively by whichever
// stage currently holds it; released after the tracker consumes it or the
// spool evicts it.
type Ref struct {
	Seq       uint64 // monotonic from 1
	Captured  time.Time
	Path      string // spool file path
	Data      []byte // in-memory bytes, when the stage already has them
	Width     int
	Height    int
}

// Region is an axis-aligned rectangle in pixels with a confidence derived
// from the changed-pixel ratio within it. Lifetime: one frame.
type Region struct {
	X, Y, W, H int
	Confidence float32
}

// SkipReason names why AdaptiveScheduler chose to skip a frame.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipMotionGate SkipReason = "motion_gate"
	SkipLowMotion  SkipReason = "low_motion"
)

// Delta is the per-frame motion summary emitted by MotionAnalyzer and
// enriched downstream. Immutable after emission.
type Delta struct {
	FrameSeq      uint64
	Timestamp     time.Time
	MotionPercent float64 // [0, 100]
	Regions       []Region
	Blobs         []BoundingBox
	Events        []Event
	SourceWidth   int // decoded source-frame pixel dimensions, for
	SourceHeight  int // normalizing Regions (which are in source pixels)
}

// BoundingBox uses normalized center (x, y) in [0,1] and normalized size
// (w, h) in (0,1]. Partially-out-of-frame boxes are clamped at consumers.
type BoundingBox struct {
	X, Y, W, H float64
}

// Clamp returns bb adjusted so that x±w/2 and y±h/2 fall within [0,1].
func (bb BoundingBox) Clamp() BoundingBox {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	left := clamp(bb.X - bb.W/2)
	right := clamp(bb.X + bb.W/2)
	top := clamp(bb.Y - bb.H/2)
	bottom := clamp(bb.Y + bb.H/2)
	return BoundingBox{
		X: (left + right) / 2,
		Y: (top + bottom) / 2,
		W: right - left,
		H: bottom - top,
	}
}

// IoU returns the intersection-over-union of two boxes.
func (bb BoundingBox) IoU(other BoundingBox) float64 {
	aLeft, aRight := bb.X-bb.W/2, bb.X+bb.W/2
	aTop, aBottom := bb.Y-bb.H/2, bb.Y+bb.H/2
	bLeft, bRight := other.X-other.W/2, other.X+other.W/2
	bTop, bBottom := other.Y-other.H/2, other.Y+other.H/2

	interLeft, interTop := max(aLeft, bLeft), max(aTop, bTop)
	interRight, interBottom := min(aRight, bRight), min(aBottom, bBottom)
	if interRight <= interLeft || interBottom <= interTop {
		return 0
	}
	interArea := (interRight - interLeft) * (interBottom - interTop)
	aArea := bb.W * bb.H
	bArea := other.W * other.H
	union := aArea + bArea - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// CenterDistance returns the Euclidean distance between the two boxes' centers.
func (bb BoundingBox) CenterDistance(other BoundingBox) float64 {
	dx := bb.X - other.X
	dy := bb.Y - other.Y
	return math.Hypot(dx, dy)
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Detection is a BoundingBox with a class label, confidence, and optional
// class id, as produced by DetectionCascade stages.
type Detection struct {
	Box        BoundingBox
	Class      string
	Confidence float64
	ClassID    *int
}

// State is a TrackedObject's lifecycle state.
type State string

const (
	StateNew     State = "new"
	StateTracked State = "tracked"
	StateLost    State = "lost"
	StateGone    State = "gone"
)

// Direction is a TrackedObject's classified motion direction.
type Direction string

const (
	DirUnknown     Direction = "unknown"
	DirStationary  Direction = "stationary"
	DirLeft        Direction = "left"
	DirRight       Direction = "right"
	DirUp          Direction = "up"
	DirDown        Direction = "down"
	DirApproaching Direction = "approaching"
	DirLeaving     Direction = "leaving"
	DirEntering    Direction = "entering"
	DirExiting     Direction = "exiting"
)

// Position is one sample in a TrackedObject's position history.
type Position struct {
	X, Y      float64
	Timestamp time.Time
}

// MaxHistory bounds TrackedObject.History's length (H=30 per spec.md §3).
const MaxHistory = 30

// TrackedObject is a persistent identity maintained by ObjectTracker.
type TrackedObject struct {
	ID            int
	Class         string
	Box           BoundingBox
	State         State
	Direction     Direction
	Zone          string
	EntryZone     string
	History       []Position
	FirstSeen     time.Time
	LastSeen      time.Time
	FramesTracked int
	FramesLost    int
}

// EventKind names the kinds of Event a tracker or describer may emit.
type EventKind string

const (
	EventEntry     EventKind = "entry"
	EventExit      EventKind = "exit"
	EventZoneEnter EventKind = "zone_enter"
	EventZoneExit  EventKind = "zone_exit"
)

// Event is a single tracker-originated occurrence attached to a Delta or
// TrackingResult.
type Event struct {
	Kind     EventKind
	TrackID  int
	Zone     string
	Occurred time.Time
}

// Result is the active tracked set plus the diff since the prior frame.
type Result struct {
	FrameSeq         uint64
	Timestamp        time.Time
	Active           []*TrackedObject
	NewObjects       []*TrackedObject
	LostObjects      []*TrackedObject
	Entries          []Event
	Exits            []Event
	ZoneEvents       []Event
	TotalTrackedEver int
	ActiveCount      int
}

// Observation is one emitted narration unit.
type Observation struct {
	Timestamp       time.Time
	FrameSeq        uint64
	Summary         string // <= 80 chars
	Description     string // optional long form
	Triggered       bool
	MatchedTriggers []string
	ImageRef        string
}

// TriggerAction names what a Trigger does when it fires.
type TriggerAction string

const (
	ActionNotify TriggerAction = "notify"
	ActionWebhook TriggerAction = "webhook"
	ActionRecord  TriggerAction = "record"
)

// Trigger is a condition descriptor interpreted by DetectionCascade/Describer.
type Trigger struct {
	Label         string
	Pattern       string
	Action        TriggerAction
	CooldownSecs  int
	LastTriggered time.Time
}
