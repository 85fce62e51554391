// Package ws adapts TelemetryBus onto WebSocket connections for live
// dashboards, grounded on orbo's internal/ws package (DetectionHub,
// Handler, message types), generalized from orbo's per-camera broadcast
// model to this module's single analysis stream.
package ws

import "time"

// MotionMessage mirrors frame.Delta for wire delivery.
type MotionMessage struct {
	Type          string    `json:"type"` // "motion"
	Timestamp     time.Time `json:"timestamp"`
	FrameSeq      uint64    `json:"frame_seq"`
	MotionPercent float64   `json:"motion_percent"`
	RegionCount   int       `json:"region_count"`
}

// NewMotionMessage builds a MotionMessage.
func NewMotionMessage(frameSeq uint64, motionPercent float64, regionCount int) *MotionMessage {
	return &MotionMessage{Type: "motion", Timestamp: time.Now(), FrameSeq: frameSeq, MotionPercent: motionPercent, RegionCount: regionCount}
}

// TrackedSummary is the wire-sized projection of a frame.TrackedObject.
type TrackedSummary struct {
	ID        int       `json:"id"`
	Class     string    `json:"class"`
	BBox      []float64 `json:"bbox"` // [x, y, w, h] normalized
	Direction string    `json:"direction"`
	Zone      string    `json:"zone"`
}

// TrackingMessage mirrors frame.Result for wire delivery.
type TrackingMessage struct {
	Type        string           `json:"type"` // "tracking"
	Timestamp   time.Time        `json:"timestamp"`
	FrameSeq    uint64           `json:"frame_seq"`
	ActiveCount int              `json:"active_count"`
	Objects     []TrackedSummary `json:"objects"`
	Entries     int              `json:"entries"`
	Exits       int              `json:"exits"`
}

// NewTrackingMessage builds a TrackingMessage with an empty Objects slice.
func NewTrackingMessage(frameSeq uint64) *TrackingMessage {
	return &TrackingMessage{Type: "tracking", Timestamp: time.Now(), FrameSeq: frameSeq, Objects: make([]TrackedSummary, 0)}
}

// AddObject appends one tracked object's wire summary.
func (m *TrackingMessage) AddObject(id int, class string, bbox []float64, direction, zone string) {
	m.Objects = append(m.Objects, TrackedSummary{ID: id, Class: class, BBox: bbox, Direction: direction, Zone: zone})
}

// AlertMessage mirrors frame.Observation for wire delivery.
type AlertMessage struct {
	Type      string   `json:"type"` // "alert"
	Timestamp time.Time `json:"timestamp"`
	FrameSeq  uint64    `json:"frame_seq"`
	Summary   string    `json:"summary"`
	Triggered bool      `json:"triggered"`
}

// NewAlertMessage builds an AlertMessage.
func NewAlertMessage(frameSeq uint64, summary string, triggered bool) *AlertMessage {
	return &AlertMessage{Type: "alert", Timestamp: time.Now(), FrameSeq: frameSeq, Summary: summary, Triggered: triggered}
}
