// Package config implements the ConfigSnapshot pattern: an all-pointer
// override struct merged against defaults into an immutable snapshot that
// stages receive by value. Modeled on orbo's internal/pipeline/types.go
// CameraDetectionConfig/GlobalDetectionConfig/EffectiveConfig split.
package config

import (
	"time"

	"github.com/orbo-vision/coreflow/internal/corefail"
)

// AlerterMode selects how the Alerter dispatches Observations.
type AlerterMode string

const (
	AlerterInstant AlerterMode = "instant"
	AlerterDigest  AlerterMode = "digest"
	AlerterSummary AlerterMode = "summary"
)

// Config carries overrides for every option in spec.md §6's table. A nil
// field means "inherit the default"; Merge applies overrides onto Defaults().
type Config struct {
	// Ingest
	CaptureFPS   *int
	BufferSize   *int
	SpoolPath    *string
	MaxFrameAge  *time.Duration

	// Motion
	MotionThresholdPct    *float64
	MotionGateThresholdPx *int
	MinRegionAreaPx       *int
	LuminanceDelta        *int
	DownscaleW            *int
	DownscaleH            *int

	// Scheduler
	PeriodicIntervalFrames *int
	MinInterval            *time.Duration
	MaxInterval            *time.Duration

	// Detection
	Classes           []string
	MinConfidence     *float64
	NMSIoU            *float64
	UsePresenceGuard  *bool
	UseVisionSummary  *bool
	StageBudget       *time.Duration

	// Tracker
	IoUThreshold    *float64
	DistanceThreshold *float64
	MaxLostFrames   *int
	MinStableFrames *int

	// Inference
	PoolWorkers    *int
	CallTimeout    *time.Duration
	MaxStaleFrames *int

	// Alerter
	Mode              *AlerterMode
	DigestIntervalSec *int
	CooldownSec       *int
}

// Snapshot is the immutable, fully-resolved view of runtime knobs stages
// receive. Live reconfiguration replaces the snapshot atomically; in-flight
// frames keep the snapshot they started with.
type Snapshot struct {
	CaptureFPS  int
	BufferSize  int
	SpoolPath   string
	MaxFrameAge time.Duration

	MotionThresholdPct    float64
	MotionGateThresholdPx int
	MinRegionAreaPx       int
	LuminanceDelta        int
	DownscaleW            int
	DownscaleH            int

	PeriodicIntervalFrames int
	MinInterval            time.Duration
	MaxInterval            time.Duration

	Classes          []string
	MinConfidence    float64
	NMSIoU           float64
	UsePresenceGuard bool
	UseVisionSummary bool
	StageBudget      time.Duration

	IoUThreshold      float64
	DistanceThreshold float64
	MaxLostFrames     int
	MinStableFrames   int

	PoolWorkers    int
	CallTimeout    time.Duration
	MaxStaleFrames int

	Mode              AlerterMode
	DigestIntervalSec int
	CooldownSec       int
}

// Defaults returns the constants called out in spec.md, most of which trace
// directly to original_source/streamware constants (see SPEC_FULL.md §12).
func Defaults() *Snapshot {
	return &Snapshot{
		CaptureFPS:  5,
		BufferSize:  3,
		SpoolPath:   "/dev/shm/coreflow",
		MaxFrameAge: 3 * (time.Second / 5), // 3 x capture interval at default fps

		MotionThresholdPct:    1.0,
		MotionGateThresholdPx: 50,
		MinRegionAreaPx:       100,
		LuminanceDelta:        25,
		DownscaleW:            320,
		DownscaleH:            240,

		PeriodicIntervalFrames: 10,
		MinInterval:            time.Second,
		MaxInterval:            15 * time.Second,

		Classes:          []string{"person", "car"},
		MinConfidence:    0.25,
		NMSIoU:           0.45,
		UsePresenceGuard: false,
		UseVisionSummary: false,
		StageBudget:      2 * time.Second,

		IoUThreshold:      0.3,
		DistanceThreshold: 0.2,
		MaxLostFrames:     10,
		MinStableFrames:   2,

		PoolWorkers:    4,
		CallTimeout:    5 * time.Second,
		MaxStaleFrames: 5,

		Mode:              AlerterInstant,
		DigestIntervalSec: 60,
		CooldownSec:       300,
	}
}

// Merge overrides base's fields with any non-nil field of c, returning a new
// Snapshot. base is never mutated.
func (c *Config) Merge(base *Snapshot) *Snapshot {
	out := *base
	if c == nil {
		return &out
	}
	if c.CaptureFPS != nil {
		out.CaptureFPS = *c.CaptureFPS
	}
	if c.BufferSize != nil {
		out.BufferSize = *c.BufferSize
	}
	if c.SpoolPath != nil {
		out.SpoolPath = *c.SpoolPath
	}
	if c.MaxFrameAge != nil {
		out.MaxFrameAge = *c.MaxFrameAge
	}
	if c.MotionThresholdPct != nil {
		out.MotionThresholdPct = *c.MotionThresholdPct
	}
	if c.MotionGateThresholdPx != nil {
		out.MotionGateThresholdPx = *c.MotionGateThresholdPx
	}
	if c.MinRegionAreaPx != nil {
		out.MinRegionAreaPx = *c.MinRegionAreaPx
	}
	if c.LuminanceDelta != nil {
		out.LuminanceDelta = *c.LuminanceDelta
	}
	if c.DownscaleW != nil {
		out.DownscaleW = *c.DownscaleW
	}
	if c.DownscaleH != nil {
		out.DownscaleH = *c.DownscaleH
	}
	if c.PeriodicIntervalFrames != nil {
		out.PeriodicIntervalFrames = *c.PeriodicIntervalFrames
	}
	if c.MinInterval != nil {
		out.MinInterval = *c.MinInterval
	}
	if c.MaxInterval != nil {
		out.MaxInterval = *c.MaxInterval
	}
	if c.Classes != nil {
		out.Classes = c.Classes
	}
	if c.MinConfidence != nil {
		out.MinConfidence = *c.MinConfidence
	}
	if c.NMSIoU != nil {
		out.NMSIoU = *c.NMSIoU
	}
	if c.UsePresenceGuard != nil {
		out.UsePresenceGuard = *c.UsePresenceGuard
	}
	if c.UseVisionSummary != nil {
		out.UseVisionSummary = *c.UseVisionSummary
	}
	if c.StageBudget != nil {
		out.StageBudget = *c.StageBudget
	}
	if c.IoUThreshold != nil {
		out.IoUThreshold = *c.IoUThreshold
	}
	if c.DistanceThreshold != nil {
		out.DistanceThreshold = *c.DistanceThreshold
	}
	if c.MaxLostFrames != nil {
		out.MaxLostFrames = *c.MaxLostFrames
	}
	if c.MinStableFrames != nil {
		out.MinStableFrames = *c.MinStableFrames
	}
	if c.PoolWorkers != nil {
		out.PoolWorkers = *c.PoolWorkers
	}
	if c.CallTimeout != nil {
		out.CallTimeout = *c.CallTimeout
	}
	if c.MaxStaleFrames != nil {
		out.MaxStaleFrames = *c.MaxStaleFrames
	}
	if c.Mode != nil {
		out.Mode = *c.Mode
	}
	if c.DigestIntervalSec != nil {
		out.DigestIntervalSec = *c.DigestIntervalSec
	}
	if c.CooldownSec != nil {
		out.CooldownSec = *c.CooldownSec
	}
	return &out
}

// Validate reports corefail.ConfigInvalid on any nonsensical combination.
// Modeled on miface's internal/config/config.go Validate (positive
// dimensions/fps, bounded ratios, bounded ports), adapted to this option set.
func (s *Snapshot) Validate() error {
	const op = "config.Validate"
	switch {
	case s.CaptureFPS <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("capture_fps must be positive"))
	case s.BufferSize <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("buffer_size must be positive"))
	case s.SpoolPath == "":
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("spool_path must be set"))
	case s.DownscaleW <= 0 || s.DownscaleH <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("downscale_wh must be positive"))
	case s.MotionThresholdPct < 0 || s.MotionThresholdPct > 100:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("motion_threshold_pct must be in [0,100]"))
	case s.MinInterval <= 0 || s.MaxInterval <= 0 || s.MinInterval > s.MaxInterval:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("min_interval must be positive and <= max_interval"))
	case s.PeriodicIntervalFrames <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("periodic_interval_frames must be positive"))
	case s.MinConfidence < 0 || s.MinConfidence > 1:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("min_confidence must be in [0,1]"))
	case s.NMSIoU < 0 || s.NMSIoU > 1:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("nms_iou must be in [0,1]"))
	case s.IoUThreshold < 0 || s.IoUThreshold > 1:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("iou_threshold must be in [0,1]"))
	case s.DistanceThreshold < 0 || s.DistanceThreshold > 1:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("distance_threshold must be in [0,1]"))
	case s.MaxLostFrames <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("max_lost_frames must be positive"))
	case s.MinStableFrames <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("min_stable_frames must be positive"))
	case s.PoolWorkers <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("pool_workers must be positive"))
	case s.CallTimeout <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("call_timeout_ms must be positive"))
	case s.Mode != AlerterInstant && s.Mode != AlerterDigest && s.Mode != AlerterSummary:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("alerter mode must be instant, digest, or summary"))
	case s.Mode == AlerterDigest && s.DigestIntervalSec <= 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("digest_interval_s must be positive in digest mode"))
	case s.CooldownSec < 0:
		return corefail.Wrap(op, corefail.ConfigInvalid, errInvalid("cooldown_s must be non-negative"))
	}
	return nil
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func errInvalid(msg string) error { return simpleError(msg) }
