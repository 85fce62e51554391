// Package cascade implements DetectionCascade (spec.md §4.E): progressively
// expensive detection stages gated by motion and presence checks, each
// stage budget-bound and short-circuiting.
//
// Grounded on orbo's internal/pipeline/detection_pipeline.go runSequential
// (primary-detector loop, then conditional-detector loop keyed on
// ConditionalDetector.ShouldRun) and internal/pipeline/interfaces.go's
// Detector/ConditionalDetector contract, extended with the stage_timings /
// StageBudgetExceeded semantics spec.md §4.E calls for beyond orbo's
// "abort entirely if primary fails" behavior.
package cascade

import (
	"context"
	"time"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/corefail"
	"github.com/orbo-vision/coreflow/internal/frame"
)

// ObjectDetector is the external interface of spec.md §6: Detect(frame,
// opts) -> []Detection.
type ObjectDetector interface {
	Detect(ctx context.Context, ref *frame.Ref, classes []string, minConfidence, nmsIoU float64) ([]frame.Detection, error)
}

// PresenceGuard is a cheap text-only check over the previous frame's summary
// that may short-circuit with PresenceAbsent (spec.md §4.E stage 3),
// grounded on streamware/smart_detector.py's _llm_quick_check.
type PresenceGuard interface {
	CheckPresence(ctx context.Context, previousSummary string) (present bool, err error)
}

// VisionSummarizer is the vision-language interface of spec.md §6:
// DescribeImage(frame, prompt, opts) -> string | Error.
type VisionSummarizer interface {
	DescribeImage(ctx context.Context, ref *frame.Ref, prompt string, maxTokens int) (string, error)
}

// StageName identifies one cascade stage for timing/telemetry purposes.
type StageName string

const (
	StageMotionOnly  StageName = "motion_only"
	StageObject      StageName = "object_detector"
	StagePresence    StageName = "presence_guard"
	StageVisionLang  StageName = "vision_summary"
)

// StageTiming records how long a stage took and whether it was cancelled
// for exceeding stage_budget_ms.
type StageTiming struct {
	Stage        StageName
	Duration     time.Duration
	Exceeded     bool
}

// Result is the CascadeResult of spec.md §4.E.
type Result struct {
	HasTarget  bool
	Detections []frame.Detection
	Summary    string
	Reason     string
	Timings    []StageTiming
}

// Cascade runs the ordered chain of cheap->expensive detection stages.
type Cascade struct {
	cfg       *config.Snapshot
	detector  ObjectDetector // nil => motion-only mode
	presence  PresenceGuard  // nil => stage 3 skipped
	vision    VisionSummarizer // nil => stage 4 skipped
}

// New builds a Cascade. detector/presence/vision may be nil to disable
// their stages (spec.md §6's use_presence_guard/use_vision_summary options
// gate stages 3/4; a nil detector makes stage 1 the terminal stage).
func New(cfg *config.Snapshot, detector ObjectDetector, presence PresenceGuard, vision VisionSummarizer) *Cascade {
	return &Cascade{cfg: cfg, detector: detector, presence: presence, vision: vision}
}

// Run executes the cascade for one frame. regions are the MotionRegions
// from MotionAnalyzer (in source-frame pixel coordinates); frameW/frameH are
// the source frame's dimensions, used to normalize motion-only boxes.
// previousSummary is the last accepted Observation's summary, consumed by
// the presence guard.
func (c *Cascade) Run(ctx context.Context, ref *frame.Ref, regions []frame.Region, frameW, frameH int, previousSummary string) *Result {
	result := &Result{}

	// Stage 1: motion-only, used whenever no object detector is configured.
	if c.detector == nil {
		t0 := time.Now()
		dets := motionOnlyDetections(regions, frameW, frameH)
		result.Timings = append(result.Timings, StageTiming{Stage: StageMotionOnly, Duration: time.Since(t0)})
		result.HasTarget = len(dets) > 0
		result.Detections = dets
		result.Reason = "motion_only"
		return result
	}

	// Stage 2: object detector, budget-bound.
	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageBudget)
	t0 := time.Now()
	dets, err := c.detector.Detect(stageCtx, ref, c.cfg.Classes, c.cfg.MinConfidence, c.cfg.NMSIoU)
	cancel()
	exceeded := stageCtx.Err() == context.DeadlineExceeded
	result.Timings = append(result.Timings, StageTiming{Stage: StageObject, Duration: time.Since(t0), Exceeded: exceeded})

	if exceeded {
		// Absence is treated as "unknown": the subsequent stage proceeds as
		// if the prior had no opinion, per spec.md §4.E's contract.
		result.Reason = string(corefail.StageBudgetExceeded)
	} else if err != nil {
		result.Reason = "object_detector_error"
	} else {
		result.Detections = dets
		result.HasTarget = len(dets) > 0
	}

	// Stage 3: presence guard (optional), may short-circuit.
	if c.cfg.UsePresenceGuard && c.presence != nil {
		guardCtx, guardCancel := context.WithTimeout(ctx, c.cfg.StageBudget)
		t1 := time.Now()
		present, perr := c.presence.CheckPresence(guardCtx, previousSummary)
		guardCancel()
		presenceExceeded := guardCtx.Err() == context.DeadlineExceeded
		result.Timings = append(result.Timings, StageTiming{Stage: StagePresence, Duration: time.Since(t1), Exceeded: presenceExceeded})

		if !presenceExceeded && perr == nil && !present {
			result.Reason = "presence_absent"
			result.HasTarget = false
			return result
		}
	}

	// Stage 4: vision-language summary (optional).
	if c.cfg.UseVisionSummary && c.vision != nil && result.HasTarget {
		visionCtx, visionCancel := context.WithTimeout(ctx, c.cfg.StageBudget)
		t2 := time.Now()
		summary, verr := c.vision.DescribeImage(visionCtx, ref, "Briefly describe what is happening in this frame.", 64)
		visionCancel()
		visionExceeded := visionCtx.Err() == context.DeadlineExceeded
		result.Timings = append(result.Timings, StageTiming{Stage: StageVisionLang, Duration: time.Since(t2), Exceeded: visionExceeded})

		if !visionExceeded && verr == nil {
			result.Summary = summary
		}
	}

	if result.Reason == "" {
		result.Reason = "ok"
	}
	return result
}

// motionOnlyDetections treats each MotionRegion as a detection with class
// "motion" and confidence derived from density, per spec.md §4.E stage 1.
func motionOnlyDetections(regions []frame.Region, frameW, frameH int) []frame.Detection {
	if len(regions) == 0 || frameW <= 0 || frameH <= 0 {
		return nil
	}
	dets := make([]frame.Detection, 0, len(regions))
	for _, r := range regions {
		cx := (float64(r.X) + float64(r.W)/2) / float64(frameW)
		cy := (float64(r.Y) + float64(r.H)/2) / float64(frameH)
		w := float64(r.W) / float64(frameW)
		h := float64(r.H) / float64(frameH)
		dets = append(dets, frame.Detection{
			Class:      "motion",
			Confidence: float64(r.Confidence),
			Box:        frame.BoundingBox{X: cx, Y: cy, W: w, H: h}.Clamp(),
		})
	}
	return dets
}
