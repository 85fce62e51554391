// Package scheduler implements AdaptiveScheduler (spec.md §4.D): the
// should_process decision function plus cadence recomputation from measured
// end-to-end latency.
//
// Grounded on orbo's internal/pipeline/strategies/motion.go and hybrid.go
// (forced-vs-gated ShouldDetect priority ordering, cooldown bookkeeping) and
// original_source/streamware/performance_manager.py's PerformanceStats.
// get_recommended_interval / PerformanceManager.get_adaptive_interval (the
// exact ×1.2/×0.5/×2.0 cadence formula spec.md §4.D references).
package scheduler

import (
	"sync"
	"time"

	"github.com/orbo-vision/coreflow/internal/config"
)

// Decision is the outcome of should_process for one frame.
type Decision struct {
	Process bool
	Reason  ReasonKind
}

// ReasonKind names why a frame was processed or skipped.
type ReasonKind string

const (
	ReasonForced    ReasonKind = "forced"
	ReasonNormal    ReasonKind = "normal"
	ReasonMotionGate ReasonKind = "motion_gate"
	ReasonLowMotion ReasonKind = "low_motion"
)

// Scheduler tracks frames-since-last-processed and a rolling latency window
// to recompute the target inter-frame interval every T frames.
type Scheduler struct {
	cfg *config.Snapshot

	mu                    sync.Mutex
	processedAny          bool
	framesSinceProcessed  int
	framesSinceRecompute  int
	recomputeEvery        int
	latencies             []float64 // milliseconds, capped window
	targetInterval        time.Duration
}

// New creates a Scheduler bound to cfg. T (recompute period) defaults to 10
// frames per spec.md §4.D.
func New(cfg *config.Snapshot) *Scheduler {
	return &Scheduler{
		cfg:            cfg,
		recomputeEvery: 10,
		targetInterval: cfg.MinInterval,
	}
}

// ShouldProcess applies the priority-ordered rules of spec.md §4.D:
//  0. no frame has ever been processed -> Process(Forced) (the first frame
//     always has an empty region set, which would otherwise fail the
//     motion gate before rule 1's counter ever has a chance to fire)
//  1. frames_since_last_processed >= periodic_interval -> Process(Forced)
//  2. motion_area_px < motion_gate_threshold -> Skip(MotionGate)
//  3. motion_percent < skip_motion_threshold -> Skip(LowMotion)
//  4. otherwise -> Process(Normal)
func (s *Scheduler) ShouldProcess(motionPercent float64, motionAreaPx int) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.processedAny {
		s.processedAny = true
		s.framesSinceProcessed = 0
		return Decision{Process: true, Reason: ReasonForced}
	}

	// Counts the frames since the last processed one, this frame included.
	s.framesSinceProcessed++
	if s.framesSinceProcessed >= s.cfg.PeriodicIntervalFrames {
		s.framesSinceProcessed = 0
		return Decision{Process: true, Reason: ReasonForced}
	}

	if motionAreaPx < s.cfg.MotionGateThresholdPx {
		return Decision{Process: false, Reason: ReasonMotionGate}
	}

	if motionPercent < s.cfg.MotionThresholdPct {
		return Decision{Process: false, Reason: ReasonLowMotion}
	}

	s.framesSinceProcessed = 0
	return Decision{Process: true, Reason: ReasonNormal}
}

// RecordLatency feeds one end-to-end processing latency (ms) into the
// rolling window used by cadence recomputation. Call once per Process
// decision, after the frame has finished its pipeline traversal.
func (s *Scheduler) RecordLatency(ms float64, motionPercent float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	const window = 20 // bounded window, mirrors PerformanceStats' capped-at-20 lists
	s.latencies = append(s.latencies, ms)
	if len(s.latencies) > window {
		s.latencies = s.latencies[len(s.latencies)-window:]
	}

	s.framesSinceRecompute++
	if s.framesSinceRecompute < s.recomputeEvery {
		return s.targetInterval
	}
	s.framesSinceRecompute = 0

	s.targetInterval = recomputeInterval(s.latencies, motionPercent, s.cfg.MinInterval, s.cfg.MaxInterval)
	return s.targetInterval
}

// TargetInterval returns the most recently computed cadence hint. Consumed
// by FrameProducer as a hint; not enforced downstream.
func (s *Scheduler) TargetInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetInterval
}

// recomputeInterval implements the formula from SPEC_FULL.md §12
// (streamware/performance_manager.py get_adaptive_interval +
// PerformanceStats.get_recommended_interval), restated from spec.md §4.D:
//
//	target = clamp(min, max, avg_total_ms * 1.2 / 1000)
//	high motion (>20%)   compresses target by x0.5
//	sustained low motion (<1%) expands target by x2.0
//	if recommended > target*1.5 { target = recommended }
func recomputeInterval(latenciesMs []float64, motionPercent float64, minI, maxI time.Duration) time.Duration {
	avg := average(latenciesMs)
	recommendedSec := clamp(avg/1000*1.2, 1.0, 15.0)

	baseSec := float64(minI) / float64(time.Second)
	if baseSec <= 0 {
		baseSec = recommendedSec
	}

	switch {
	case motionPercent > 20:
		baseSec *= 0.5
	case motionPercent < 1:
		baseSec *= 2.0
	}

	if recommendedSec > baseSec*1.5 {
		baseSec = recommendedSec
	}

	result := time.Duration(baseSec * float64(time.Second))
	if result < minI {
		result = minI
	}
	if result > maxI {
		result = maxI
	}
	return result
}

func average(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Reset clears frame-since-processed bookkeeping (e.g. on decoder restart).
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedAny = false
	s.framesSinceProcessed = 0
	s.framesSinceRecompute = 0
	s.latencies = nil
}
