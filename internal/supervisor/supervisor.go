// Package supervisor wires CaptureSource through Alerter into one running
// pipeline (spec.md §5): FrameProducer feeds MotionAnalyzer and
// AdaptiveScheduler, accepted frames are submitted to DetectionCascade via
// InferencePool, results flow through ObjectTracker and Describer/Dedup into
// Alerter, and every stage's output is tapped onto TelemetryBus. Owns the
// top-level context, goroutine lifetimes, and graceful shutdown.
//
// Grounded on orbo's internal/pipeline/detection_pipeline.go
// (DetectionPipeline.run's subscribe/select/stopCh loop and
// DetectionPipelineManager's Close fan-out) and miface's lifecycle
// start/stop pattern, generalized from "one pipeline per camera" to the
// single-stream shape this module analyzes.
package supervisor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/orbo-vision/coreflow/internal/alerter"
	"github.com/orbo-vision/coreflow/internal/capture"
	"github.com/orbo-vision/coreflow/internal/cascade"
	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/corefail"
	"github.com/orbo-vision/coreflow/internal/describer"
	"github.com/orbo-vision/coreflow/internal/frame"
	"github.com/orbo-vision/coreflow/internal/inferencepool"
	"github.com/orbo-vision/coreflow/internal/motionanalysis"
	"github.com/orbo-vision/coreflow/internal/scheduler"
	"github.com/orbo-vision/coreflow/internal/store"
	"github.com/orbo-vision/coreflow/internal/telemetry"
	"github.com/orbo-vision/coreflow/internal/tracker"
)

// shutdownDeadline bounds graceful drain of in-flight work on Stop, per
// spec.md §5.
const shutdownDeadline = 5 * time.Second

// Observer persists Observations/Events beyond the live TelemetryBus taps.
// internal/store.Store satisfies this; nil disables persistence.
type Observer interface {
	SaveObservation(obs *frame.Observation) error
	SaveZoneEvents(events []frame.Event) error
}

var _ Observer = (*store.Store)(nil)

// Supervisor owns every pipeline stage and the goroutines connecting them.
type Supervisor struct {
	cfg *config.Snapshot
	log *log.Logger

	source   *capture.Source
	producer *capture.Producer
	analyzer *motionanalysis.Analyzer
	sched    *scheduler.Scheduler
	cascade  *cascade.Cascade
	pool     *inferencepool.Pool
	tracker  *tracker.Tracker
	describe *describer.Describer
	alert    *alerter.Alerter
	bus      *telemetry.Bus
	observer Observer
	triggers []frame.Trigger

	submitMu   sync.Mutex
	submitTime map[uint64]time.Time

	summaryMu       sync.Mutex
	previousSummary string

	lastFrameMu sync.Mutex
	lastFrameAt time.Time
	sourceURI   string
	fps         int
	hints       capture.Hints

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config bundles the constructed stage dependencies a Supervisor wires
// together; cascade/alerter/observer are built by the caller so it can
// choose sinks (webhook, etc.) and an ObjectDetector/PresenceGuard/
// VisionSummarizer implementation (e.g. internal/inference.Client).
type Config struct {
	Snapshot *config.Snapshot
	Logger   *log.Logger

	Detector cascade.ObjectDetector // nil => motion-only cascade
	Presence cascade.PresenceGuard
	Vision   cascade.VisionSummarizer

	Sinks    []alerter.AlertSink
	Observer Observer // nil disables persistence
	Triggers []frame.Trigger

	SpoolDir string
}

// New constructs every stage and wires the inference pool's results back
// into the tracker/describer/alerter chain, but does not yet capture or
// process frames; call Start to start.
func New(c Config) *Supervisor {
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	cfg := c.Snapshot

	s := &Supervisor{
		cfg:        cfg,
		log:        c.Logger,
		source:     capture.NewSource(c.SpoolDir),
		producer:   capture.NewProducer(c.SpoolDir, cfg.BufferSize, cfg.BufferSize*3),
		analyzer:   motionanalysis.New(cfg),
		sched:      scheduler.New(cfg),
		cascade:    cascade.New(cfg, c.Detector, c.Presence, c.Vision),
		pool:       inferencepool.New(cfg.PoolWorkers, cfg.CallTimeout, cfg.MaxStaleFrames),
		tracker:    tracker.New(cfg),
		describe:   describer.New(),
		alert:      alerter.New(cfg, c.Sinks, c.Logger),
		bus:        telemetry.New(),
		observer:   c.Observer,
		triggers:   c.Triggers,
		submitTime: make(map[uint64]time.Time),
	}
	return s
}

// Telemetry exposes the TelemetryBus for WSHub.Pump and other subscribers.
func (s *Supervisor) Telemetry() *telemetry.Bus { return s.bus }

// Start launches the external decoder and every background goroutine.
// sourceURI/fps/hints are forwarded to CaptureSource.Start per spec.md §4.A.
func (s *Supervisor) Start(ctx context.Context, sourceURI string, fps int, hints capture.Hints) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.sourceURI, s.fps, s.hints = sourceURI, fps, hints

	if _, err := s.source.Start(runCtx, sourceURI, fps, hints); err != nil {
		cancel()
		return err
	}
	s.touchLastFrame()

	pollInterval := time.Second / time.Duration(maxInt(fps*2, 1))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.producer.Run(pollInterval)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWatchdog(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumeFrames(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumeResults(runCtx)
	}()

	return nil
}

// consumeFrames is MotionAnalyzer+AdaptiveScheduler's driving loop: every
// captured frame is analyzed for motion, tapped onto TelemetryBus, and
// submitted to the cascade (via InferencePool) iff the scheduler accepts it.
func (s *Supervisor) consumeFrames(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ref, ok := <-s.producer.Out():
			if !ok {
				return
			}
			s.processFrame(ctx, ref)
		}
	}
}

func (s *Supervisor) touchLastFrame() {
	s.lastFrameMu.Lock()
	s.lastFrameAt = time.Now()
	s.lastFrameMu.Unlock()
}

func (s *Supervisor) processFrame(ctx context.Context, ref *frame.Ref) {
	s.touchLastFrame()

	delta, err := s.analyzer.Analyze(ref)
	if err != nil {
		s.log.Printf("supervisor: motion analysis failed for frame %d: %v", ref.Seq, err)
		return
	}
	s.bus.Publish(telemetry.Event{Kind: telemetry.EventMotion, FrameSeq: ref.Seq, Motion: delta})

	motionAreaPx := totalArea(delta.Regions)
	decision := s.sched.ShouldProcess(delta.MotionPercent, motionAreaPx)
	if !decision.Process {
		return
	}

	s.submitMu.Lock()
	s.submitTime[ref.Seq] = time.Now()
	s.submitMu.Unlock()

	regions := delta.Regions
	// Regions are already in source-frame pixel coordinates (MotionAnalyzer
	// rescales them back from its internal downscaled working resolution),
	// so motion-only detections must normalize against the source
	// dimensions reported on Delta, not the analyzer's downscale target.
	frameW, frameH := delta.SourceWidth, delta.SourceHeight
	s.summaryMu.Lock()
	prevSummary := s.previousSummary
	s.summaryMu.Unlock()

	err = s.pool.Submit(inferencepool.Task{
		FrameSeq: ref.Seq,
		Call: func(callCtx context.Context) (any, error) {
			return s.cascade.Run(callCtx, ref, regions, frameW, frameH, prevSummary), nil
		},
	})
	if err != nil {
		if corefail.Is(err, corefail.Backpressure) {
			s.log.Printf("supervisor: inference pool saturated, dropping frame %d", ref.Seq)
		}
		s.submitMu.Lock()
		delete(s.submitTime, ref.Seq)
		s.submitMu.Unlock()
	}
}

// consumeResults serializes every cascade completion through the tracker,
// describer, and alerter -- kept single-goroutine so their per-instance
// state (active tracks, last summary) never needs its own locking.
func (s *Supervisor) consumeResults(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-s.pool.Results():
			if !ok {
				return
			}
			s.handleResult(ctx, res)
		}
	}
}

func (s *Supervisor) handleResult(ctx context.Context, res inferencepool.Result) {
	s.submitMu.Lock()
	submittedAt, hadSubmit := s.submitTime[res.FrameSeq]
	delete(s.submitTime, res.FrameSeq)
	s.submitMu.Unlock()

	if res.Err != nil {
		s.log.Printf("supervisor: cascade call failed for frame %d: %v", res.FrameSeq, res.Err)
		return
	}
	cascadeResult, ok := res.Value.(*cascade.Result)
	if !ok || cascadeResult == nil {
		return
	}

	now := time.Now()
	if hadSubmit {
		latencyMs := float64(now.Sub(submittedAt)) / float64(time.Millisecond)
		s.sched.RecordLatency(latencyMs, 0)
	}

	s.summaryMu.Lock()
	s.previousSummary = cascadeResult.Summary
	s.summaryMu.Unlock()

	trackingResult := s.tracker.Update(cascadeResult.Detections, now)
	trackingResult.FrameSeq = res.FrameSeq
	s.bus.Publish(telemetry.Event{Kind: telemetry.EventTracking, FrameSeq: res.FrameSeq, Tracking: trackingResult})

	if s.observer != nil {
		events := append(append(append([]frame.Event{}, trackingResult.Entries...), trackingResult.Exits...), trackingResult.ZoneEvents...)
		if err := s.observer.SaveZoneEvents(events); err != nil {
			s.log.Printf("supervisor: persisting zone events failed: %v", err)
		}
	}

	obs := s.describe.Describe(trackingResult, cascadeResult.Summary, s.triggers, now)
	if obs == nil {
		return
	}

	s.bus.Publish(telemetry.Event{Kind: telemetry.EventAlert, FrameSeq: res.FrameSeq, Alert: obs})
	s.alert.Notify(ctx, *obs)

	if s.observer != nil {
		if err := s.observer.SaveObservation(obs); err != nil {
			s.log.Printf("supervisor: persisting observation failed: %v", err)
		}
	}
}

// runWatchdog stops and restarts the decoder if no frame has been produced
// within max_frame_age, with exponential backoff between attempts, per
// spec.md §5's WatchdogTimeout/DecoderDied recovery.
func (s *Supervisor) runWatchdog(ctx context.Context) {
	checkEvery := s.cfg.MaxFrameAge / 2
	if checkEvery <= 0 {
		checkEvery = time.Second
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.lastFrameMu.Lock()
			age := time.Since(s.lastFrameAt)
			s.lastFrameMu.Unlock()
			if age < s.cfg.MaxFrameAge {
				continue
			}

			s.log.Printf("supervisor: no frame in %s, restarting decoder", age)
			_ = s.source.Stop()
			backoff := s.source.RestartBackoff()
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if _, err := s.source.Start(ctx, s.sourceURI, s.fps, s.hints); err != nil {
				s.log.Printf("supervisor: decoder restart failed: %v", err)
				continue
			}
			s.source.ResetBackoff()
			s.touchLastFrame()
		}
	}
}

// Stop cancels every goroutine, waits up to shutdownDeadline for a clean
// drain, then forces remaining stages closed. Mirrors
// DetectionPipelineManager.Close's per-pipeline stop fan-out, generalized
// to this module's single pipeline.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.source.Stop()
	s.producer.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownDeadline):
		s.log.Printf("supervisor: shutdown deadline exceeded, forcing stage closure")
	}

	s.pool.Close()
	s.alert.Close()
	s.bus.Close()
}

func totalArea(regions []frame.Region) int {
	total := 0
	for _, r := range regions {
		total += r.W * r.H
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
