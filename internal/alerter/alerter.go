// Package alerter implements Alerter (spec.md §4.I): dispatches Observations
// to one or more AlertSinks under Instant, Digest, or Summary policies, with
// per-sink independent delivery, cooldown suppression, and retry.
//
// Grounded on original_source/streamware/notifier.py's Notifier: per-mode
// buffering (_events/_last_send_time/_last_message), the instant-mode
// buffered-flush timer (10s, distinct from the digest interval), the
// cooldown-based duplicate suppression in add_event, and per-channel
// independent dispatch in flush() (one channel's failure never blocks
// another's send). Concrete sinks (webhook.go) round out the
// external-delivery surface.
package alerter

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
)

// SinkStatus is the outcome of one AlertSink.Send call.
type SinkStatus int

const (
	StatusOk SinkStatus = iota
	StatusTransientError
	StatusPermanentError
)

// Payload is what an AlertSink delivers for one (possibly batched) send.
type Payload struct {
	Observations []frame.Observation
}

// AlertSink is one delivery channel (webhook, email, slack, telegram, ...).
// Grounded on notifier.py's per-channel _send_* methods, generalized to a
// single interface per spec.md §6.
type AlertSink interface {
	Name() string
	Send(ctx context.Context, payload Payload) SinkStatus
}

// instantFlushInterval mirrors notifier.py's hardcoded 10-second buffered
// flush timer for instant mode, distinct from the configurable digest
// interval.
const instantFlushInterval = 10 * time.Second

// minInstantGap is notifier.py's add_event "minimum 10 seconds between
// sends" spam guard for instant mode.
const minInstantGap = 10 * time.Second

// Alerter buffers Observations and dispatches them to all configured sinks
// under the configured AlerterMode.
type Alerter struct {
	cfg   *config.Snapshot
	sinks []AlertSink
	log   *log.Logger

	mu           sync.Mutex
	pending      []frame.Observation
	lastSendTime time.Time
	lastSummary  string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Alerter and starts its background flush timer (digest
// interval in Digest mode, the fixed 10s buffered-flush timer in Instant
// mode; Summary mode has no timer and only flushes on Close).
func New(cfg *config.Snapshot, sinks []AlertSink, logger *log.Logger) *Alerter {
	if logger == nil {
		logger = log.Default()
	}
	a := &Alerter{cfg: cfg, sinks: sinks, log: logger, stopCh: make(chan struct{})}
	switch cfg.Mode {
	case config.AlerterDigest:
		a.startTimer(time.Duration(cfg.DigestIntervalSec) * time.Second)
	case config.AlerterInstant:
		a.startTimer(instantFlushInterval)
	}
	return a
}

func (a *Alerter) startTimer(interval time.Duration) {
	if interval <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				return
			case <-ticker.C:
				a.Flush(context.Background())
			}
		}
	}()
}

// Notify enqueues an Observation, applying cooldown suppression and, in
// Instant mode, the min-gap buffering rule before dispatching immediately.
func (a *Alerter) Notify(ctx context.Context, obs frame.Observation) {
	now := obs.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	a.mu.Lock()
	if obs.Summary == a.lastSummary && !a.lastSendTime.IsZero() && now.Sub(a.lastSendTime) < time.Duration(a.cfg.CooldownSec)*time.Second {
		a.mu.Unlock()
		return
	}

	if a.cfg.Mode == config.AlerterInstant && !a.lastSendTime.IsZero() && now.Sub(a.lastSendTime) < minInstantGap {
		a.pending = append(a.pending, obs)
		a.mu.Unlock()
		return
	}

	a.pending = append(a.pending, obs)
	instant := a.cfg.Mode == config.AlerterInstant
	a.mu.Unlock()

	if instant {
		a.Flush(ctx)
	}
}

// Flush dispatches all buffered Observations to every sink independently:
// one sink's failure never prevents another sink's send, mirroring
// notifier.py's flush() sequentially calling _send_email/_send_slack/
// _send_telegram/_send_webhook regardless of individual outcomes.
func (a *Alerter) Flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.pending
	a.pending = nil
	a.lastSendTime = time.Now()
	a.lastSummary = batch[len(batch)-1].Summary
	a.mu.Unlock()

	payload := Payload{Observations: batch}
	var wg sync.WaitGroup
	for _, sink := range a.sinks {
		wg.Add(1)
		go func(s AlertSink) {
			defer wg.Done()
			a.dispatch(ctx, s, payload)
		}(sink)
	}
	wg.Wait()
}

// dispatch sends to one sink with jittered-backoff retry on transient
// errors; permanent errors are logged and not retried.
func (a *Alerter) dispatch(ctx context.Context, sink AlertSink, payload Payload) {
	const maxAttempts = 3
	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status := sink.Send(ctx, payload)
		switch status {
		case StatusOk:
			return
		case StatusPermanentError:
			a.log.Printf("alerter: sink %s permanent error, dropping batch of %d", sink.Name(), len(payload.Observations))
			return
		case StatusTransientError:
			if attempt == maxAttempts {
				a.log.Printf("alerter: sink %s exhausted retries after %d attempts", sink.Name(), maxAttempts)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
		}
	}
}

// jitter applies +/-20% jitter to a backoff duration, avoiding thundering
// herds across sinks retrying in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	return d + time.Duration(delta*(2*rand.Float64()-1))
}

// Close stops the background timer and performs a final flush, matching
// notifier.py's stop() (cancel timer, then flush once more).
func (a *Alerter) Close() {
	close(a.stopCh)
	a.wg.Wait()
	a.Flush(context.Background())
}
