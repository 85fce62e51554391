// Package inferencepool implements InferencePool (spec.md §4.F): a
// fixed-size worker pool serializing outbound inference calls, with a
// bounded queue, per-call timeouts, and results keyed by frame number so
// consumers can discard stale arrivals.
//
// Grounded on original_source/streamware/async_llm.py's AsyncLLM
// (ThreadPoolExecutor + `_pending: Dict[frame_num, Future]` + `_results`
// queue split) and orbo's internal/detection/grpc_detector.go (the
// preferred-transport external-call shape this pool wraps). Per spec.md
// §9's "Coroutine-style async LLM" design note, the coroutine/future pair
// is replaced here by channels: a bounded work queue and a results channel
// keyed by frame number.
package inferencepool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbo-vision/coreflow/internal/corefail"
)

// Task is one unit of inference work submitted to the pool.
type Task struct {
	FrameSeq uint64
	Call     func(ctx context.Context) (any, error)
}

// Result is one completed (or failed/timed-out) inference call.
type Result struct {
	FrameSeq uint64
	Value    any
	Err      error
	TimedOut bool
}

// Pool is a fixed-concurrency worker pool with a bounded backlog.
type Pool struct {
	workers     int
	timeout     time.Duration
	maxStale    int

	queue   chan Task
	results chan Result

	currentFrame atomic.Uint64
	timedOut     atomic.Uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Pool with the given worker count, bounded queue (2xN per
// spec.md §4.F), per-call timeout, and max_stale_frames staleness window.
func New(workers int, callTimeout time.Duration, maxStaleFrames int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers:  workers,
		timeout:  callTimeout,
		maxStale: maxStaleFrames,
		queue:    make(chan Task, 2*workers),
		results:  make(chan Result, 2*workers),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

// Results returns the channel completed/timed-out/cancelled calls are
// published on, keyed by FrameSeq.
func (p *Pool) Results() <-chan Result { return p.results }

// Submit enqueues a task. Returns corefail.Backpressure if the queue is
// full; the caller chooses whether to drop or retry, per spec.md §4.F.
func (p *Pool) Submit(task Task) error {
	storeIfGreater(&p.currentFrame, task.FrameSeq)
	select {
	case p.queue <- task:
		return nil
	default:
		return corefail.New("inferencepool.Submit", corefail.Backpressure)
	}
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(task)
		}
	}
}

func (p *Pool) execute(task Task) {
	if p.ctx.Err() != nil {
		return // pool closed: a task still queued is dropped, not run
	}
	callCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := task.Call(callCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if p.isStale(task.FrameSeq) {
			return // stale result, discard without publishing
		}
		p.publish(Result{FrameSeq: task.FrameSeq, Value: o.val, Err: o.err})
	case <-callCtx.Done():
		p.timedOut.Add(1)
		p.publish(Result{FrameSeq: task.FrameSeq, Err: corefail.New("inferencepool.execute", corefail.InferenceTimeout), TimedOut: true})
		// The in-flight call is allowed to complete up to its timeout; once
		// callCtx is cancelled above (via defer) the goroutine's own Call
		// implementation is responsible for observing ctx.Done().
	}
}

func (p *Pool) isStale(frameSeq uint64) bool {
	current := p.currentFrame.Load()
	if current <= uint64(p.maxStale) {
		return false
	}
	return frameSeq < current-uint64(p.maxStale)
}

// storeIfGreater atomically advances a to v if v is larger, via CAS retry.
func storeIfGreater(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v <= cur {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (p *Pool) publish(r Result) {
	select {
	case p.results <- r:
	default:
		// Results channel full: drop rather than block a worker goroutine.
	}
}

// TimedOutCount returns the number of calls that exceeded their timeout.
func (p *Pool) TimedOutCount() uint64 { return p.timedOut.Load() }

// Close cancels pending tasks; in-flight calls are allowed to complete up
// to their timeout, per spec.md §5's cancellation rules.
func (p *Pool) Close() {
	p.cancel()
	close(p.queue)
	p.wg.Wait()
	close(p.results)
}
