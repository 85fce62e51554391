package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbo-vision/coreflow/internal/frame"
)

// Producer detects new frames in a spool directory and emits frame.Ref into
// a bounded channel, dropping the oldest queued frame on overflow. Every
// emitted frame carries a monotonically increasing frame number, and after
// emitting frame N the producer removes any spooled frame numbered < N-K.
//
// Grounded on orbo's internal/pipeline/frame_provider.go cameraCapture
// (broadcastFrame's per-subscriber drop-oldest select, frameSeq counter) and
// streamware/ramdisk_capture.py's _cleanup_excess_frames retention logic.
type Producer struct {
	spoolDir  string
	retention int // K: keep frames numbered >= N-K

	out chan *frame.Ref

	mu       sync.Mutex
	seq      atomic.Uint64
	overflows atomic.Uint64
	seen     map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewProducer creates a Producer watching spoolDir, emitting into a channel
// of the given capacity. After emitting frame N it keeps the spooled frames
// numbered N-retention..N on disk (retention+1 files) and removes older ones.
func NewProducer(spoolDir string, bufferSize, retention int) *Producer {
	if bufferSize <= 0 {
		bufferSize = 3
	}
	if retention <= 0 {
		retention = 3
	}
	return &Producer{
		spoolDir:  spoolDir,
		retention: retention,
		out:       make(chan *frame.Ref, bufferSize),
		seen:      make(map[string]bool),
		stopCh:    make(chan struct{}),
	}
}

// Out returns the capture channel FrameRefs are emitted on.
func (p *Producer) Out() <-chan *frame.Ref { return p.out }

// Overflows returns the count of dropped-oldest events (buffer_overflows).
func (p *Producer) Overflows() uint64 { return p.overflows.Load() }

// Run polls the spool directory until Stop is called. pollInterval should be
// a fraction of the capture interval (e.g. 1/2 the inter-frame period).
func (p *Producer) Run(pollInterval time.Duration) {
	p.wg.Add(1)
	defer p.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.scanOnce()
		}
	}
}

func (p *Producer) scanOnce() {
	entries, err := os.ReadDir(p.spoolDir)
	if err != nil {
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, name := range names {
		if p.seen[name] {
			continue
		}
		p.seen[name] = true

		path := filepath.Join(p.spoolDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		n := p.seq.Add(1)
		ref := &frame.Ref{
			Seq:      n,
			Captured: info.ModTime(),
			Path:     path,
		}

		select {
		case p.out <- ref:
		default:
			// Drop oldest queued frame to make room (drop-oldest overflow policy).
			select {
			case <-p.out:
				p.overflows.Add(1)
			default:
			}
			select {
			case p.out <- ref:
			default:
			}
		}

		p.evictBefore(n)
	}
}

// evictBefore removes spooled frames numbered < n - retention, matching
// "after emitting frame N, remove any frame numbered < N - K".
func (p *Producer) evictBefore(n uint64) {
	threshold := int64(n) - int64(p.retention)
	if threshold <= 0 {
		return
	}
	for name := range p.seen {
		num, ok := frameNumber(name)
		if !ok {
			continue
		}
		if int64(num) < threshold {
			_ = os.Remove(filepath.Join(p.spoolDir, name))
			delete(p.seen, name)
		}
	}
}

func frameNumber(name string) (uint64, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".jpg")
	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Stop halts the polling loop and closes the output channel once draining.
func (p *Producer) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	close(p.out)
}
