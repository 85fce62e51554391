// Package capture implements CaptureSource (spec.md §4.A) and FrameProducer
// (§4.B): an external decoder subprocess writing JPEG frames into a
// RAM-backed spool directory, and a watcher that turns new spool files into
// FrameRefs on a bounded channel.
//
// Grounded on orbo's internal/pipeline/frame_provider.go (FFmpegFrameProvider
// -- subprocess management, URI-scheme dispatch, stderr draining) and
// original_source/streamware/ramdisk_capture.py (RAMDiskCapture --
// /dev/shm spool, numbered-frame vs single-overwritten-file modes,
// terminate-then-kill shutdown).
package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/orbo-vision/coreflow/internal/corefail"
)

// Hints carries decoder flags at the semantic level (spec.md §4.A): the
// implementer is free to choose any decoder capable of honoring them.
type Hints struct {
	Scale         string // "W:H", empty to disable
	ConnectTimeout time.Duration
}

// Source manages one exclusive external decoder process per run.
type Source struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	spoolDir string
	sourceURI string
	fps     int
	hints   Hints

	watchdogBackoff time.Duration
	restarts        uint64
}

// NewSource constructs a Source that will spool frames under spoolDir.
func NewSource(spoolDir string) *Source {
	return &Source{spoolDir: spoolDir}
}

// Handle identifies one running capture session.
type Handle struct {
	SourceURI string
	StartedAt time.Time
}

// buildArgs picks the decoder and argv for a source URI scheme.
// Recognized schemes per spec.md §6: rtsp://, http(s)://{.mp4,.m3u8},
// file://PATH, device://camN, screen://[region].
func buildArgs(sourceURI string, fps int, spoolDir string, hints Hints) ([]string, error) {
	u, err := url.Parse(sourceURI)
	if err != nil {
		return nil, corefail.Wrap("capture.buildArgs", corefail.UnsupportedSource, err)
	}

	pattern := spoolDir + "/frame_%06d.jpg"
	common := []string{
		"-y",
		"-fflags", "nobuffer", // low-latency transport
		"-flags", "low_delay",
	}

	var input []string
	switch u.Scheme {
	case "rtsp":
		input = []string{"-rtsp_transport", "tcp", "-i", sourceURI}
	case "http", "https":
		input = []string{"-i", sourceURI}
	case "file":
		input = []string{"-re", "-i", strings.TrimPrefix(sourceURI, "file://")}
	case "device":
		dev := "/dev/video" + strings.TrimPrefix(u.Host, "cam")
		if dev == "/dev/video" {
			dev = "/dev/video0"
		}
		input = []string{"-f", "v4l2", "-i", dev}
	case "screen":
		input = []string{"-f", "x11grab", "-i", ":0.0" + u.Opaque}
	default:
		return nil, corefail.New("capture.buildArgs", corefail.UnsupportedSource)
	}

	filter := fmt.Sprintf("fps=%d", fps)
	if hints.Scale != "" {
		filter += ",scale=" + hints.Scale
	}

	args := append([]string{}, common...)
	args = append(args, input...)
	args = append(args, "-vf", filter, "-q:v", "2", pattern)
	return args, nil
}

// Start spawns the decoder writing successive JPEG frames into the spool.
// Fails with DecoderUnavailable if the binary is absent, SourceUnreachable
// if the initial handshake exceeds hints.ConnectTimeout.
func (s *Source) Start(ctx context.Context, sourceURI string, fps int, hints Hints) (*Handle, error) {
	const op = "capture.Start"

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, corefail.Wrap(op, corefail.DecoderUnavailable, err)
	}
	if err := os.MkdirAll(s.spoolDir, 0o755); err != nil {
		return nil, corefail.Wrap(op, corefail.DecoderUnavailable, err)
	}

	args, err := buildArgs(sourceURI, fps, s.spoolDir, hints)
	if err != nil {
		return nil, err
	}

	connectTimeout := hints.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	startCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	cmd := exec.CommandContext(context.Background(), "ffmpeg", args...)
	cmd.Stdout = nil
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, corefail.Wrap(op, corefail.DecoderUnavailable, err)
	}
	go drain(stderr)

	if err := cmd.Start(); err != nil {
		return nil, corefail.Wrap(op, corefail.DecoderUnavailable, err)
	}

	if err := waitForFirstFrame(startCtx, s.spoolDir); err != nil {
		_ = cmd.Process.Kill()
		return nil, corefail.Wrap(op, corefail.SourceUnreachable, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.sourceURI = sourceURI
	s.fps = fps
	s.hints = hints
	s.mu.Unlock()

	return &Handle{SourceURI: sourceURI, StartedAt: time.Now()}, nil
}

func waitForFirstFrame(ctx context.Context, spoolDir string) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			entries, err := os.ReadDir(spoolDir)
			if err == nil && len(entries) > 0 {
				return nil
			}
		}
	}
}

// drain silently consumes the decoder's stderr so its pipe never fills and
// blocks the subprocess (same pattern as frame_provider.go's stderr scanner).
func drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// Silently consume.
	}
}

// Stop sends termination to the decoder; if it has not exited within 2s, it
// is force-killed.
func (s *Source) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
		return nil
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-done
		return nil
	}
}

// RestartBackoff returns the next exponential backoff delay (1s, 2s, 4s,
// capped at 30s), advancing internal restart counter. Used by the
// supervisor when DecoderDied/WatchdogTimeout fires.
func (s *Source) RestartBackoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.restarts
	s.restarts++
	d := time.Second << n
	if d > 30*time.Second || d <= 0 {
		d = 30 * time.Second
	}
	return d
}

// ResetBackoff clears the restart counter after a successful reconnect.
func (s *Source) ResetBackoff() {
	s.mu.Lock()
	s.restarts = 0
	s.mu.Unlock()
}
