package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, dir string, n int) {
	t.Helper()
	path := filepath.Join(dir, "frame_"+padded(n)+".jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
}

func padded(n int) string {
	s := ""
	if n < 10 {
		s = "0"
	}
	return s + itoaHelper(n)
}

func itoaHelper(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestProducer_EmitsFramesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, 1)
	writeFrame(t, dir, 2)

	p := NewProducer(dir, 10, 10)
	p.scanOnce()

	first := <-p.Out()
	second := <-p.Out()
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestProducer_IgnoresNonFrameFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	writeFrame(t, dir, 1)

	p := NewProducer(dir, 10, 10)
	p.scanOnce()

	ref := <-p.Out()
	assert.Equal(t, uint64(1), ref.Seq)
	assert.Len(t, p.Out(), 0)
}

func TestProducer_DropsOldestOnOverflow(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 3; i++ {
		writeFrame(t, dir, i)
	}

	p := NewProducer(dir, 2, 10) // buffer smaller than frame count forces a drop
	p.scanOnce()

	assert.Equal(t, uint64(1), p.Overflows())
	require.Len(t, p.Out(), 2)
	first := <-p.Out()
	assert.Equal(t, uint64(2), first.Seq, "the oldest frame should have been dropped")
}

func TestProducer_EvictsFilesBeyondRetention(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		writeFrame(t, dir, i)
	}

	p := NewProducer(dir, 10, 2) // after frame 5, frames numbered >= 5-2 stay on disk
	p.scanOnce()
	for range []int{1, 2, 3, 4, 5} {
		<-p.Out()
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 3, "older spooled frames should be evicted")
}

func TestProducer_DoesNotReemitAlreadySeenFiles(t *testing.T) {
	dir := t.TempDir()
	writeFrame(t, dir, 1)

	p := NewProducer(dir, 10, 10)
	p.scanOnce()
	<-p.Out()

	p.scanOnce()
	assert.Len(t, p.Out(), 0, "a file already seen must not be re-emitted")
}

func TestProducer_StopClosesOutputChannel(t *testing.T) {
	dir := t.TempDir()
	p := NewProducer(dir, 10, 10)

	go p.Run(5 * time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	p.Stop()

	_, ok := <-p.Out()
	assert.False(t, ok)
}
