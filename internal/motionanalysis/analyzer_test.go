package motionanalysis

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
)

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func solidImage(w, h int, c color.Gray) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	return img
}

func refWithData(t *testing.T, seq uint64, img image.Image) *frame.Ref {
	return &frame.Ref{Seq: seq, Data: encodeJPEG(t, img)}
}

func TestAnalyze_FirstFrameReportsFullMotionNoRegions(t *testing.T) {
	cfg := config.Defaults()
	a := New(cfg)

	delta, err := a.Analyze(refWithData(t, 1, solidImage(64, 64, color.Gray{Y: 100})))
	require.NoError(t, err)
	assert.Equal(t, 100.0, delta.MotionPercent)
	assert.Empty(t, delta.Regions)
	assert.Equal(t, 64, delta.SourceWidth)
	assert.Equal(t, 64, delta.SourceHeight)
}

func TestAnalyze_IdenticalFramesReportNoMotion(t *testing.T) {
	cfg := config.Defaults()
	a := New(cfg)

	img := solidImage(64, 64, color.Gray{Y: 100})
	_, err := a.Analyze(refWithData(t, 1, img))
	require.NoError(t, err)

	delta, err := a.Analyze(refWithData(t, 2, img))
	require.NoError(t, err)
	assert.InDelta(t, 0, delta.MotionPercent, 1.0)
	assert.Empty(t, delta.Regions)
}

func TestAnalyze_ChangedRegionIsDetected(t *testing.T) {
	cfg := config.Defaults()
	cfg.DownscaleW, cfg.DownscaleH = 64, 64
	cfg.MinRegionAreaPx = 1
	a := New(cfg)

	base := solidImage(64, 64, color.Gray{Y: 30})
	_, err := a.Analyze(refWithData(t, 1, base))
	require.NoError(t, err)

	changed := solidImage(64, 64, color.Gray{Y: 30})
	for y := 20; y < 40; y++ {
		for x := 20; x < 40; x++ {
			changed.SetGray(x, y, color.Gray{Y: 230})
		}
	}

	delta, err := a.Analyze(refWithData(t, 2, changed))
	require.NoError(t, err)
	assert.Greater(t, delta.MotionPercent, 0.0)
	require.NotEmpty(t, delta.Regions, "a large luminance change must produce at least one region")
}

func TestAnalyze_RegionsAreScaledToSourceDimensionsNotDownscaleTarget(t *testing.T) {
	cfg := config.Defaults()
	cfg.DownscaleW, cfg.DownscaleH = 64, 64
	cfg.MinRegionAreaPx = 1
	a := New(cfg)

	// Source is much larger than the analyzer's internal downscale target;
	// regions must come back in source-pixel coordinates.
	const srcW, srcH = 640, 480
	base := solidImage(srcW, srcH, color.Gray{Y: 30})
	_, err := a.Analyze(refWithData(t, 1, base))
	require.NoError(t, err)

	changed := solidImage(srcW, srcH, color.Gray{Y: 30})
	for y := 200; y < 400; y++ {
		for x := 200; x < 400; x++ {
			changed.SetGray(x, y, color.Gray{Y: 230})
		}
	}

	delta, err := a.Analyze(refWithData(t, 2, changed))
	require.NoError(t, err)
	require.Equal(t, srcW, delta.SourceWidth)
	require.Equal(t, srcH, delta.SourceHeight)
	require.NotEmpty(t, delta.Regions)
	for _, r := range delta.Regions {
		assert.LessOrEqual(t, r.X+r.W, srcW, "a region must not exceed the source frame's width")
		assert.LessOrEqual(t, r.Y+r.H, srcH, "a region must not exceed the source frame's height")
	}
}

func TestAnalyze_LoadsFromPathWhenNoInlineData(t *testing.T) {
	cfg := config.Defaults()
	a := New(cfg)

	img := solidImage(32, 32, color.Gray{Y: 50})
	path := t.TempDir() + "/frame.jpg"
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())

	delta, err := a.Analyze(&frame.Ref{Seq: 1, Path: path})
	require.NoError(t, err)
	assert.Equal(t, 100.0, delta.MotionPercent)
}

func TestReset_TreatsNextFrameAsFirst(t *testing.T) {
	cfg := config.Defaults()
	a := New(cfg)

	img := solidImage(32, 32, color.Gray{Y: 80})
	_, err := a.Analyze(refWithData(t, 1, img))
	require.NoError(t, err)

	a.Reset()

	delta, err := a.Analyze(refWithData(t, 2, img))
	require.NoError(t, err)
	assert.Equal(t, 100.0, delta.MotionPercent, "after Reset the next frame has no predecessor to diff against")
}
