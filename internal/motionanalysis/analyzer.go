// Package motionanalysis implements MotionAnalyzer (spec.md §4.C): given two
// consecutive frames, downscale/blur/diff/threshold them into a binary
// motion mask, extract connected components as MotionRegions, and report a
// motion percentage.
//
// Grounded on orbo's internal/motion/stream_detector.go compareFrames
// (brightness-diff sampling, bounding-box accumulation) and
// original_source/streamware/smart_detector.py _detect_motion (the
// grayscale/resize/GaussianBlur/absdiff/threshold/contour pipeline whose
// defaults -- 320x240, 5x5 blur, luminance delta 25, min area 100 -- spec.md
// §4.C states verbatim). Downscaling uses golang.org/x/image/draw instead of
// gocv to avoid a cgo dependency (see DESIGN.md).
package motionanalysis

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"

	"golang.org/x/image/draw"

	"github.com/orbo-vision/coreflow/internal/config"
	"github.com/orbo-vision/coreflow/internal/frame"
)

// Analyzer holds the working-resolution background needed to diff
// consecutive frames. Not safe for concurrent use by multiple goroutines on
// the same instance -- run one Analyzer per camera stream.
type Analyzer struct {
	cfg  *config.Snapshot
	prev *image.Gray
}

// New creates an Analyzer bound to the given configuration snapshot.
func New(cfg *config.Snapshot) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// Analyze computes a frame.Delta for ref. On the first call (no predecessor
// yet held), motion_percent is defined as 100 and regions is empty, per
// spec.md §4.C.
func (a *Analyzer) Analyze(ref *frame.Ref) (*frame.Delta, error) {
	img, err := loadImage(ref)
	if err != nil {
		return nil, err
	}

	srcBounds := img.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()

	gray := downscaleToGray(img, a.cfg.DownscaleW, a.cfg.DownscaleH)
	blurred := boxBlur5x5(gray)

	if a.prev == nil {
		a.prev = blurred
		return &frame.Delta{
			FrameSeq:      ref.Seq,
			Timestamp:     ref.Captured,
			MotionPercent: 100,
			Regions:       nil,
			SourceWidth:   srcW,
			SourceHeight:  srcH,
		}, nil
	}

	mask := diffThreshold(a.prev, blurred, a.cfg.LuminanceDelta)
	a.prev = blurred

	motionPixels := 0
	bounds := mask.Bounds()
	total := bounds.Dx() * bounds.Dy()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if mask.GrayAt(x, y).Y != 0 {
				motionPixels++
			}
		}
	}
	motionPercent := 0.0
	if total > 0 {
		motionPercent = float64(motionPixels) / float64(total) * 100
	}

	components := connectedComponents(mask)
	regions := make([]frame.Region, 0, len(components))

	scaleX := float64(srcW) / float64(bounds.Dx())
	scaleY := float64(srcH) / float64(bounds.Dy())

	for _, comp := range components {
		if comp.pixels < a.cfg.MinRegionAreaPx {
			continue
		}
		regions = append(regions, frame.Region{
			X:          int(float64(comp.x) * scaleX),
			Y:          int(float64(comp.y) * scaleY),
			W:          int(float64(comp.w) * scaleX),
			H:          int(float64(comp.h) * scaleY),
			Confidence: comp.density,
		})
	}

	return &frame.Delta{
		FrameSeq:      ref.Seq,
		Timestamp:     ref.Captured,
		MotionPercent: motionPercent,
		Regions:       regions,
		SourceWidth:   srcW,
		SourceHeight:  srcH,
	}, nil
}

// Reset clears the held background so the next Analyze call is treated as a
// first frame (e.g. after a decoder restart produces a discontinuity).
func (a *Analyzer) Reset() { a.prev = nil }

func loadImage(ref *frame.Ref) (image.Image, error) {
	if len(ref.Data) > 0 {
		return jpeg.Decode(bytes.NewReader(ref.Data))
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}

// downscaleToGray resizes img to at most w x h (preserving aspect) and
// converts to 8-bit luminance, mirroring smart_detector.py's "resize to
// <=320x240 preserving aspect, then grayscale" step.
func downscaleToGray(img image.Image, w, h int) *image.Gray {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return image.NewGray(image.Rect(0, 0, 1, 1))
	}

	ratio := minFloat(float64(w)/float64(srcW), float64(h)/float64(srcH))
	if ratio > 1 {
		ratio = 1
	}
	dstW := maxInt(1, int(float64(srcW)*ratio))
	dstH := maxInt(1, int(float64(srcH)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	gray := image.NewGray(dst.Bounds())
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			gray.Set(x, y, color.GrayModel.Convert(dst.At(x, y)))
		}
	}
	return gray
}

// boxBlur5x5 applies a simple separable box blur as a cheap stand-in for
// OpenCV's GaussianBlur(5,5) noise suppression step.
func boxBlur5x5(src *image.Gray) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(b)
	const r = 2 // 5x5 window
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum, count := 0, 0
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					px, py := x+dx, y+dy
					if px < b.Min.X || px >= b.Max.X || py < b.Min.Y || py >= b.Max.Y {
						continue
					}
					sum += int(src.GrayAt(px, py).Y)
					count++
				}
			}
			if count == 0 {
				count = 1
			}
			out.SetGray(x, y, color.Gray{Y: uint8(sum / count)})
		}
	}
	return out
}

// diffThreshold produces a binary mask where |prev-curr| >= delta.
func diffThreshold(prev, curr *image.Gray, delta int) *image.Gray {
	b := curr.Bounds()
	mask := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := int(curr.GrayAt(x, y).Y) - int(prev.GrayAt(x, y).Y)
			if d < 0 {
				d = -d
			}
			if d >= delta {
				mask.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return mask
}

type component struct {
	x, y, w, h int
	pixels     int
	density    float32
}

// connectedComponents extracts 4-connected foreground regions from a binary
// mask via flood fill, matching the "extract connected components" step of
// spec.md §4.C (a simplified stand-in for OpenCV's findContours).
func connectedComponents(mask *image.Gray) []component {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()
	visited := make([]bool, w*h)

	idx := func(x, y int) int { return (y-b.Min.Y)*w + (x - b.Min.X) }

	var comps []component
	stack := make([][2]int, 0, 64)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if mask.GrayAt(x, y).Y == 0 || visited[idx(x, y)] {
				continue
			}

			minX, minY, maxX, maxY := x, y, x, y
			pixels := 0
			stack = stack[:0]
			stack = append(stack, [2]int{x, y})
			visited[idx(x, y)] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				pixels++
				if px < minX {
					minX = px
				}
				if px > maxX {
					maxX = px
				}
				if py < minY {
					minY = py
				}
				if py > maxY {
					maxY = py
				}

				neighbors := [4][2]int{{px - 1, py}, {px + 1, py}, {px, py - 1}, {px, py + 1}}
				for _, n := range neighbors {
					nx, ny := n[0], n[1]
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					if visited[idx(nx, ny)] || mask.GrayAt(nx, ny).Y == 0 {
						continue
					}
					visited[idx(nx, ny)] = true
					stack = append(stack, [2]int{nx, ny})
				}
			}

			cw, ch := maxX-minX+1, maxY-minY+1
			density := float32(pixels) / float32(cw*ch)
			comps = append(comps, component{x: minX, y: minY, w: cw, h: ch, pixels: pixels, density: density})
		}
	}
	return comps
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
