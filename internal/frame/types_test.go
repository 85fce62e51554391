package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBox_ClampWithinFrame(t *testing.T) {
	bb := BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}
	clamped := bb.Clamp()
	assert.Equal(t, bb, clamped)
}

func TestBoundingBox_ClampOutOfFrame(t *testing.T) {
	bb := BoundingBox{X: 0.05, Y: 0.95, W: 0.2, H: 0.2}
	clamped := bb.Clamp()

	assert.GreaterOrEqual(t, clamped.X-clamped.W/2, -1e-9)
	assert.LessOrEqual(t, clamped.Y+clamped.H/2, 1+1e-9)
}

func TestBoundingBox_IoU_IdenticalBoxesIsOne(t *testing.T) {
	bb := BoundingBox{X: 0.5, Y: 0.5, W: 0.4, H: 0.4}
	assert.InDelta(t, 1.0, bb.IoU(bb), 1e-9)
}

func TestBoundingBox_IoU_DisjointBoxesIsZero(t *testing.T) {
	a := BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}
	b := BoundingBox{X: 0.9, Y: 0.9, W: 0.1, H: 0.1}
	assert.Equal(t, 0.0, a.IoU(b))
}

func TestBoundingBox_IoU_PartialOverlap(t *testing.T) {
	a := BoundingBox{X: 0.5, Y: 0.5, W: 0.4, H: 0.4}
	b := BoundingBox{X: 0.6, Y: 0.5, W: 0.4, H: 0.4}
	iou := a.IoU(b)
	assert.Greater(t, iou, 0.0)
	assert.Less(t, iou, 1.0)
}

func TestBoundingBox_CenterDistance(t *testing.T) {
	a := BoundingBox{X: 0, Y: 0}
	b := BoundingBox{X: 3, Y: 4}
	assert.InDelta(t, 5.0, a.CenterDistance(b), 1e-6)
}

func TestBoundingBox_CenterDistance_SameCenterIsZero(t *testing.T) {
	a := BoundingBox{X: 0.5, Y: 0.5}
	assert.Equal(t, 0.0, a.CenterDistance(a))
}
