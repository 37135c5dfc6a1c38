package model

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yoloOutput builds a [1, 4+nc, anchors] head with the given anchors set.
type anchor struct {
	cx, cy, w, h float32
	class        int
	score        float32
}

func yoloOutput(numClasses, anchors int, set ...anchor) ([]float32, []int64) {
	rows := 4 + numClasses
	out := make([]float32, rows*anchors)
	for i, a := range set {
		out[i] = a.cx
		out[anchors+i] = a.cy
		out[2*anchors+i] = a.w
		out[3*anchors+i] = a.h
		out[(4+a.class)*anchors+i] = a.score
	}
	return out, []int64{1, int64(rows), int64(anchors)}
}

func TestDecodeOutput_IdentityLetterbox(t *testing.T) {
	lb := newLetterbox(640, 640, 640, 640)
	out, shape := yoloOutput(3, 8,
		anchor{cx: 100, cy: 100, w: 40, h: 20, class: 2, score: 0.9},
		anchor{cx: 300, cy: 300, w: 10, h: 10, class: 0, score: 0.39},
	)

	boxes, err := decodeOutput(out, shape, 0.40, lb)
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.Equal(t, 2, b.ClassID)
	assert.InDelta(t, 0.9, b.Confidence, 1e-6)
	assert.InDelta(t, 80, b.X1, 1e-6)
	assert.InDelta(t, 90, b.Y1, 1e-6)
	assert.InDelta(t, 120, b.X2, 1e-6)
	assert.InDelta(t, 110, b.Y2, 1e-6)
}

func TestDecodeOutput_ThresholdIsInclusive(t *testing.T) {
	lb := newLetterbox(640, 640, 640, 640)
	out, shape := yoloOutput(1, 4, anchor{cx: 50, cy: 50, w: 10, h: 10, score: 0.40})

	boxes, err := decodeOutput(out, shape, 0.40, lb)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.GreaterOrEqual(t, boxes[0].Confidence, 0.40-1e-7)
}

func TestDecodeOutput_MapsBackThroughLetterbox(t *testing.T) {
	// 1280x640 source fits 640x320 with 160px of vertical padding.
	lb := newLetterbox(1280, 640, 640, 640)
	out, shape := yoloOutput(1, 4, anchor{cx: 320, cy: 320, w: 100, h: 50, score: 0.8})

	boxes, err := decodeOutput(out, shape, 0.40, lb)
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.InDelta(t, 540, b.X1, 1e-6)
	assert.InDelta(t, 270, b.Y1, 1e-6)
	assert.InDelta(t, 740, b.X2, 1e-6)
	assert.InDelta(t, 370, b.Y2, 1e-6)
}

func TestDecodeOutput_ClipsToImage(t *testing.T) {
	lb := newLetterbox(640, 640, 640, 640)
	out, shape := yoloOutput(1, 2, anchor{cx: 5, cy: 635, w: 20, h: 20, score: 0.7})

	boxes, err := decodeOutput(out, shape, 0.40, lb)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 0.0, boxes[0].X1)
	assert.Equal(t, 640.0, boxes[0].Y2)
}

func TestDecodeOutput_BadShape(t *testing.T) {
	lb := newLetterbox(10, 10, 10, 10)

	_, err := decodeOutput(make([]float32, 10), []int64{1, 4, 2}, 0.4, lb)
	assert.Error(t, err)

	_, err = decodeOutput(make([]float32, 10), []int64{1, 5, 4}, 0.4, lb)
	assert.Error(t, err)

	_, err = decodeOutput(make([]float32, 10), []int64{5, 2}, 0.4, lb)
	assert.Error(t, err)
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.6, ClassID: 0},
		{X1: 1, Y1: 1, X2: 10, Y2: 10, Confidence: 0.9, ClassID: 0},
		{X1: 1, Y1: 1, X2: 10, Y2: 10, Confidence: 0.8, ClassID: 1},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Confidence: 0.5, ClassID: 0},
	}

	kept := nonMaxSuppression(boxes, IOUThreshold)
	require.Len(t, kept, 3)
	assert.Equal(t, 0.9, kept[0].Confidence)
	assert.Equal(t, 1, kept[1].ClassID)
	assert.Equal(t, 0.5, kept[2].Confidence)
}

func TestPreprocessImage_Letterbox(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			src.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	data, lb := preprocessImage(src, 64, 64)
	require.Len(t, data, 3*64*64)
	assert.InDelta(t, 0.32, lb.scale, 1e-9)
	assert.Equal(t, 0.0, lb.padX)
	assert.Equal(t, 16.0, lb.padY)

	plane := 64 * 64
	// Top row is padding, the centre row is the red source.
	assert.InDelta(t, 114.0/255.0, data[0], 1e-6)
	centre := 32*64 + 32
	assert.InDelta(t, 1.0, data[centre], 1e-6)
	assert.InDelta(t, 0.0, data[plane+centre], 1e-6)
	assert.InDelta(t, 0.0, data[2*plane+centre], 1e-6)
}
