package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// IOUThreshold matches the YOLO predictor default.
const IOUThreshold = 0.7

// maxDetections caps the boxes kept per image after NMS.
const maxDetections = 300

// decodeOutput reads a [1, 4+nc, N] YOLO head: for each of the N anchors the
// first four rows hold cx, cy, w, h in model input pixels and the remaining
// nc rows hold per-class scores.
func decodeOutput(output []float32, shape []int64, confThreshold float32, lb letterbox) ([]Box, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, errors.Errorf("unexpected output shape %v", shape)
	}
	rows, anchors := int(shape[1]), int(shape[2])
	numClasses := rows - 4
	if numClasses < 1 {
		return nil, errors.Errorf("output shape %v has no class rows", shape)
	}
	if len(output) != rows*anchors {
		return nil, errors.Errorf("invalid output size: got %d, expected %d", len(output), rows*anchors)
	}

	var boxes []Box
	for i := 0; i < anchors; i++ {
		classID, score := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if v := output[(4+c)*anchors+i]; v > score {
				score = v
				classID = c
			}
		}
		if score < confThreshold {
			continue
		}

		cx := float64(output[i])
		cy := float64(output[anchors+i])
		w := float64(output[2*anchors+i])
		h := float64(output[3*anchors+i])
		if w <= 0 || h <= 0 {
			continue
		}

		x1, y1 := lb.unmap(cx-w/2, cy-h/2)
		x2, y2 := lb.unmap(cx+w/2, cy+h/2)
		boxes = append(boxes, Box{
			X1:         x1,
			Y1:         y1,
			X2:         x2,
			Y2:         y2,
			Confidence: float64(score),
			ClassID:    classID,
		})
	}

	return nonMaxSuppression(boxes, IOUThreshold), nil
}

// nonMaxSuppression keeps the highest scoring box of every overlapping group
// of the same class.
func nonMaxSuppression(boxes []Box, iouThreshold float64) []Box {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})

	kept := make([]Box, 0, len(boxes))
	suppressed := make([]bool, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		if len(kept) == maxDetections {
			break
		}
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] || boxes[j].ClassID != boxes[i].ClassID {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b Box) float64 {
	ix := math.Max(0, math.Min(a.X2, b.X2)-math.Max(a.X1, b.X1))
	iy := math.Max(0, math.Min(a.Y2, b.Y2)-math.Max(a.Y1, b.Y1))
	inter := ix * iy
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
