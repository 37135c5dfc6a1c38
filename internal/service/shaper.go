package service

import (
	"math"

	"github.com/Brownie44l1/instrument-detect/internal/model"
)

// UnknownClass labels class ids missing from the model's class names.
const UnknownClass = "unknown"

// ShapeDetections converts raw boxes into response records. Confidence is
// rounded to 4 decimals and coordinates to 2; width and height are the plain
// corner differences. The result is never nil.
func ShapeDetections(boxes []model.Box, classes map[int]string) []Detection {
	detections := make([]Detection, 0, len(boxes))
	for _, b := range boxes {
		name, ok := classes[b.ClassID]
		if !ok {
			name = UnknownClass
		}
		detections = append(detections, Detection{
			ClassName:  name,
			ClassID:    b.ClassID,
			Confidence: round(b.Confidence, 4),
			BBox: BoundingBox{
				X1:     round(b.X1, 2),
				Y1:     round(b.Y1, 2),
				X2:     round(b.X2, 2),
				Y2:     round(b.Y2, 2),
				Width:  round(b.X2-b.X1, 2),
				Height: round(b.Y2-b.Y1, 2),
			},
		})
	}
	return detections
}

// round uses half-to-even, like the rounding the response format was defined with.
func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.RoundToEven(v*p) / p
}
