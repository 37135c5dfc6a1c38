package model

import "image"

// Metadata describes a loaded detection model.
type Metadata struct {
	Path        string         `json:"-"`
	Classes     map[int]string `json:"classes"`
	InputName   string         `json:"input_name"`
	OutputName  string         `json:"output_name"`
	InputWidth  int            `json:"input_width"`
	InputHeight int            `json:"input_height"`
	OutputShape []int64        `json:"output_shape"`
}

// Box is one raw detection in pixel coordinates of the original image.
type Box struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	ClassID        int
}

// Handle is a loaded, ready-to-query detection model.
type Handle interface {
	// Detect returns boxes scoring at least confThreshold.
	Detect(img image.Image, confThreshold float32) ([]Box, error)
	Metadata() Metadata
	Close() error
}
