package service

import (
	"bytes"
	"io"
)

// BoundingBox is a detection box in pixel coordinates of the uploaded image.
type BoundingBox struct {
	X1     float64 `json:"x1"`
	Y1     float64 `json:"y1"`
	X2     float64 `json:"x2"`
	Y2     float64 `json:"y2"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one detected object.
type Detection struct {
	ClassName  string      `json:"class_name"`
	ClassID    int         `json:"class_id"`
	Confidence float64     `json:"confidence"`
	BBox       BoundingBox `json:"bbox"`
}

// ImageSize is the size of the decoded upload.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Prediction is the outcome of processing one image.
type Prediction struct {
	Success        bool        `json:"success"`
	Filename       string      `json:"filename"`
	ImageSize      ImageSize   `json:"image_size"`
	Predictions    []Detection `json:"predictions"`
	Count          int         `json:"count"`
	ProcessingTime string      `json:"processing_time,omitempty"`
}

// FileError reports a batch item that could not be processed.
type FileError struct {
	Filename string `json:"filename"`
	Success  bool   `json:"success"`
	Error    string `json:"error"`
}

// BatchResult wraps the per-file outcomes of a batch request. Each result is
// a *Prediction or a *FileError.
type BatchResult struct {
	Success        bool  `json:"success"`
	Results        []any `json:"results"`
	TotalFiles     int   `json:"total_files"`
	ProcessedFiles int   `json:"processed_files"`
}

// Upload is one file received by the HTTP surface. Open is called at most
// once, when the file is processed.
type Upload struct {
	Filename    string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// BytesUpload returns an Upload backed by data.
func BytesUpload(filename, contentType string, data []byte) Upload {
	return Upload{
		Filename:    filename,
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
