package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/Brownie44l1/instrument-detect/internal/decoder"
	"github.com/Brownie44l1/instrument-detect/internal/logger"
	"github.com/Brownie44l1/instrument-detect/internal/model"
)

// ConfidenceThreshold is the minimum score a detection needs to be reported.
const ConfidenceThreshold float32 = 0.40

// MaxBatchFiles caps the number of files in one batch request.
const MaxBatchFiles = 10

type loaded struct {
	handle model.Handle
}

// DetectorService runs uploads through the decoder, the model and the
// response shaper. The zero value is not usable; use NewDetectorService.
type DetectorService struct {
	current *atomic.Pointer[loaded]
}

// NewDetectorService returns a service without a model. Requests fail with
// ErrModelUnavailable until SetHandle is called.
func NewDetectorService() *DetectorService {
	return &DetectorService{current: atomic.NewPointer[loaded](nil)}
}

// SetHandle installs h and returns the previously installed handle, if any.
// In-flight requests keep using the handle they started with.
func (s *DetectorService) SetHandle(h model.Handle) model.Handle {
	var next *loaded
	if h != nil {
		next = &loaded{handle: h}
	}
	if prev := s.current.Swap(next); prev != nil {
		return prev.handle
	}
	return nil
}

// Handle returns the installed handle.
func (s *DetectorService) Handle() (model.Handle, bool) {
	l := s.current.Load()
	if l == nil {
		return nil, false
	}
	return l.handle, true
}

// Loaded reports whether a model handle is installed.
func (s *DetectorService) Loaded() bool {
	_, ok := s.Handle()
	return ok
}

// Predict processes a single upload.
func (s *DetectorService) Predict(ctx context.Context, upload Upload) (*Prediction, error) {
	h, ok := s.Handle()
	if !ok {
		return nil, ErrModelUnavailable
	}
	if !isImage(upload.ContentType) {
		return nil, invalidInput("File must be an image (JPEG, PNG, etc.)")
	}

	start := time.Now()
	pred, err := s.process(ctx, h, upload)
	if err != nil {
		return nil, err
	}
	pred.ProcessingTime = time.Since(start).Round(time.Microsecond).String()
	return pred, nil
}

// PredictBatch processes up to MaxBatchFiles uploads in order. A failing file
// is reported inside the result and does not stop the remaining files.
func (s *DetectorService) PredictBatch(ctx context.Context, uploads []Upload) (*BatchResult, error) {
	h, ok := s.Handle()
	if !ok {
		return nil, ErrModelUnavailable
	}
	if len(uploads) > MaxBatchFiles {
		return nil, invalidInput("Maximum %d files allowed per batch", MaxBatchFiles)
	}

	log, _ := logger.GetZapLogger(ctx)
	result := &BatchResult{
		Success:    true,
		Results:    make([]any, 0, len(uploads)),
		TotalFiles: len(uploads),
	}
	for _, upload := range uploads {
		if !isImage(upload.ContentType) {
			result.Results = append(result.Results, &FileError{
				Filename: upload.Filename,
				Error:    "File must be an image",
			})
			continue
		}

		pred, err := s.processIsolated(ctx, h, upload)
		if err != nil {
			log.Warn("batch item failed", zap.String("filename", upload.Filename), zap.Error(err))
			result.Results = append(result.Results, &FileError{
				Filename: upload.Filename,
				Error:    fmt.Sprintf("Error processing image: %v", err),
			})
			continue
		}
		result.Results = append(result.Results, pred)
		result.ProcessedFiles++
	}
	return result, nil
}

// processIsolated turns a panic while handling one batch item into an error.
func (s *DetectorService) processIsolated(ctx context.Context, h model.Handle, upload Upload) (pred *Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred, err = nil, errors.Errorf("panic: %v", r)
		}
	}()
	return s.process(ctx, h, upload)
}

func (s *DetectorService) process(ctx context.Context, h model.Handle, upload Upload) (*Prediction, error) {
	data, err := upload.read()
	if err != nil {
		return nil, err
	}

	img, err := decoder.Decode(data)
	if err != nil {
		return nil, err
	}

	boxes, err := infer(h, img)
	if err != nil {
		return nil, err
	}

	detections := ShapeDetections(boxes, h.Metadata().Classes)

	log, _ := logger.GetZapLogger(ctx)
	log.Debug("image processed",
		zap.String("filename", upload.Filename),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()),
		zap.Int("detections", len(detections)))

	return &Prediction{
		Success:  true,
		Filename: upload.Filename,
		ImageSize: ImageSize{
			Width:  img.Bounds().Dx(),
			Height: img.Bounds().Dy(),
		},
		Predictions: detections,
		Count:       len(detections),
	}, nil
}

// infer runs the model with the fixed confidence threshold.
func infer(h model.Handle, img image.Image) ([]model.Box, error) {
	if h == nil {
		return nil, ErrModelUnavailable
	}
	boxes, err := h.Detect(img, ConfidenceThreshold)
	if err != nil {
		return nil, errors.Wrapf(ErrInference, "%v", err)
	}
	return boxes, nil
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

func (u Upload) read() ([]byte, error) {
	if u.Open == nil {
		return nil, invalidInput("empty upload")
	}
	rc, err := u.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	return data, nil
}
