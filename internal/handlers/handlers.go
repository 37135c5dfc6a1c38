package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/instrument-detect/internal/logger"
	"github.com/Brownie44l1/instrument-detect/internal/service"
)

// multipartMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const multipartMemory = 32 << 20

// AvailableEndpoints is reported by the 404 handler.
var AvailableEndpoints = []string{"/", "/health", "/model_info", "/predict", "/predict_batch"}

// ServiceInfo identifies the service in /health.
type ServiceInfo struct {
	Name    string
	Version string
}

type Handler struct {
	detector       *service.DetectorService
	info           ServiceInfo
	maxUploadBytes int64
}

func NewHandler(detector *service.DetectorService, info ServiceInfo, maxUploadBytes int64) *Handler {
	return &Handler{
		detector:       detector,
		info:           info,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the complete HTTP surface including middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /model_info", h.ModelInfo)
	mux.HandleFunc("POST /predict", h.Predict)
	mux.HandleFunc("POST /predict_batch", h.PredictBatch)

	for _, path := range AvailableEndpoints {
		if path != "/" {
			mux.HandleFunc(path, MethodNotAllowed)
		}
	}
	mux.HandleFunc("/", NotFound)

	return withCORS(withRequestID(withRecovery(mux)))
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"message": "Musical Instrument Detection API",
		"health":  "/health",
		"endpoints": map[string]string{
			"single_prediction": "/predict",
			"batch_prediction":  "/predict_batch",
			"model_info":        "/model_info",
		},
	}, http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"status":       "healthy",
		"model_loaded": h.detector.Loaded(),
		"service":      h.info.Name,
		"version":      h.info.Version,
	}, http.StatusOK)
}

func (h *Handler) ModelInfo(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.detector.Handle()
	if !ok {
		respondJSON(w, map[string]string{"error": "Model not loaded"}, http.StatusOK)
		return
	}

	md := handle.Metadata()
	respondJSON(w, map[string]any{
		"model_type": "YOLO",
		"classes":    md.Classes,
		"input_size": fmt.Sprintf("%dx%d", md.InputWidth, md.InputHeight),
		"framework":  "ONNX Runtime",
	}, http.StatusOK)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if !h.detector.Loaded() {
		respondError(w, r, service.ErrModelUnavailable)
		return
	}

	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	files := form.File["file"]
	if len(files) == 0 {
		respondDetail(w, "No file provided. Use 'file' as the form field name", http.StatusBadRequest)
		return
	}

	pred, err := h.detector.Predict(r.Context(), uploadFrom(files[0]))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, pred, http.StatusOK)
}

func (h *Handler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	if !h.detector.Loaded() {
		respondError(w, r, service.ErrModelUnavailable)
		return
	}

	form, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	files := form.File["files"]
	if len(files) == 0 {
		respondDetail(w, "No files provided. Use 'files' as the form field name", http.StatusBadRequest)
		return
	}
	if len(files) > service.MaxBatchFiles {
		respondDetail(w, fmt.Sprintf("Maximum %d files allowed per batch", service.MaxBatchFiles), http.StatusBadRequest)
		return
	}

	uploads := make([]service.Upload, 0, len(files))
	for _, fh := range files {
		uploads = append(uploads, uploadFrom(fh))
	}

	result, err := h.detector.PredictBatch(r.Context(), uploads)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, result, http.StatusOK)
}

// NotFound answers every unknown route.
func NotFound(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"error":               "Endpoint not found",
		"available_endpoints": AvailableEndpoints,
	}, http.StatusNotFound)
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondDetail(w, "Method Not Allowed", http.StatusMethodNotAllowed)
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondDetail(w, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return nil, false
		}
		respondDetail(w, "Failed to parse multipart form", http.StatusBadRequest)
		return nil, false
	}
	return r.MultipartForm, true
}

func uploadFrom(fh *multipart.FileHeader) service.Upload {
	return service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		respondDetail(w, "Model not available. Please check model loading.", status)
	case http.StatusBadRequest:
		respondDetail(w, err.Error(), status)
	default:
		log, _ := logger.GetZapLogger(r.Context())
		log.Error("prediction failed", zap.Error(err))
		respondDetail(w, fmt.Sprintf("Error processing image: %v", err), status)
	}
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondDetail(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"detail": message}, status)
}
