package model

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Brownie44l1/instrument-detect/internal/logger"
)

// ErrNoArtifact is returned when no candidate exists and no fallback could be fetched.
var ErrNoArtifact = errors.New("no model artifact available")

const (
	fallbackRetryWait = 100 * time.Millisecond
	fallbackUserAgent = "instrument-detect/1.0"
)

// OpenFunc turns an artifact path into a Handle.
type OpenFunc func(path string) (Handle, error)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	// ExplicitPath is probed before the built-in candidates when set.
	ExplicitPath string
	// RunName is the training run whose weights directory is probed.
	RunName string
	// FallbackURL is fetched when no candidate exists. Empty disables the fetch.
	FallbackURL     string
	FallbackDest    string
	FallbackTimeout time.Duration
	FallbackRetries int
	// WorkDir replaces os.Getwd for the absolute candidates.
	WorkDir string
}

// Loader locates a model artifact and opens it.
type Loader struct {
	cfg  LoaderConfig
	open OpenFunc
}

// NewLoader returns a loader that opens artifacts with open.
func NewLoader(cfg LoaderConfig, open OpenFunc) *Loader {
	return &Loader{cfg: cfg, open: open}
}

// Candidates lists artifact paths in probe order: custom weights first, then
// the generic pretrained ones.
func (l *Loader) Candidates() []string {
	cwd := l.cfg.WorkDir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	var paths []string
	if l.cfg.ExplicitPath != "" {
		paths = append(paths, l.cfg.ExplicitPath)
	}
	paths = append(paths,
		"best.onnx",
		"last.onnx",
		filepath.Join("runs", "detect", l.cfg.RunName, "weights", "best.onnx"),
		"./best.onnx",
		"./last.onnx",
		filepath.Join(cwd, "best.onnx"),
		filepath.Join(cwd, "last.onnx"),
		"yolov8s.onnx",
		"yolo11n.onnx",
		"./yolo11n.onnx",
		"./yolov8s.onnx",
		filepath.Join(cwd, "yolo11n.onnx"),
		filepath.Join(cwd, "yolov8s.onnx"),
	)
	return paths
}

// Find returns the first candidate that exists as a regular file.
func (l *Loader) Find() (string, bool) {
	for _, path := range l.Candidates() {
		if fi, err := os.Stat(l.resolve(path)); err == nil && fi.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// resolve anchors relative candidates at WorkDir when one is configured.
func (l *Loader) resolve(path string) string {
	if l.cfg.WorkDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.cfg.WorkDir, path)
}

// Load opens the first existing candidate, or fetches and opens the fallback
// artifact. Failures are logged and returned; they never terminate the process.
func (l *Loader) Load(ctx context.Context) (Handle, error) {
	log, _ := logger.GetZapLogger(ctx)

	path, found := l.Find()
	if !found {
		log.Info("no local model found, fetching fallback artifact",
			zap.String("url", l.cfg.FallbackURL),
			zap.String("dest", l.cfg.FallbackDest))

		fetched, err := l.fetchFallback(ctx)
		if err != nil {
			log.Error("error loading model", zap.Error(err))
			return nil, err
		}
		path = fetched
	}

	handle, err := l.open(l.resolve(path))
	if err != nil {
		err = errors.Wrapf(err, "open %s", path)
		log.Error("error loading model", zap.Error(err))
		return nil, err
	}

	md := handle.Metadata()
	log.Info("model loaded successfully",
		zap.String("path", path),
		zap.Int("classes", len(md.Classes)),
		zap.Int("input_width", md.InputWidth),
		zap.Int("input_height", md.InputHeight))
	if len(md.Classes) == 0 {
		log.Warn("model carries no class names, every label will be reported as unknown")
	}
	return handle, nil
}

// fetchFallback downloads the fallback artifact into FallbackDest, writing
// through a temporary file so a partial download never becomes a candidate.
// FallbackTimeout bounds the whole fetch including retries.
func (l *Loader) fetchFallback(ctx context.Context) (string, error) {
	if l.cfg.FallbackURL == "" {
		return "", errors.Wrap(ErrNoArtifact, "no fallback url configured")
	}

	dest := l.resolve(l.cfg.FallbackDest)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrap(err, "create fallback directory")
	}
	tmp := dest + ".part"
	defer os.Remove(tmp)

	client := resty.New().
		SetTimeout(l.cfg.FallbackTimeout).
		SetRetryCount(l.cfg.FallbackRetries).
		SetRetryWaitTime(fallbackRetryWait).
		SetHeader("User-Agent", fallbackUserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	if l.cfg.FallbackTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.FallbackTimeout)
		defer cancel()
	}

	resp, err := client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(l.cfg.FallbackURL)
	if err != nil {
		return "", errors.Wrapf(ErrNoArtifact, "fetch %s: %v", l.cfg.FallbackURL, err)
	}
	if resp.IsError() {
		return "", errors.Wrapf(ErrNoArtifact, "fetch %s: status %d", l.cfg.FallbackURL, resp.StatusCode())
	}

	if err := os.Rename(tmp, dest); err != nil {
		return "", errors.Wrap(err, "move fallback artifact into place")
	}
	return l.cfg.FallbackDest, nil
}
