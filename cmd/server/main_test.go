package main

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/instrument-detect/internal/model"
	"github.com/Brownie44l1/instrument-detect/internal/service"
)

type nopHandle struct{}

func (nopHandle) Detect(image.Image, float32) ([]model.Box, error) { return nil, nil }
func (nopHandle) Metadata() model.Metadata                         { return model.Metadata{} }
func (nopHandle) Close() error                                     { return nil }

// flakyLoader opens successfully once failures attempts have failed.
func flakyLoader(t *testing.T, failures int32, opens *atomic.Int32) *model.Loader {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "best.onnx")
	require.NoError(t, os.WriteFile(artifact, []byte("onnx"), 0o644))

	return model.NewLoader(model.LoaderConfig{ExplicitPath: artifact, WorkDir: dir}, func(string) (model.Handle, error) {
		if opens.Add(1) <= failures {
			return nil, errors.New("session create failed")
		}
		return nopHandle{}, nil
	})
}

func TestLoadModel_RetriesOnce(t *testing.T) {
	var opens atomic.Int32
	detector := service.NewDetectorService()

	ok := loadModel(context.Background(), flakyLoader(t, 1, &opens), detector)
	assert.True(t, ok)
	assert.True(t, detector.Loaded())
	assert.Equal(t, int32(2), opens.Load())
}

func TestLoadModel_GivesUpAfterSecondFailure(t *testing.T) {
	var opens atomic.Int32
	detector := service.NewDetectorService()

	ok := loadModel(context.Background(), flakyLoader(t, 5, &opens), detector)
	assert.False(t, ok)
	assert.False(t, detector.Loaded())
	assert.Equal(t, int32(2), opens.Load())
}

func TestWatchModel_InstallsHandleOnceLoadSucceeds(t *testing.T) {
	var opens atomic.Int32
	detector := service.NewDetectorService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loader := flakyLoader(t, 2, &opens)
	done := make(chan struct{})
	go func() {
		watchModel(ctx, loader, detector, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after installing a handle")
	}
	assert.True(t, detector.Loaded())
	assert.Equal(t, int32(3), opens.Load())
}

func TestWatchModel_StopsOnCancel(t *testing.T) {
	var opens atomic.Int32
	detector := service.NewDetectorService()
	ctx, cancel := context.WithCancel(context.Background())

	loader := flakyLoader(t, 1<<30, &opens)
	done := make(chan struct{})
	go func() {
		watchModel(ctx, loader, detector, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return opens.Load() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher ignored cancellation")
	}
	assert.False(t, detector.Loaded())
}
