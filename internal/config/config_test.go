package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, int64(100), cfg.Server.MaxUploadMB)
	assert.Equal(t, "musical-instrument-detection", cfg.Server.ServiceName)
	assert.Equal(t, "1.0.0", cfg.Server.Version)
	assert.Equal(t, "musical_instrument_10x_aug", cfg.Model.RunName)
	assert.Equal(t, time.Duration(0), cfg.Model.ReloadInterval)
	assert.Equal(t, "yolo11n.onnx", cfg.Fallback.Dest)
	assert.Equal(t, 60*time.Second, cfg.Fallback.Timeout)
	assert.Equal(t, 3, cfg.Fallback.Retries)
	assert.Empty(t, cfg.Fallback.URL)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("DETECT_SERVER_DEBUG", "true")
	t.Setenv("DETECT_MODEL_PATH", "/models/custom.onnx")
	t.Setenv("DETECT_MODEL_RELOADINTERVAL", "30s")
	t.Setenv("DETECT_FALLBACK_URL", "http://artifacts.local/yolo11n.onnx")
	t.Setenv("DETECT_FALLBACK_RETRIES", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, "/models/custom.onnx", cfg.Model.Path)
	assert.Equal(t, 30*time.Second, cfg.Model.ReloadInterval)
	assert.Equal(t, "http://artifacts.local/yolo11n.onnx", cfg.Fallback.URL)
	assert.Equal(t, 5, cfg.Fallback.Retries)
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.maxuploadmb", envKey("DETECT_SERVER_MAXUPLOADMB"))
	assert.Equal(t, "model.sharedlibrary", envKey("DETECT_MODEL_SHAREDLIBRARY"))
}
