package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/pkg/errors"
)

// EnvPrefix is the prefix of every service variable except PORT.
const EnvPrefix = "DETECT_"

// ServerConfig defines HTTP server configurations
type ServerConfig struct {
	Port        int    `koanf:"port"`
	Debug       bool   `koanf:"debug"`
	MaxUploadMB int64  `koanf:"maxuploadmb"`
	ServiceName string `koanf:"servicename"`
	Version     string `koanf:"version"`
}

// ModelConfig related to the detection model artifact and runtime
type ModelConfig struct {
	Path           string        `koanf:"path"`
	RunName        string        `koanf:"runname"`
	SharedLibrary  string        `koanf:"sharedlibrary"`
	IntraOpThreads int           `koanf:"intraopthreads"`
	ReloadInterval time.Duration `koanf:"reloadinterval"`
}

// FallbackConfig related to fetching a generic artifact when none exists locally
type FallbackConfig struct {
	URL     string        `koanf:"url"`
	Dest    string        `koanf:"dest"`
	Timeout time.Duration `koanf:"timeout"`
	Retries int           `koanf:"retries"`
}

// AppConfig defines
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Model    ModelConfig    `koanf:"model"`
	Fallback FallbackConfig `koanf:"fallback"`
}

var defaults = map[string]any{
	"server.port":          8000,
	"server.debug":         false,
	"server.maxuploadmb":   100,
	"server.servicename":   "musical-instrument-detection",
	"server.version":       "1.0.0",
	"model.runname":        "musical_instrument_10x_aug",
	"model.intraopthreads": 0,
	"model.reloadinterval": "0s",
	"fallback.dest":        "yolo11n.onnx",
	"fallback.timeout":     "60s",
	"fallback.retries":     3,
}

// Load builds the configuration from defaults and the process environment.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	// PORT is the platform convention and carries no prefix.
	if err := k.Load(env.Provider("PORT", ".", func(s string) string {
		if s != "PORT" {
			return ""
		}
		return "server.port"
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load PORT")
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	return &cfg, ValidateConfig(&cfg)
}

// envKey maps DETECT_MODEL_RUNNAME to model.runname.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// ValidateConfig rejects values the server cannot start with.
func ValidateConfig(cfg *AppConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.Errorf("invalid port %d", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return errors.Errorf("max upload size must be positive, got %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Fallback.Retries < 0 {
		return errors.Errorf("fallback retries must not be negative, got %d", cfg.Fallback.Retries)
	}
	if cfg.Model.ReloadInterval < 0 {
		return errors.Errorf("reload interval must not be negative, got %s", cfg.Model.ReloadInterval)
	}
	return nil
}
