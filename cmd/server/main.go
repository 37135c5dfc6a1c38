package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/instrument-detect/internal/config"
	"github.com/Brownie44l1/instrument-detect/internal/handlers"
	"github.com/Brownie44l1/instrument-detect/internal/logger"
	"github.com/Brownie44l1/instrument-detect/internal/model"
	"github.com/Brownie44l1/instrument-detect/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.SetDebug(cfg.Server.Debug)
	log, _ := logger.GetZapLogger(context.Background())
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := model.InitRuntime(cfg.Model.SharedLibrary); err != nil {
		log.Fatal("failed to initialize onnxruntime", zap.Error(err))
	}
	defer model.DestroyRuntime()

	workDir, err := os.Getwd()
	if err != nil {
		log.Fatal("failed to get working directory", zap.Error(err))
	}

	loader := model.NewLoader(model.LoaderConfig{
		ExplicitPath:    cfg.Model.Path,
		RunName:         cfg.Model.RunName,
		FallbackURL:     cfg.Fallback.URL,
		FallbackDest:    cfg.Fallback.Dest,
		FallbackTimeout: cfg.Fallback.Timeout,
		FallbackRetries: cfg.Fallback.Retries,
		WorkDir:         workDir,
	}, func(path string) (model.Handle, error) {
		return model.NewServer(path, cfg.Model.IntraOpThreads)
	})

	detector := service.NewDetectorService()
	if !loadModel(ctx, loader, detector) {
		log.Warn("starting without a model, prediction endpoints will answer 503")
		if cfg.Model.ReloadInterval > 0 {
			go watchModel(ctx, loader, detector, cfg.Model.ReloadInterval)
		}
	}
	defer func() {
		if h := detector.SetHandle(nil); h != nil {
			_ = h.Close()
		}
	}()

	handler := handlers.NewHandler(detector, handlers.ServiceInfo{
		Name:    cfg.Server.ServiceName,
		Version: cfg.Server.Version,
	}, cfg.Server.MaxUploadMB<<20)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("server starting",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("model_loaded", detector.Loaded()),
		zap.Strings("endpoints", []string{
			"GET /",
			"GET /health",
			"GET /model_info",
			"POST /predict",
			"POST /predict_batch",
		}))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}
}

// loadModel makes the initial attempt plus one retry. A failure leaves the
// detector without a handle; it never stops the process.
func loadModel(ctx context.Context, loader *model.Loader, detector *service.DetectorService) bool {
	for attempt := 1; attempt <= 2; attempt++ {
		h, err := loader.Load(ctx)
		if err == nil {
			detector.SetHandle(h)
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// watchModel keeps retrying the load until a handle is installed or ctx ends.
func watchModel(ctx context.Context, loader *model.Loader, detector *service.DetectorService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h, err := loader.Load(ctx)
			if err != nil {
				continue
			}
			if prev := detector.SetHandle(h); prev != nil {
				_ = prev.Close()
			}
			return
		}
	}
}
