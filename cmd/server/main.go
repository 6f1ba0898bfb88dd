package main

import (
	// Standard library
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"

	// Internal packages
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/api"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/config"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/metrics"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/upload"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
	"github.com/houzhh15/whisper-gateway/pkg/logger"
)

func main() {
	startTime := time.Now()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		WithSource:  !cfg.IsProduction(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "whisper-gateway")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port, "profile", cfg.Server.Profile)
	appLogger.Debug(cfg.PrintConfig())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := os.MkdirAll(cfg.Limits.UploadTmpDir, 0o755); err != nil {
		appLogger.Error("failed to create upload directory", "dir", cfg.Limits.UploadTmpDir, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 模型只在启动时加载一次；失败时服务照常启动，转写接口返回模型未加载
	var (
		provider      whisper.WhisperTranscriber
		controller    *degradation.DegradationController
		healthChecker *health.HealthChecker
	)
	if cfg.NeedsModel() {
		controller, healthChecker = loadProvider(ctx, cfg, appLogger)
		if controller != nil {
			provider = controller
			go healthChecker.Start(ctx)
		}
	}
	metrics.SetModelLoaded(provider != nil)

	svc := orchestrator.NewService(provider, upload.NewStager(cfg.Limits.UploadTmpDir))
	limiter := api.NewLimiter(cfg.Limits.MaxConcurrent)

	r := api.NewRouter(api.Dependencies{
		Config:        cfg,
		Service:       svc,
		Controller:    controller,
		HealthChecker: healthChecker,
		Limiter:       limiter,
		StartTime:     startTime,
	})

	// Create HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("server starting", "addr", srv.Addr, "env", cfg.Server.Env, "model_loaded", svc.ModelLoaded())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	if healthChecker != nil {
		healthChecker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}

// loadProvider 加载主后端和可选的降级后端。
// 主后端加载失败而降级后端可用时，降级后端成为唯一后端；两者都失败时返回 nil。
func loadProvider(ctx context.Context, cfg *config.Config, log *slog.Logger) (*degradation.DegradationController, *health.HealthChecker) {
	primary, err := whisper.Load(ctx, cfg.BackendConfig(cfg.Whisper.Backend))
	if err != nil {
		log.Error("whisper model not loaded", "backend", cfg.Whisper.Backend, "error", err)
	}

	var fallback whisper.WhisperTranscriber
	if kind := cfg.Whisper.FallbackBackend; kind != "" {
		fb, err := whisper.Load(ctx, cfg.BackendConfig(kind))
		if err != nil {
			log.Warn("fallback backend not loaded", "backend", kind, "error", err)
		} else {
			fallback = fb
		}
	}

	if primary == nil {
		if fallback == nil {
			return nil, nil
		}
		log.Warn("using fallback backend as primary", "backend", fallback.Name())
		primary, fallback = fallback, nil
	}

	hc := health.NewHealthChecker(primary, cfg.Whisper.HealthCheckInterval, cfg.Whisper.HealthFailThreshold)
	log.Info("whisper model loaded", "backend", primary.Name(), "model", cfg.Whisper.Model, "fallback", fallback != nil)
	return degradation.NewDegradationController(primary, fallback, hc), hc
}
