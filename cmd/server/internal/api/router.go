package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/config"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/middleware"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/degradation"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/health"
)

// Dependencies 路由依赖，模型未加载时 Controller、HealthChecker 为 nil
type Dependencies struct {
	Config        *config.Config
	Service       *orchestrator.Service
	Controller    *degradation.DegradationController
	HealthChecker *health.HealthChecker
	Limiter       *Limiter
	StartTime     time.Time
}

// NewRouter 按配置档位注册路由
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewLimiter(cfg.Limits.MaxConcurrent)
	}
	limitMB := cfg.Limits.MaxContentLengthMB

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	// 状态与探针，所有档位都提供
	r.GET("/", HandleRoot(deps.Service, cfg.Models.CurrentModel, cfg.Server.Port))
	r.GET("/test", HandleTest(deps.Service, cfg.Server.Profile))
	r.GET("/health", HandleHealth(cfg.Server.Env, deps.StartTime))
	r.GET("/readiness", HandleReadiness(deps.Service, deps.HealthChecker, cfg.NeedsModel()))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !cfg.NeedsModel() {
		return r
	}

	r.GET("/health/backend", HandleWhisperHealthCheck(deps.Controller, deps.HealthChecker))

	transcription := r.Group("/")
	transcription.Use(middleware.BodyLimit(cfg.MaxBodyBytes(), PayloadTooLarge(limitMB)))
	transcription.Use(limiter.Middleware())

	if cfg.EnablesTranscribe() {
		r.GET("/models", HandleGetWhisperModels(cfg.Models))
		transcription.POST("/transcribe", HandleTranscribe(deps.Service, limitMB))
		transcription.POST("/transcribe-url", HandleTranscribeURL(deps.Service, limitMB))
	}
	if cfg.EnablesLegacy() {
		transcription.POST("/whisper", HandleLegacyWhisper(deps.Service, limitMB))
	}

	return r
}
