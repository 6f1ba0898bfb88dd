package api

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/health"
)

// Version 服务版本
const Version = "1.0.0"

// RootResponse GET / 响应
type RootResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	ModelLoaded bool   `json:"model_loaded"`
	Model       string `json:"model"`
	Port        string `json:"port"`
}

// HealthCheckResponse 存活探针响应
type HealthCheckResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Env       string    `json:"env"`
}

// ReadinessCheck 单项就绪检查
type ReadinessCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // ok, fail
	Error  string `json:"error,omitempty"`
}

// ReadinessCheckResponse 就绪探针响应
type ReadinessCheckResponse struct {
	Ready     bool             `json:"ready"`
	Checks    []ReadinessCheck `json:"checks"`
	Timestamp time.Time        `json:"timestamp"`
}

// HandleRoot GET /
func HandleRoot(svc *orchestrator.Service, model, port string) gin.HandlerFunc {
	if port == "" {
		port = "not set"
	}
	return func(c *gin.Context) {
		loaded := svc != nil && svc.ModelLoaded()
		c.JSON(http.StatusOK, RootResponse{
			Status:      "running",
			Message:     "Whisper gateway is running",
			ModelLoaded: loaded,
			Model:       model,
			Port:        port,
		})
	}
}

// HandleTest GET /test
func HandleTest(svc *orchestrator.Service, profile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		modelStatus := "not loaded"
		if svc != nil && svc.ModelLoaded() {
			modelStatus = "loaded (" + svc.BackendName() + ")"
		}
		c.JSON(http.StatusOK, gin.H{
			"test":         "OK",
			"debug":        "whisper-gateway profile=" + profile,
			"model_status": modelStatus,
		})
	}
}

// HandleHealth 存活探针
func HandleHealth(env string, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthCheckResponse{
			Status:    "healthy",
			Service:   "whisper-gateway",
			Version:   Version,
			Uptime:    time.Since(startTime).String(),
			Timestamp: time.Now(),
			Env:       env,
		})
	}
}

// HandleReadiness 就绪探针：模型已加载、主后端健康、临时目录可写
func HandleReadiness(svc *orchestrator.Service, hc *health.HealthChecker, needsModel bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := []ReadinessCheck{}
		allReady := true
		add := func(check ReadinessCheck) {
			if check.Status != "ok" {
				allReady = false
			}
			checks = append(checks, check)
		}

		if needsModel {
			modelCheck := ReadinessCheck{Name: "model", Status: "ok"}
			if svc == nil || !svc.ModelLoaded() {
				modelCheck.Status = "fail"
				modelCheck.Error = "Whisper model not loaded"
			}
			add(modelCheck)

			if hc != nil {
				backendCheck := ReadinessCheck{Name: "backend", Status: "ok"}
				if status := hc.GetStatus(); !status.IsHealthy {
					backendCheck.Status = "fail"
					backendCheck.Error = status.ErrorMessage
				}
				add(backendCheck)
			}
		}

		if svc != nil {
			dirCheck := ReadinessCheck{Name: "upload_dir", Status: "ok"}
			if !checkDirWritable(svc.Stager().Dir()) {
				dirCheck.Status = "fail"
				dirCheck.Error = "upload directory not writable"
			}
			add(dirCheck)
		}

		httpStatus := http.StatusOK
		if !allReady {
			httpStatus = http.StatusServiceUnavailable
		}
		c.JSON(httpStatus, ReadinessCheckResponse{
			Ready:     allReady,
			Checks:    checks,
			Timestamp: time.Now(),
		})
	}
}

// checkDirWritable 通过创建并删除探测文件判断目录是否可写
func checkDirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe := filepath.Join(dir, ".ready-"+uuid.NewString())
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	return os.Remove(probe) == nil
}
