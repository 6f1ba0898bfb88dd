// Package health provides health checking for Whisper transcription backends.
// It implements periodic health probes with configurable intervals and failure thresholds.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
	"github.com/houzhh15/whisper-gateway/pkg/logger"
	"github.com/houzhh15/whisper-gateway/pkg/metrics"
)

// probeTimeout bounds a single health probe.
const probeTimeout = 10 * time.Second

// ServiceStatus represents the current health state of a transcription backend.
// All fields are safe for JSON serialization and can be exposed via API endpoints.
type ServiceStatus struct {
	// IsHealthy indicates whether the backend passed recent health checks
	IsHealthy bool `json:"is_healthy"`

	// LastCheckTime records when the most recent health check was performed
	LastCheckTime time.Time `json:"last_check_time"`

	// ConsecutiveFails counts how many health checks have failed in a row.
	// Reset to 0 when a check succeeds.
	ConsecutiveFails int `json:"consecutive_fails"`

	// ErrorMessage contains the last error message if the health check failed
	ErrorMessage string `json:"error_message"`
}

// HealthChecker performs periodic health checks on a WhisperTranscriber implementation.
// It tracks consecutive failures so the degradation controller can switch backends.
//
// Thread-safety: All public methods are thread-safe via sync.RWMutex.
type HealthChecker struct {
	transcriber   whisper.WhisperTranscriber
	status        *ServiceStatus // protected by mu
	mu            sync.RWMutex
	checkInterval time.Duration
	failThreshold int
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewHealthChecker creates a new HealthChecker.
//
// The checker starts in a healthy state (the backend already passed its load-time probe).
// Call Start() to begin periodic health checks.
func NewHealthChecker(transcriber whisper.WhisperTranscriber, checkInterval time.Duration, failThreshold int) *HealthChecker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &HealthChecker{
		transcriber:   transcriber,
		checkInterval: checkInterval,
		failThreshold: failThreshold,
		stopChan:      make(chan struct{}),
		status: &ServiceStatus{
			IsHealthy:     true,
			LastCheckTime: time.Now(),
		},
	}
}

// Start runs periodic health checks until Stop() is called or ctx is cancelled.
// It performs an immediate check, then checks at regular intervals. Start blocks;
// run it in its own goroutine.
func (hc *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	hc.CheckNow(ctx)

	for {
		select {
		case <-ticker.C:
			hc.CheckNow(ctx)
		case <-hc.stopChan:
			logger.L().Info("health checker stopped", "backend", hc.transcriber.Name())
			return
		case <-ctx.Done():
			logger.L().Info("health checker context cancelled", "backend", hc.transcriber.Name())
			return
		}
	}
}

// CheckNow executes a single health check and updates the status.
func (hc *HealthChecker) CheckNow(ctx context.Context) ServiceStatus {
	checkCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	name := hc.transcriber.Name()
	isHealthy, err := hc.transcriber.HealthCheck(checkCtx)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.LastCheckTime = time.Now()

	if isHealthy {
		if !hc.status.IsHealthy {
			logger.L().Info("backend recovered", "backend", name)
		}
		hc.status.IsHealthy = true
		hc.status.ConsecutiveFails = 0
		hc.status.ErrorMessage = ""
	} else {
		hc.status.ConsecutiveFails++
		errMsg := "unknown error"
		if err != nil {
			errMsg = err.Error()
		}
		hc.status.ErrorMessage = fmt.Sprintf("Health check failed: %s", errMsg)

		if hc.status.ConsecutiveFails >= hc.failThreshold {
			hc.status.IsHealthy = false
			logger.L().Error("backend marked unhealthy",
				"backend", name, "consecutive_fails", hc.status.ConsecutiveFails, "error", errMsg)
		} else {
			logger.L().Warn("backend health check failed",
				"backend", name, "fails", hc.status.ConsecutiveFails, "threshold", hc.failThreshold, "error", errMsg)
		}
	}

	metrics.SetBackendHealthy(name, hc.status.IsHealthy)
	return *hc.status
}

// GetStatus returns a copy of the current health status.
func (hc *HealthChecker) GetStatus() ServiceStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return *hc.status
}

// Stop terminates the health checking goroutine. Safe to call multiple times.
func (hc *HealthChecker) Stop() {
	hc.stopOnce.Do(func() {
		close(hc.stopChan)
	})
}
