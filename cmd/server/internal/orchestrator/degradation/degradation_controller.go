// Package degradation selects which Whisper backend serves a request.
// It follows the health checker and switches between a primary and an optional fallback backend.
package degradation

import (
	"context"
	"sync"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/health"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
	"github.com/houzhh15/whisper-gateway/pkg/logger"
	"github.com/houzhh15/whisper-gateway/pkg/metrics"
)

// DegradationController manages which transcriber is active based on health status.
// It switches from the primary backend (e.g., go-whisper) to the fallback backend
// (e.g., local-whisper) while the primary is unhealthy, and back once it recovers.
//
// The controller only picks a backend before a call. A failed call is never replayed
// on the other backend.
//
// It implements whisper.WhisperTranscriber itself so the orchestrator sees a single provider.
//
// Thread-safety: All public methods are thread-safe via sync.Mutex.
type DegradationController struct {
	primaryTranscriber  whisper.WhisperTranscriber
	fallbackTranscriber whisper.WhisperTranscriber // may be nil
	healthChecker       *health.HealthChecker      // may be nil
	currentTranscriber  whisper.WhisperTranscriber // protected by mu
	mu                  sync.Mutex
	isDegraded          bool // protected by mu
}

// NewDegradationController creates a new DegradationController.
//
// Parameters:
//   - primary: The preferred transcriber implementation (must not be nil)
//   - fallback: The fallback transcriber, or nil to always stay on primary
//   - hc: The health checker monitoring the primary, or nil to disable switching
//
// Initial state: Uses primary transcriber.
func NewDegradationController(
	primary whisper.WhisperTranscriber,
	fallback whisper.WhisperTranscriber,
	hc *health.HealthChecker,
) *DegradationController {
	return &DegradationController{
		primaryTranscriber:  primary,
		fallbackTranscriber: fallback,
		healthChecker:       hc,
		currentTranscriber:  primary,
	}
}

// GetTranscriber returns the current active transcriber, switching between
// primary and fallback based on the latest health status.
func (dc *DegradationController) GetTranscriber() whisper.WhisperTranscriber {
	if dc.healthChecker == nil || dc.fallbackTranscriber == nil {
		return dc.primaryTranscriber
	}

	status := dc.healthChecker.GetStatus()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	if !status.IsHealthy && !dc.isDegraded {
		logger.L().Warn("switching to fallback backend",
			"fallback", dc.fallbackTranscriber.Name(), "primary", dc.primaryTranscriber.Name())
		metrics.RecordDegradationEvent(dc.primaryTranscriber.Name(), dc.fallbackTranscriber.Name())
		dc.currentTranscriber = dc.fallbackTranscriber
		dc.isDegraded = true
	}

	if status.IsHealthy && dc.isDegraded {
		logger.L().Info("recovering to primary backend", "primary", dc.primaryTranscriber.Name())
		metrics.RecordDegradationEvent(dc.fallbackTranscriber.Name(), dc.primaryTranscriber.Name())
		dc.currentTranscriber = dc.primaryTranscriber
		dc.isDegraded = false
	}

	return dc.currentTranscriber
}

// IsDegraded returns whether the fallback backend is currently in use.
func (dc *DegradationController) IsDegraded() bool {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.isDegraded
}

// Transcribe delegates to the currently selected backend.
func (dc *DegradationController) Transcribe(ctx context.Context, source string, options *whisper.TranscribeOptions) (*whisper.TranscriptionResult, error) {
	return dc.GetTranscriber().Transcribe(ctx, source, options)
}

// HealthCheck delegates to the currently selected backend.
func (dc *DegradationController) HealthCheck(ctx context.Context) (bool, error) {
	return dc.GetTranscriber().HealthCheck(ctx)
}

// Name returns the name of the currently selected backend.
func (dc *DegradationController) Name() string {
	return dc.GetTranscriber().Name()
}
