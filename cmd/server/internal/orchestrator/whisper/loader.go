package whisper

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend kinds accepted by Load.
const (
	BackendHTTP = "http"
	BackendCLI  = "cli"
)

// startupProbeTimeout bounds the health probe run while loading an HTTP backend.
const startupProbeTimeout = 10 * time.Second

// BackendConfig describes one transcription backend.
type BackendConfig struct {
	Kind        string // "http" (go-whisper) or "cli" (local program)
	APIURL      string // go-whisper base URL
	ProgramPath string // local whisper executable
	ModelPath   string // local model directory
	Model       string // default model name
}

// Load builds the configured backend once at process start.
//
// A CLI backend is validated on disk; an HTTP backend must answer its health probe.
// Callers treat an error as "model not loaded" and keep serving without a provider.
func Load(ctx context.Context, cfg BackendConfig) (WhisperTranscriber, error) {
	switch strings.ToLower(cfg.Kind) {
	case BackendCLI:
		impl, err := NewLocalWhisperImpl(cfg.ProgramPath, cfg.ModelPath, cfg.Model)
		if err != nil {
			return nil, err
		}
		return impl, nil
	case "", BackendHTTP:
		if cfg.APIURL == "" {
			return nil, fmt.Errorf("whisper API URL is empty")
		}
		impl := NewGoWhisperImpl(strings.TrimRight(cfg.APIURL, "/"), cfg.Model)
		probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
		defer cancel()
		if ok, err := impl.HealthCheck(probeCtx); !ok {
			return nil, fmt.Errorf("go-whisper not reachable at %s: %w", cfg.APIURL, err)
		}
		return impl, nil
	default:
		return nil, fmt.Errorf("unknown whisper backend: %s", cfg.Kind)
	}
}
