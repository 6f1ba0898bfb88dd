// Package whisper provides an abstraction layer for Whisper audio transcription backends.
// It defines standard interfaces and data structures to support multiple implementations
// (go-whisper HTTP service and local whisper programs).
package whisper

import (
	"context"
	"net/url"
	"strings"
)

// TranscriptionSegment represents a single segment of transcribed audio with timing information.
// Each segment corresponds to a continuous speech interval in the audio.
type TranscriptionSegment struct {
	// ID is the sequential identifier of this segment within the transcription
	ID int `json:"id"`

	// Start is the beginning time of this segment in seconds from the audio start
	Start float64 `json:"start"`

	// End is the ending time of this segment in seconds from the audio start
	End float64 `json:"end"`

	// Text is the transcribed text content of this segment
	Text string `json:"text"`
}

// TranscriptionResult represents the raw result returned by a backend.
// It includes all segments, the full text, detected language, and audio duration.
type TranscriptionResult struct {
	// Segments is the list of all transcribed segments with timing information
	Segments []TranscriptionSegment `json:"segments"`

	// Text is the complete transcribed text
	Text string `json:"text"`

	// Language is the detected or specified language code (e.g., "en", "fr").
	// Backends that cannot tell leave it empty.
	Language string `json:"language"`

	// Duration is the total duration of the audio in seconds, 0 when unknown
	Duration float64 `json:"duration"`
}

// WhisperTranscriber defines the standard interface for audio transcription backends.
// All concrete implementations (GoWhisperImpl, LocalWhisperImpl) and the degradation
// controller implement this interface.
type WhisperTranscriber interface {
	// Transcribe performs audio transcription on the given source.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - source: Local path of an audio file, or an http(s) URL pointing to one
	//   - options: Optional transcription parameters (model, language)
	//
	// Implementation notes:
	//   - Should wrap external errors with context: fmt.Errorf("...: %w", err)
	//   - Empty segments should return a valid TranscriptionResult, not an error
	Transcribe(ctx context.Context, source string, options *TranscribeOptions) (*TranscriptionResult, error)

	// HealthCheck verifies that the transcription backend is operational.
	HealthCheck(ctx context.Context) (bool, error)

	// Name returns the human-readable identifier of this implementation
	// (e.g., "go-whisper", "local-whisper").
	Name() string
}

// TranscribeOptions defines optional parameters for the Transcribe operation.
// All fields are optional; implementations provide sensible defaults.
type TranscribeOptions struct {
	// Model specifies the Whisper model to use (e.g., "base", "small", "large-v3").
	Model string

	// Language forces transcription in a specific language (ISO 639-1 code, e.g., "en", "fr").
	// Empty string means auto-detection.
	Language string
}

// IsURL reports whether source designates a remote http(s) resource rather than a local path.
func IsURL(source string) bool {
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
