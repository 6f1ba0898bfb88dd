package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/houzhh15/whisper-gateway/pkg/logger"
)

// LocalWhisperImpl implements WhisperTranscriber for a local whisper executable
// (e.g., a whisper.cpp build mounted into the container).
type LocalWhisperImpl struct {
	programPath  string // Path to the whisper executable (e.g., /app/bin/whisper)
	modelPath    string // Directory containing whisper model files (e.g., /models/whisper)
	defaultModel string // Model used when the caller does not pick one
}

// NewLocalWhisperImpl creates a new LocalWhisperImpl with startup validation.
//
// Startup validation:
//   - Checks program file existence using os.Stat
//   - Verifies executable permission bits (Unix mode 0111)
//   - Returns error immediately if validation fails to prevent runtime surprises
func NewLocalWhisperImpl(programPath, modelPath, defaultModel string) (*LocalWhisperImpl, error) {
	info, err := os.Stat(programPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("whisper program not found: %s", programPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat whisper program: %w", err)
	}

	if info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("whisper program is not executable: %s (mode: %s)", programPath, info.Mode())
	}

	if defaultModel == "" {
		defaultModel = "base"
	}

	return &LocalWhisperImpl{
		programPath:  programPath,
		modelPath:    modelPath,
		defaultModel: defaultModel,
	}, nil
}

// modelArg resolves the model argument: ggml- prefixed, without .bin, and placed
// inside modelPath when one is configured.
func (l *LocalWhisperImpl) modelArg(options *TranscribeOptions) string {
	model := l.defaultModel
	if options != nil && options.Model != "" {
		model = options.Model
	}
	model = strings.TrimSuffix(model, ".bin")
	if !strings.HasPrefix(model, "ggml-") {
		model = "ggml-" + model
	}
	if l.modelPath != "" {
		return filepath.Join(l.modelPath, model+".bin")
	}
	return model
}

// Transcribe invokes the local whisper CLI program.
//
// CLI contract:
//   - whisper transcribe <model> <source> --format json [--language l]
//   - <source> is either a file path or a URL; URLs are handed to the program untouched
//   - Output: a stream of JSON segment objects on stdout
func (l *LocalWhisperImpl) Transcribe(ctx context.Context, source string, options *TranscribeOptions) (*TranscriptionResult, error) {
	args := []string{"transcribe", l.modelArg(options), source, "--format", "json"}

	language := ""
	if options != nil && options.Language != "" {
		language = options.Language
		args = append(args, "--language", language)
	}

	cmd := exec.CommandContext(ctx, l.programPath, args...)
	logger.L().Debug("local whisper exec", "program", l.programPath, "args", strings.Join(args, " "))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("CLI execution failed: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}

	segments, err := decodeSegments(output)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if t := strings.TrimSpace(seg.Text); t != "" {
			texts = append(texts, t)
		}
	}

	return &TranscriptionResult{
		Segments: segments,
		Text:     strings.Join(texts, " "),
		Language: language,
	}, nil
}

// decodeSegments parses consecutive JSON segment objects (pretty-printed, not strict JSONL).
func decodeSegments(output []byte) ([]TranscriptionSegment, error) {
	segments := []TranscriptionSegment{}
	decoder := json.NewDecoder(bytes.NewReader(output))
	for {
		var segment TranscriptionSegment
		if err := decoder.Decode(&segment); err != nil {
			if errors.Is(err, io.EOF) {
				if len(segments) == 0 {
					return nil, fmt.Errorf("no segments found in output")
				}
				return segments, nil
			}
			return nil, fmt.Errorf("failed to parse JSON segment: %w", err)
		}
		segments = append(segments, segment)
	}
}

// HealthCheck runs `whisper version` and reports healthy when it exits 0 with output.
func (l *LocalWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	cmd := exec.CommandContext(ctx, l.programPath, "version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, fmt.Errorf("version check failed: %w, output: %s", err, string(output))
	}

	if len(output) > 0 {
		return true, nil
	}

	return false, fmt.Errorf("unexpected empty version output")
}

// Name returns the identifier of this transcriber implementation.
func (l *LocalWhisperImpl) Name() string {
	return "local-whisper"
}
