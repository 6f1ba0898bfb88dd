package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/houzhh15/whisper-gateway/pkg/logger"
)

// GoWhisperImpl implements WhisperTranscriber for the go-whisper HTTP service.
// It wraps the go-whisper REST API (ghcr.io/mutablelogic/go-whisper container) and sends
// audio as multipart/form-data requests.
type GoWhisperImpl struct {
	apiURL       string       // Base URL of the go-whisper service (e.g., "http://whisper:80")
	defaultModel string       // Model used when the caller does not pick one
	httpClient   *http.Client // Reusable HTTP client, no timeout: calls block until the backend answers
}

// NewGoWhisperImpl creates a new GoWhisperImpl for the given API URL and default model.
// An empty model falls back to "ggml-base".
//
// The HTTP client carries no timeout; a transcription call lasts as long as the backend
// needs, and is only interrupted when the request context is cancelled.
func NewGoWhisperImpl(apiURL, defaultModel string) *GoWhisperImpl {
	if defaultModel == "" {
		defaultModel = "ggml-base"
	}
	return &GoWhisperImpl{
		apiURL:       apiURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{},
	}
}

// openSource returns a reader over the audio plus the filename to declare in the form.
// Remote sources are streamed from their URL and never written to disk.
func (g *GoWhisperImpl) openSource(ctx context.Context, source string) (io.ReadCloser, string, error) {
	if !IsURL(source) {
		file, err := os.Open(source)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open audio file: %w", err)
		}
		return file, filepath.Base(source), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("failed to download audio: status %d", resp.StatusCode)
	}

	name := "audio"
	if u, err := url.Parse(source); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	return resp.Body, name, nil
}

// Transcribe performs audio transcription by sending a multipart/form-data request to go-whisper.
// The body is produced through an io.Pipe, so neither local files nor remote sources are
// held in memory.
//
// API endpoint: POST {apiURL}/api/whisper/transcribe
// Reference: https://github.com/mutablelogic/go-whisper/blob/main/doc/API.md#transcription
func (g *GoWhisperImpl) Transcribe(ctx context.Context, source string, options *TranscribeOptions) (*TranscriptionResult, error) {
	audio, filename, err := g.openSource(ctx, source)
	if err != nil {
		return nil, err
	}

	model := g.defaultModel
	language := ""
	if options != nil {
		if options.Model != "" {
			model = options.Model
		}
		language = options.Language
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		defer audio.Close()
		pw.CloseWithError(writeTranscribeForm(writer, audio, filename, model, language))
	}()

	endpoint := fmt.Sprintf("%s/api/whisper/transcribe", g.apiURL)
	logger.L().Debug("go-whisper request", "endpoint", endpoint, "file", filename, "model", model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		logger.L().Warn("go-whisper error response", "status", resp.StatusCode, "body", string(bodyBytes))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result TranscriptionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &result, nil
}

// writeTranscribeForm writes the go-whisper form fields and closes the multipart writer.
func writeTranscribeForm(writer *multipart.Writer, audio io.Reader, filename, model, language string) error {
	// go-whisper API uses the 'audio' field name
	part, err := writer.CreateFormFile("audio", filename)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return fmt.Errorf("failed to copy audio data: %w", err)
	}

	if err := writer.WriteField("model", model); err != nil {
		return fmt.Errorf("failed to write model field: %w", err)
	}
	// Always JSON so the response can be parsed
	if err := writer.WriteField("response_format", "json"); err != nil {
		return fmt.Errorf("failed to write response_format field: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return fmt.Errorf("failed to write language field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return nil
}

// HealthCheck verifies that the go-whisper service is operational.
// It sends GET /api/whisper/model and reports healthy on 200 OK.
func (g *GoWhisperImpl) HealthCheck(ctx context.Context) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/whisper/model", g.apiURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}

	return false, fmt.Errorf("health check failed: status %d", resp.StatusCode)
}

// Name returns the identifier of this transcriber implementation.
func (g *GoWhisperImpl) Name() string {
	return "go-whisper"
}
