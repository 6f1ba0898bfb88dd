package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/config"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/upload"
	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
)

// fakeTranscriber 返回预设结果的后端
type fakeTranscriber struct {
	mu      sync.Mutex
	result  *whisper.TranscriptionResult
	err     error
	sources []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, source string, options *whisper.TranscribeOptions) (*whisper.TranscriptionResult, error) {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) HealthCheck(ctx context.Context) (bool, error) { return true, nil }

func (f *fakeTranscriber) Name() string { return "fake-whisper" }

type testServer struct {
	router    *gin.Engine
	uploadDir string
	provider  *fakeTranscriber
}

func testConfig(t *testing.T, profile string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{Env: "dev", Port: "8000", Profile: profile},
		Log:    config.LogConfig{Level: "info", Format: "console"},
		Whisper: config.WhisperConfig{
			Backend: whisper.BackendHTTP, Model: "base", Device: "cpu",
			HealthCheckInterval: time.Minute, HealthFailThreshold: 3,
		},
		Limits: config.LimitsConfig{MaxContentLengthMB: 1, MaxConcurrent: 2, UploadTmpDir: t.TempDir()},
		Models: config.ModelCatalog{
			AvailableModels: config.DefaultAvailableModels,
			CurrentModel:    "base",
			Device:          "cpu",
		},
	}
}

// newTestServer provider 为 nil 时模拟模型加载失败
func newTestServer(t *testing.T, profile string, provider *fakeTranscriber) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig(t, profile)
	var backend whisper.WhisperTranscriber
	if provider != nil {
		backend = provider
	}
	svc := orchestrator.NewService(backend, upload.NewStager(cfg.Limits.UploadTmpDir))

	return &testServer{
		router: NewRouter(Dependencies{
			Config:    cfg,
			Service:   svc,
			StartTime: time.Now(),
		}),
		uploadDir: cfg.Limits.UploadTmpDir,
		provider:  provider,
	}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type formPart struct {
	field, filename string
	content         []byte
}

// multipartRequest 构造 multipart 请求；filename 为空的文件部分会被服务端解析为普通表单值
func multipartRequest(t *testing.T, path string, parts []formPart, values map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := w.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.content)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func silentWAV(t *testing.T, seconds int) []byte {
	t.Helper()
	const sampleRate = 16000
	path := filepath.Join(t.TempDir(), "src.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, sampleRate*seconds),
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func helloProvider() *fakeTranscriber {
	return &fakeTranscriber{result: &whisper.TranscriptionResult{
		Text:     "hello ",
		Language: "en",
		Segments: []whisper.TranscriptionSegment{{Start: 0.0, End: 2.5, Text: "hello "}},
	}}
}

func TestStatusRoutes(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, helloProvider())

	w := s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	root := decode(t, w)
	assert.Equal(t, "running", root["status"])
	assert.Equal(t, true, root["model_loaded"])
	assert.Equal(t, "base", root["model"])
	assert.Equal(t, "8000", root["port"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	test := decode(t, w)
	assert.Equal(t, "OK", test["test"])
	assert.Equal(t, "loaded (fake-whisper)", test["model_status"])
	assert.Contains(t, test, "debug")

	w = s.do(httptest.NewRequest(http.MethodGet, "/models", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"available_models":["tiny","base","small","medium","large"],"current_model":"base","device":"cpu"}`, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "whisper_gateway_model_loaded")
}

func TestTranscribeUploadScenario(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, helloProvider())

	req := multipartRequest(t, "/transcribe",
		[]formPart{{field: "audio", filename: "clip.wav", content: silentWAV(t, 3)}},
		map[string]string{"language": "auto"})
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"text": "hello ",
		"language": "en",
		"duration": 3,
		"segments": [{"start": 0, "end": 2.5, "text": "hello", "duration": 2.5}],
		"total_speech_time": 2.5,
		"silence_time": 0.5
	}`, w.Body.String())
	s.assertNoTempFiles(t)
}

func TestTranscribeWithoutTimestamps(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, helloProvider())

	req := multipartRequest(t, "/transcribe",
		[]formPart{{field: "audio", filename: "clip.MP3", content: []byte("ID3")}},
		map[string]string{"timestamps": "false"})
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	for _, key := range []string{"segments", "total_speech_time", "silence_time"} {
		assert.NotContains(t, body, key)
	}
	assert.Equal(t, "hello ", body["text"])
	s.assertNoTempFiles(t)
}

func TestTranscribeInputErrors(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, helloProvider())

	t.Run("missing audio field", func(t *testing.T) {
		req := multipartRequest(t, "/transcribe", nil, map[string]string{"language": "fr"})
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Aucun fichier audio fourni"}`, w.Body.String())
	})

	t.Run("not multipart", func(t *testing.T) {
		w := s.do(jsonRequest("/transcribe", `{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Aucun fichier audio fourni"}`, w.Body.String())
	})

	t.Run("empty filename", func(t *testing.T) {
		req := multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "", content: []byte("x")}}, nil)
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Aucun fichier sélectionné"}`, w.Body.String())
	})

	t.Run("unsupported extension", func(t *testing.T) {
		req := multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "notes.txt", content: []byte("x")}}, nil)
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Format de fichier non supporté"}`, w.Body.String())
	})

	assert.Empty(t, s.provider.sources)
	s.assertNoTempFiles(t)
}

func TestTranscribeProviderFailure(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, &fakeTranscriber{err: errors.New("decode error")})

	req := multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "clip.ogg", content: []byte("OggS")}}, nil)
	w := s.do(req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Erreur lors de la transcription: decode error"}`, w.Body.String())
	s.assertNoTempFiles(t)
}

func TestTranscribePayloadTooLarge(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, helloProvider())

	big := bytes.Repeat([]byte{0}, 2<<20)
	req := multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "big.wav", content: big}}, nil)
	w := s.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"Fichier trop volumineux (max 1 MB)"}`, w.Body.String())

	// 未声明长度时在读取过程中截断
	req = multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "big.wav", content: big}}, nil)
	req.ContentLength = -1
	w = s.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	assert.Empty(t, s.provider.sources)
	s.assertNoTempFiles(t)
}

func TestTranscribeURL(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		s := newTestServer(t, config.ProfileFull, helloProvider())
		w := s.do(jsonRequest("/transcribe-url", `{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"URL audio requise"}`, w.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		s := newTestServer(t, config.ProfileFull, helloProvider())
		w := s.do(jsonRequest("/transcribe-url", `not json`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"URL audio requise"}`, w.Body.String())
	})

	t.Run("success without temp file", func(t *testing.T) {
		s := newTestServer(t, config.ProfileFull, helloProvider())
		w := s.do(jsonRequest("/transcribe-url", `{"url":"https://cdn.example.com/a.wav","timestamps":false}`))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, []string{"https://cdn.example.com/a.wav"}, s.provider.sources)
		assert.JSONEq(t, `{"text":"hello ","language":"en","duration":2.5}`, w.Body.String())
		s.assertNoTempFiles(t)
	})

	t.Run("timestamps default to true", func(t *testing.T) {
		s := newTestServer(t, config.ProfileFull, helloProvider())
		w := s.do(jsonRequest("/transcribe-url", `{"url":"https://cdn.example.com/a.wav","language":"en"}`))

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Contains(t, body, "segments")
		assert.Equal(t, 0.0, body["silence_time"])
	})
}

func TestModelNotLoaded(t *testing.T) {
	s := newTestServer(t, config.ProfileFull, nil)

	req := multipartRequest(t, "/whisper", []formPart{{field: "file", filename: "a.wav", content: []byte("RIFF")}}, nil)
	w := s.do(req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Whisper model not loaded"}`, w.Body.String())

	req = multipartRequest(t, "/transcribe", []formPart{{field: "audio", filename: "a.wav", content: []byte("RIFF")}}, nil)
	w = s.do(req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Modèle Whisper non chargé"}`, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, false, decode(t, w)["model_loaded"])

	w = s.do(httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "/health/backend", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.assertNoTempFiles(t)
}

func TestLegacyWhisper(t *testing.T) {
	t.Run("no files", func(t *testing.T) {
		s := newTestServer(t, config.ProfileLegacy, helloProvider())
		req := multipartRequest(t, "/whisper", nil, map[string]string{"note": "x"})
		w := s.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"No files uploaded"}`, w.Body.String())
	})

	t.Run("every file is transcribed", func(t *testing.T) {
		s := newTestServer(t, config.ProfileLegacy, helloProvider())
		req := multipartRequest(t, "/whisper", []formPart{
			{field: "b", filename: "second.mp3", content: []byte("ID3")},
			{field: "a", filename: "first.wav", content: []byte("RIFF")},
		}, nil)
		w := s.do(req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp LegacyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, "first.wav", resp.Results[0].Filename)
		assert.Equal(t, "second.mp3", resp.Results[1].Filename)
		for _, r := range resp.Results {
			assert.Equal(t, "hello ", r.Transcript)
			assert.Equal(t, "en", r.Language)
			assert.Equal(t, []orchestrator.Segment{{Start: 0, End: 2.5, Text: "hello", Duration: 2.5}}, r.Segments)
		}
		assert.Len(t, s.provider.sources, 2)
		s.assertNoTempFiles(t)
	})

	t.Run("files outside the upload allow-list reach the backend", func(t *testing.T) {
		s := newTestServer(t, config.ProfileLegacy, helloProvider())
		req := multipartRequest(t, "/whisper", []formPart{{field: "f", filename: "voice.flac", content: []byte("fLaC")}}, nil)
		w := s.do(req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp LegacyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "voice.flac", resp.Results[0].Filename)
		assert.Equal(t, "hello ", resp.Results[0].Transcript)
		assert.Len(t, s.provider.sources, 1)
		s.assertNoTempFiles(t)
	})

	t.Run("failure returns the backend error", func(t *testing.T) {
		s := newTestServer(t, config.ProfileLegacy, &fakeTranscriber{err: errors.New("bad audio")})
		req := multipartRequest(t, "/whisper", []formPart{{field: "f", filename: "a.wav", content: []byte("RIFF")}}, nil)
		w := s.do(req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"bad audio"}`, w.Body.String())
		s.assertNoTempFiles(t)
	})
}

func TestProfiles(t *testing.T) {
	cases := []struct {
		profile string
		path    string
		want    int
	}{
		{config.ProfileStub, "/transcribe", http.StatusNotFound},
		{config.ProfileStub, "/whisper", http.StatusNotFound},
		{config.ProfileLegacy, "/transcribe", http.StatusNotFound},
		{config.ProfileLegacy, "/whisper", http.StatusBadRequest},
		{config.ProfileTranscribe, "/whisper", http.StatusNotFound},
		{config.ProfileTranscribe, "/transcribe", http.StatusBadRequest},
	}
	for _, tc := range cases {
		s := newTestServer(t, tc.profile, helloProvider())
		w := s.do(multipartRequest(t, tc.path, nil, nil))
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.profile, tc.path)
	}

	s := newTestServer(t, config.ProfileStub, nil)
	w := s.do(httptest.NewRequest(http.MethodGet, "/readiness", nil))
	assert.Equal(t, http.StatusOK, w.Code, "stub profile does not need a model")
	w = s.do(httptest.NewRequest(http.MethodGet, "/models", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConcurrencyGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t, config.ProfileFull)
	limiter := NewLimiter(1)
	router := NewRouter(Dependencies{
		Config:    cfg,
		Service:   orchestrator.NewService(helloProvider(), upload.NewStager(cfg.Limits.UploadTmpDir)),
		Limiter:   limiter,
		StartTime: time.Now(),
	})

	require.NoError(t, limiter.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := jsonRequest("/transcribe-url", `{"url":"https://cdn.example.com/a.wav"}`).WithContext(ctx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"`+msgBusy+`"}`, w.Body.String())

	limiter.Release()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, jsonRequest("/transcribe-url", `{"url":"https://cdn.example.com/a.wav"}`))
	assert.Equal(t, http.StatusOK, w.Code)

	// 状态路由不受限流影响
	require.NoError(t, limiter.Acquire(context.Background()))
	defer limiter.Release()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
