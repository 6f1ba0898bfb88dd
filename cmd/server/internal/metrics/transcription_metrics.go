package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TranscriptionsTotal 转写请求总数计数器
	// Labels: source (upload/url/legacy), status (success/error)
	TranscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_gateway_transcriptions_total",
			Help: "Total number of transcription requests by source and status",
		},
		[]string{"source", "status"},
	)

	// TranscriptionErrorsTotal 转写错误总数计数器
	// Labels: source (upload/url/legacy), error_code (INVALID_INPUT/MODEL_UNAVAILABLE/...)
	TranscriptionErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_gateway_transcription_errors_total",
			Help: "Total number of transcription errors by source and error code",
		},
		[]string{"source", "error_code"},
	)

	// ModelLoaded 模型加载状态量规（0=未加载，1=已加载）
	ModelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whisper_gateway_model_loaded",
			Help: "Whisper model load status (0=not loaded, 1=loaded)",
		},
	)

	// TranscriptionDuration 转写耗时直方图（秒）
	// Labels: source (upload/url/legacy)
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	TranscriptionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisper_gateway_transcription_duration_seconds",
			Help:    "Transcription processing duration in seconds by source",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)

	// AudioSeconds 已转写音频时长直方图（秒）
	AudioSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whisper_gateway_audio_seconds",
			Help:    "Duration of transcribed audio in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)
)

// RecordTranscription 记录一次转写请求完成
func RecordTranscription(source string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	TranscriptionsTotal.WithLabelValues(source, status).Inc()
}

// RecordError 记录转写错误
func RecordError(source, errorCode string) {
	TranscriptionErrorsTotal.WithLabelValues(source, errorCode).Inc()
}

// SetModelLoaded 设置模型加载状态
func SetModelLoaded(loaded bool) {
	if loaded {
		ModelLoaded.Set(1)
	} else {
		ModelLoaded.Set(0)
	}
}

// RecordDuration 记录转写耗时（秒）
func RecordDuration(source string, durationSeconds float64) {
	TranscriptionDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordAudioSeconds 记录已转写音频时长（秒），未知时长不记录
func RecordAudioSeconds(seconds float64) {
	if seconds > 0 {
		AudioSeconds.Observe(seconds)
	}
}
