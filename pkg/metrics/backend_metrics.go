// Package metrics provides Prometheus metrics for the Whisper backends used by the gateway.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backend call metrics
var (
	// backendCallsTotal records the total number of calls made to a transcription backend.
	// Labels:
	//   - backend: Backend name (e.g., "go-whisper", "local-whisper")
	//   - source: Audio source kind ("file" or "url")
	//   - status: Call status ("success" or "failed")
	backendCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_backend_calls_total",
			Help: "Total number of calls made to a transcription backend",
		},
		[]string{"backend", "source", "status"},
	)

	// backendCallDuration records how long a backend call took.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s, 600s
	backendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whisper_backend_call_duration_seconds",
			Help:    "Duration of transcription backend calls in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"backend"},
	)

	// degradationEventsTotal records switches between the primary and the fallback backend.
	// Labels:
	//   - from_backend: Backend that was active before the switch
	//   - to_backend: Backend that is active after the switch
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whisper_backend_switch_events_total",
			Help: "Total number of switches between primary and fallback transcription backends",
		},
		[]string{"from_backend", "to_backend"},
	)

	// backendHealthy reports the last health probe result per backend (1 healthy, 0 unhealthy).
	backendHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whisper_backend_healthy",
			Help: "Health status of a transcription backend (0=unhealthy, 1=healthy)",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(backendCallsTotal)
	prometheus.MustRegister(backendCallDuration)
	prometheus.MustRegister(degradationEventsTotal)
	prometheus.MustRegister(backendHealthy)
}

// RecordBackendCall records one backend invocation.
func RecordBackendCall(backend, source string, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	backendCallsTotal.WithLabelValues(backend, source, status).Inc()
}

// RecordBackendDuration records the duration of a backend call in seconds.
func RecordBackendDuration(backend string, durationSeconds float64) {
	backendCallDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// RecordDegradationEvent records a switch from one backend to another.
func RecordDegradationEvent(fromBackend, toBackend string) {
	degradationEventsTotal.WithLabelValues(fromBackend, toBackend).Inc()
}

// SetBackendHealthy sets the health gauge of a backend.
func SetBackendHealthy(backend string, healthy bool) {
	if healthy {
		backendHealthy.WithLabelValues(backend).Set(1)
	} else {
		backendHealthy.WithLabelValues(backend).Set(0)
	}
}
