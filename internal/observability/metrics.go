package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "case_gateway_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "case_gateway_sessions_total",
		Help: "Total number of recording sessions processed",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "case_gateway_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
	})

	sessionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_session_outcomes_total",
		Help: "Terminal states of recording sessions",
	}, []string{"outcome"}) // outcome: "completed" or "error"

	// Audio metrics
	audioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "case_gateway_audio_chunks_total",
		Help: "Total audio chunks relayed",
	})

	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "provider"

	chunkRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "case_gateway_chunk_append_retries_total",
		Help: "Durable chunk appends that needed a retry",
	})

	// Transcript metrics
	transcriptEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_transcript_events_total",
		Help: "Transcript events received from the transcription provider",
	}, []string{"kind"}) // kind: "partial" or "final"

	// Analysis metrics
	analysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_analysis_requests_total",
		Help: "Total language-model analysis requests",
	}, []string{"status"})

	analysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "case_gateway_analysis_latency_seconds",
		Help:    "Language-model analysis latency in seconds",
		Buckets: []float64{0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "case_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "case_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single recording session
type SessionMetrics struct {
	depositionID      string
	startTime         time.Time
	analysisStartTime time.Time
	mu                sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a recording session
func NewSessionMetrics(depositionID string) *SessionMetrics {
	return &SessionMetrics{
		depositionID: depositionID,
		startTime:    time.Now(),
	}
}

// RecordSessionStart records the start of a recording session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a recording session
func (m *SessionMetrics) RecordSessionEnd(outcome string) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	sessionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordAudioChunk records one relayed audio chunk
func (m *SessionMetrics) RecordAudioChunk(bytes int) {
	audioChunks.Inc()
	audioBytesProcessed.WithLabelValues("in").Add(float64(bytes))
}

// RecordProviderBytes records bytes forwarded to the transcription provider
func (m *SessionMetrics) RecordProviderBytes(bytes int) {
	audioBytesProcessed.WithLabelValues("provider").Add(float64(bytes))
}

// RecordChunkRetry records a durable chunk append that needed a retry
func (m *SessionMetrics) RecordChunkRetry() {
	chunkRetries.Inc()
}

// RecordTranscriptEvent records a transcript event by kind
func (m *SessionMetrics) RecordTranscriptEvent(kind string) {
	transcriptEvents.WithLabelValues(kind).Inc()
}

// RecordAnalysisStart records the start of a language-model analysis call
func (m *SessionMetrics) RecordAnalysisStart() {
	m.mu.Lock()
	m.analysisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordAnalysisEnd records the end of a language-model analysis call
func (m *SessionMetrics) RecordAnalysisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.analysisStartTime.IsZero() {
		analysisLatency.Observe(time.Since(m.analysisStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	analysisRequests.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordError records an error outside of any session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
