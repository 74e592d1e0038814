package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice assistant
type Metrics struct {
	// Capture metrics
	ChunksSent    prometheus.Counter
	ChunksDropped prometheus.Counter
	Loudness      prometheus.Gauge

	// Playback metrics
	ChunksReceived prometheus.Counter
	DecodeErrors   prometheus.Counter
	Interruptions  prometheus.Counter
	ActiveSources  prometheus.Gauge

	// Session metrics
	SessionsStarted prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	SessionState    prometheus.Gauge
	SessionDuration prometheus.Histogram
	TurnsCompleted  prometheus.Counter

	// Transcript metrics
	TranscriptEntries prometheus.Counter
	TranscriptDropped prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_capture_chunks_sent_total",
			Help: "Total number of microphone chunks handed to the live session",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_capture_chunks_dropped_total",
			Help: "Total number of microphone chunks dropped under backpressure",
		}),
		Loudness: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceassist_capture_loudness",
			Help: "Most recent microphone loudness level (0-1)",
		}),

		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_playback_chunks_received_total",
			Help: "Total number of synthesized audio chunks received",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_playback_decode_errors_total",
			Help: "Total number of received audio chunks that failed to decode",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_playback_interruptions_total",
			Help: "Total number of playback interruptions",
		}),
		ActiveSources: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceassist_playback_active_sources",
			Help: "Current number of scheduled or playing sources",
		}),

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_sessions_started_total",
			Help: "Total number of live sessions started",
		}),
		SessionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceassist_session_errors_total",
			Help: "Total number of session failures by kind",
		}, []string{"kind"}),
		SessionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceassist_session_state",
			Help: "Current session state (0 idle, 1 active, 2 speaking)",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceassist_session_duration_seconds",
			Help:    "Duration of live sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		TurnsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_turns_completed_total",
			Help: "Total number of completed model turns",
		}),

		TranscriptEntries: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_transcript_entries_total",
			Help: "Total number of finalized transcript entries",
		}),
		TranscriptDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceassist_transcript_entries_dropped_total",
			Help: "Total number of transcript entries not queued for storage",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceassist_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceassist_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordHTTPRequest records one served HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, seconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}
