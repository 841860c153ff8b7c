package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voicebot"

// Metrics contains all Prometheus metrics for the voice archive bot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Dispatch metrics
	UpdatesReceived  *prometheus.CounterVec
	EventsProcessed  prometheus.Counter
	EventErrors      prometheus.Counter
	EventDuration    prometheus.Histogram
	QueueSize        prometheus.Gauge
	DroppedUpdates   prometheus.Counter

	// Session metrics
	ActiveSessions prometheus.Gauge
	Transitions    *prometheus.CounterVec

	// Audio chunking metrics
	AudioDecodeErrors prometheus.Counter
	SegmentsGenerated prometheus.Counter
	SegmentDuration   prometheus.Histogram
	SegmentSize       prometheus.Histogram

	// Silence gate metrics
	SilentSegments prometheus.Counter

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Record store metrics
	RecordsSubmitted *prometheus.CounterVec
	Searches         *prometheus.CounterVec
	SearchResults    prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Dispatch metrics
		UpdatesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_received_total",
			Help:      "Total number of inbound events by kind",
		}, []string{"kind"}),
		EventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Total number of events routed through the state machine",
		}),
		EventErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Total number of events whose routing returned an error",
		}),
		EventDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent routing one event",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}),
		QueueSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_size",
			Help:      "Current number of events waiting in worker queues",
		}),
		DroppedUpdates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Total number of transport updates that carried no usable event",
		}),

		// Session metrics
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Current number of known user sessions",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of dialog state transitions by target state",
		}, []string{"state"}),

		// Audio chunking metrics
		AudioDecodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_decode_errors_total",
			Help:      "Total number of recordings that could not be decoded",
		}),
		SegmentsGenerated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_segments_generated_total",
			Help:      "Total number of audio segments generated",
		}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_segment_duration_seconds",
			Help:      "Duration of generated audio segments",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		SegmentSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_segment_size_bytes",
			Help:      "Size of generated audio segments in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		SilentSegments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vad_silent_segments_total",
			Help:      "Total number of segments skipped by the silence gate",
		}),

		// Transcription metrics
		TranscriptionRequests: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_requests_total",
			Help:      "Total number of segment recognition requests sent",
		}),
		TranscriptionSuccesses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_successes_total",
			Help:      "Total number of segments recognized successfully",
		}),
		TranscriptionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_failures_total",
			Help:      "Total number of failed segments by reason",
		}, []string{"reason"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of segment recognition requests",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_retries_total",
			Help:      "Total number of recognition request retries",
		}),

		// Record store metrics
		RecordsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_submitted_total",
			Help:      "Total number of record submissions by collection and result",
		}, []string{"collection", "result"}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of record searches by query kind and result",
		}, []string{"kind", "result"}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of records returned per search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordUpdate increments the inbound events counter for kind
func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.UpdatesReceived.WithLabelValues(kind).Inc()
}

// RecordDroppedUpdate counts a transport update that was ignored
func (m *Metrics) RecordDroppedUpdate() {
	if m == nil {
		return
	}
	m.DroppedUpdates.Inc()
}

// RecordEventProcessed records a routed event and its duration
func (m *Metrics) RecordEventProcessed(durationSeconds float64, failed bool) {
	if m == nil {
		return
	}
	m.EventsProcessed.Inc()
	m.EventDuration.Observe(durationSeconds)
	if failed {
		m.EventErrors.Inc()
	}
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordTransition counts a state change into state
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

// RecordDecodeError counts a recording that failed to decode
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.AudioDecodeErrors.Inc()
}

// RecordSegmentGenerated records a generated audio segment
func (m *Metrics) RecordSegmentGenerated(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.SegmentsGenerated.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.SegmentSize.Observe(float64(sizeBytes))
}

// RecordSilentSegment counts a segment rejected by the silence gate
func (m *Metrics) RecordSilentSegment() {
	if m == nil {
		return
	}
	m.SilentSegments.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed segment
func (m *Metrics) RecordTranscriptionFailure(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionFailures.WithLabelValues(reason).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	if m == nil {
		return
	}
	m.TranscriptionRetries.Inc()
}

// RecordSubmit records a record store submission
func (m *Metrics) RecordSubmit(collection string, err error) {
	if m == nil {
		return
	}
	m.RecordsSubmitted.WithLabelValues(collection, result(err)).Inc()
}

// RecordSearch records a record store query and its result size
func (m *Metrics) RecordSearch(kind string, found int, err error) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(kind, result(err)).Inc()
	if err == nil {
		m.SearchResults.Observe(float64(found))
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
