package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_sessions_started_total",
			Help: "Total number of deliberation sessions started",
		},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_sessions_completed_total",
			Help: "Total number of sessions completed, by termination reason",
		},
		[]string{"reason"},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "council_session_duration_seconds",
			Help:    "Deliberation session duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SessionStoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "council_session_store_size",
			Help: "Number of sessions held in the in-memory store",
		},
	)

	SessionEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_session_evictions_total",
			Help: "Total number of sessions evicted from the store",
		},
	)

	// Deliberation metrics
	RoundsExecuted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_rounds_total",
			Help: "Total number of deliberation rounds executed",
		},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "council_round_duration_seconds",
			Help:    "Duration of a single deliberation round in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StallsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_stalls_detected_total",
			Help: "Total number of rounds classified as stalls",
		},
	)

	ProposalsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_proposals_superseded_total",
			Help: "Total number of proposals replaced during deliberation",
		},
	)

	// Participant invocation metrics
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_invocations_total",
			Help: "Total participant invocations, by participant and status",
		},
		[]string{"participant", "status"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "council_invocation_duration_seconds",
			Help:    "Participant invocation latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"participant"},
	)

	// Streaming metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_events_published_total",
			Help: "Total events published to the session stream, by type",
		},
		[]string{"type"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_events_dropped_total",
			Help: "Total events dropped due to slow subscribers",
		},
	)

	// Fast path metrics
	QuickResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_quick_responses_total",
			Help: "Total queries answered via the quick price fast path",
		},
	)

	Clarifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_clarifications_total",
			Help: "Total queries paused pending symbol clarification",
		},
	)

	// Market data metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "council_quote_requests_total",
			Help: "Total market quote requests, by status",
		},
		[]string{"status"},
	)

	QuoteCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_quote_cache_hits_total",
			Help: "Total quote requests served from cache",
		},
	)

	// Transcript sink metrics
	TranscriptAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_transcript_appends_total",
			Help: "Total messages appended to the transcript stream",
		},
	)

	TranscriptFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "council_transcript_append_failures_total",
			Help: "Total transcript append failures (best effort, not surfaced)",
		},
	)

	// WebSocket metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "council_ws_active_connections",
			Help: "Number of active websocket connections",
		},
	)
)
