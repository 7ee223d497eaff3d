// Package metrics instruments the capture and transcription pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the pipeline
type Metrics struct {
	// Capture metrics
	ChunksCaptured prometheus.Counter
	ChunksDropped  prometheus.Counter

	// Accumulator metrics
	FlushUnits prometheus.Counter

	// Dispatch metrics
	DispatchRequests prometheus.Counter
	DispatchFailures prometheus.Counter
	DispatchInFlight prometheus.Gauge
	DispatchDuration prometheus.Histogram
	FragmentsEmpty   prometheus.Counter

	// Merge metrics
	FragmentsMerged prometheus.Counter
	FragmentsLate   prometheus.Counter

	// Session metrics
	ActiveSessions prometheus.Gauge
	Analyses       *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChunksCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_audio_chunks_captured_total",
			Help: "Total number of audio chunks consumed from the capture source",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_audio_chunks_dropped_total",
			Help: "Total number of audio chunks dropped because the capture queue was full",
		}),
		FlushUnits: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_flush_units_total",
			Help: "Total number of accumulated buffers flushed for transcription",
		}),
		DispatchRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_dispatch_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		DispatchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_dispatch_failures_total",
			Help: "Total number of transcription requests that failed",
		}),
		DispatchInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trascrivi_dispatch_in_flight",
			Help: "Current number of transcription requests awaiting a reply",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trascrivi_dispatch_duration_seconds",
			Help:    "Round-trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		FragmentsEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_fragments_empty_total",
			Help: "Total number of transcription replies discarded for having no text",
		}),
		FragmentsMerged: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_fragments_merged_total",
			Help: "Total number of fragments merged into a live transcript",
		}),
		FragmentsLate: factory.NewCounter(prometheus.CounterOpts{
			Name: "trascrivi_fragments_late_total",
			Help: "Total number of fragments discarded because their session had ended",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trascrivi_active_sessions",
			Help: "Whether a recording session is currently active",
		}),
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trascrivi_structure_analyses_total",
			Help: "Total number of structure analyses by outcome",
		}, []string{"outcome"}),
	}
}

// NewUnregistered returns metrics bound to a private registry, for tests and
// callers that do not expose them.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
