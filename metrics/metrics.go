package metrics

import (
	"github.com/catalystforge/subtitle-worker/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ClientMetrics is the instrumentation shape shared by every outbound
// client (object store, transcription provider) that can retry and fail.
type ClientMetrics struct {
	RetryCount      *prometheus.GaugeVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type PipelineMetrics struct {
	JobsStarted   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    *prometheus.CounterVec // labeled by retry controller outcome: retry, dlq
	StageDuration *prometheus.HistogramVec
	RetryCount    *prometheus.HistogramVec
}

type WorkerMetrics struct {
	JobsInFlight         prometheus.Gauge
	GlobalSlotsInUse     prometheus.Gauge
	AISlotsInUse         prometheus.Gauge
	QueueDepth           *prometheus.GaugeVec
	HTTPRequestsInFlight prometheus.Gauge
}

type SubtitleWorkerMetrics struct {
	Version             *prometheus.CounterVec
	Worker              WorkerMetrics
	Pipeline            PipelineMetrics
	ObjectStoreClient   ClientMetrics
	TranscriptionClient ClientMetrics
}

func NewMetrics() *SubtitleWorkerMetrics {
	m := &SubtitleWorkerMetrics{
		Version: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "version",
			Help: "Current Git SHA / Tag that's running. Incremented once on app startup.",
		}, []string{"app", "version"}),

		Worker: WorkerMetrics{
			JobsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "jobs_in_flight",
				Help: "Number of jobs currently owned by a worker (mirrors jobs:processing)",
			}),
			GlobalSlotsInUse: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "global_semaphore_slots_in_use",
				Help: "Number of acquired tokens from semaphore:global across the fleet",
			}),
			AISlotsInUse: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ai_semaphore_slots_in_use",
				Help: "Number of acquired tokens from semaphore:ai across the fleet",
			}),
			QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "queue_depth",
				Help: "Length of a job queue",
			}, []string{"queue"}),
			HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of in-flight HTTP requests against the submission/dashboard API",
			}),
		},

		Pipeline: PipelineMetrics{
			JobsStarted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pipeline_jobs_started_total",
				Help: "Total number of pipeline executions started, including retried attempts",
			}),
			JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pipeline_jobs_completed_total",
				Help: "Total number of jobs that reached status completed",
			}),
			JobsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pipeline_jobs_failed_total",
				Help: "Total number of failed pipeline attempts, labeled by the retry controller's outcome",
			}, []string{"outcome"}),
			StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300, 900},
			}, []string{"stage"}),
			RetryCount: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pipeline_retry_count",
				Help:    "Distribution of retryCount at terminal state",
				Buckets: []float64{0, 1, 2, 3, 4},
			}, []string{"outcome"}),
		},

		ObjectStoreClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "object_store_retry_count",
				Help: "The number of retried object store requests",
			}, []string{"operation", "bucket"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "object_store_failure_count",
				Help: "The total number of failed object store requests",
			}, []string{"operation", "bucket"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "object_store_request_duration_seconds",
				Help:    "Time taken to send object store requests",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"operation", "bucket"}),
		},

		TranscriptionClient: ClientMetrics{
			RetryCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "transcription_client_retry_count",
				Help: "The number of retried transcription provider requests",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "transcription_client_failure_count",
				Help: "The total number of failed transcription provider requests",
			}, []string{"host", "status_code"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "transcription_client_request_duration_seconds",
				Help:    "Time taken to send transcription provider requests",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}, []string{"host"}),
		},
	}

	m.Version.WithLabelValues("subtitle-worker", config.Version).Inc()

	return m
}

var Metrics = NewMetrics()
