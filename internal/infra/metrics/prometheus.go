package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_tasks_dispatched_total",
		Help: "Total number of dispatch attempts, by task type and result",
	}, []string{"task_type", "result"})

	PipelinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamkit_pipelines_total",
		Help: "Total number of HLS streaming pipelines, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamkit_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	SegmentsStreamedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamkit_segments_streamed_total",
		Help: "Total number of HLS segments transferred to storage",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamkit_active_workers",
		Help: "Number of workers currently running a pipeline",
	})

	ThumbnailFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamkit_thumbnail_failures_total",
		Help: "Total number of non-fatal thumbnail extraction failures",
	})
)
