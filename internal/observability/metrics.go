package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhotosIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "photos_ingested_total",
		Help:      "Uploaded photos seen by the ingestion trigger",
	}, []string{"outcome"}) // ok, too_large, error

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "faces_detected_total",
		Help:      "Total number of faces returned by the detection service",
	})

	TasksPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "tasks_published_total",
		Help:      "Face-cut tasks published to the queue",
	})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "tasks_processed_total",
		Help:      "Face-cut tasks handled by the worker",
	}, []string{"status"}) // ok, error

	BotCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facebot",
		Name:      "bot_commands_total",
		Help:      "Inbound chat messages by kind",
	}, []string{"kind"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facebot",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facebot",
		Name:      "queue_depth",
		Help:      "Number of pending face-cut tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facebot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facebot",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
