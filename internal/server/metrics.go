package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yolodet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yolodet_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Detection metrics
	predictRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yolodet_predict_requests_total",
			Help: "Total number of detection requests",
		},
		[]string{"source", "status"}, // source: image, pdf, websocket
	)

	inferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yolodet_inference_duration_seconds",
			Help:    "Model inference duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)

	detectionsPerRequest = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yolodet_detections_per_request",
			Help:    "Number of objects detected per image",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 300},
		},
		[]string{"source"},
	)

	skippedBoxesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "yolodet_skipped_boxes_total",
			Help: "Total number of malformed boxes dropped by the assembler",
		},
	)

	// Rate limiting metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yolodet_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"type"}, // type: minute, hour, requests, data
	)

	// File upload metrics
	uploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yolodet_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024, 50 * 1024 * 1024, 100 * 1024 * 1024},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yolodet_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yolodet_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)
