package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcpmark_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gcpmark_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	catalogImages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gcpmark_catalog_images",
			Help: "Images in the session catalog after the last scan",
		},
	)

	sidecarSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcpmark_sidecar_saves_total",
			Help: "Total number of sidecar saves from the editor",
		},
		[]string{"status"}, // status: success, error
	)

	imagesLabeledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcpmark_images_labeled_total",
			Help: "Images processed by batch labeling runs",
		},
		[]string{"outcome"}, // outcome: labeled, skipped, failed
	)

	labelRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gcpmark_label_run_duration_seconds",
			Help:    "Duration of batch labeling runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gcpmark_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gcpmark_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
