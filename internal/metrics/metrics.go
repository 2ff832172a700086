package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All metrics are low-cardinality (no object_id/session-id labels).

var (
	// FramesReceivedTotal counts UDP frames accepted by the Frame Bus.
	FramesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afg_frames_received_total",
			Help: "Total UDP camera frames accepted, by camera",
		},
		[]string{"camera_id"},
	)

	// FramesMalformedTotal counts dropped frames with a bad header.
	FramesMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "afg_frames_malformed_total",
			Help: "Total UDP datagrams dropped for a malformed header",
		},
	)

	// DetectionsProcessedTotal counts detections entering the pipeline.
	DetectionsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afg_detections_processed_total",
			Help: "Total detections processed, by class and event type",
		},
		[]string{"class", "event_type"},
	)

	// FirstDetectionsTotal counts ME_FD emissions.
	FirstDetectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "afg_first_detections_total",
			Help: "Total first-detection (ME_FD) events emitted",
		},
	)

	// ZoneTransitionsTotal counts NORMAL<->HAZARD transitions.
	ZoneTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afg_zone_transitions_total",
			Help: "Total zone status transitions, by area and new status",
		},
		[]string{"area", "status"},
	)

	// PipelineLatency tracks end-to-end pipeline stage duration.
	PipelineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afg_pipeline_latency_ms",
			Help:    "Pipeline stage latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"stage"},
	)

	// FanoutSessionsGauge tracks currently connected sessions per role.
	FanoutSessionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "afg_fanout_sessions",
			Help: "Currently connected client sessions, by role",
		},
		[]string{"role"},
	)

	// FanoutDroppedTotal counts messages dropped from a session's outbound queue.
	FanoutDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afg_fanout_dropped_total",
			Help: "Total outbound messages dropped due to backpressure, by role",
		},
		[]string{"role"},
	)

	// RepoOpLatency tracks repository call duration.
	RepoOpLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "afg_repo_op_latency_ms",
			Help:    "Repository Façade operation latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000},
		},
		[]string{"op"},
	)

	// RepoErrorsTotal counts repository failures, after retry.
	RepoErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "afg_repo_errors_total",
			Help: "Total repository operation failures after retry, by op",
		},
		[]string{"op"},
	)

	// InferenceStateGauge reflects the current InferenceState as an int.
	InferenceStateGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "afg_inference_state",
			Help: "Current inference-channel lifecycle state (0=disconnected..4=operating)",
		},
	)
)

func RecordFrameReceived(cameraID string) {
	FramesReceivedTotal.WithLabelValues(cameraID).Inc()
}

func RecordFrameMalformed() {
	FramesMalformedTotal.Inc()
}

func RecordDetection(class, eventType string) {
	DetectionsProcessedTotal.WithLabelValues(class, eventType).Inc()
}

func RecordFirstDetection() {
	FirstDetectionsTotal.Inc()
}

func RecordZoneTransition(area, status string) {
	ZoneTransitionsTotal.WithLabelValues(area, status).Inc()
}

func ObservePipelineLatency(stage string, ms float64) {
	PipelineLatency.WithLabelValues(stage).Observe(ms)
}

func SetFanoutSessions(role string, n int) {
	FanoutSessionsGauge.WithLabelValues(role).Set(float64(n))
}

func RecordFanoutDropped(role string) {
	FanoutDroppedTotal.WithLabelValues(role).Inc()
}

func ObserveRepoLatency(op string, ms float64) {
	RepoOpLatency.WithLabelValues(op).Observe(ms)
}

func RecordRepoError(op string) {
	RepoErrorsTotal.WithLabelValues(op).Inc()
}

func SetInferenceState(state int) {
	InferenceStateGauge.Set(float64(state))
}
