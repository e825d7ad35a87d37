package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Interview sessions started",
	})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_state_transitions_total",
		Help: "Session controller transitions by target state",
	}, []string{"state"})

	CaptureReleases = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_capture_releases_total",
		Help: "Capture sessions released",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_uploads_total",
		Help: "Chunk uploads by kind (audio, video) and result (ok, error, dropped)",
	}, []string{"kind", "result"})

	UploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_upload_duration_seconds",
		Help:    "Per-chunk upload latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
	}, []string{"kind"})

	AudioSegmentLevel = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_audio_segment_level_dbfs",
		Help:    "RMS level of uploaded audio segments",
		Buckets: []float64{-90, -70, -60, -50, -40, -30, -20, -10, 0},
	})

	ChannelConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_live_channel_connected",
		Help: "1 while the live update channel is connected",
	})

	ChannelReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_live_channel_reconnects_total",
		Help: "Live channel connect attempts by result",
	}, []string{"result"})

	LiveUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_live_updates_total",
		Help: "Inbound live updates by disposition (applied, stale, dropped, invalid)",
	}, []string{"disposition"})

	FeedbackAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_feedback_attempts_total",
		Help: "Feedback request attempts by engine and result",
	}, []string{"engine", "result"})

	FeedbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_feedback_duration_seconds",
		Help:    "Feedback acquisition latency including retries",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_errors_total",
		Help: "Error counts by stage and kind",
	}, []string{"stage", "error_type"})
)
