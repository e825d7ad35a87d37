package main

import (
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/env"
)

type config struct {
	serverURL          string
	liveURL            string
	questionsFile      string
	audioSegment       time.Duration
	frameInterval      time.Duration
	uploadTimeout      time.Duration
	uploadPoolSize     int
	feedbackTimeout    time.Duration
	feedbackRetries    int
	feedbackRetryDelay time.Duration
	feedbackEngine     string
	openaiAPIKey       string
	openaiBaseURL      string
	openaiModel        string
	reconnectAttempts  int
	reconnectDelay     time.Duration
	mediaSource        string
	mediaAudioFile     string
	mediaFramesDir     string
	mediaSpeed         float64
	reportFile         string
	metricsAddr        string
	logLevel           string
	logFile            string
	headless           bool
}

func loadConfig() config {
	return config{
		serverURL:          env.Str("ANALYSIS_SERVER_URL", "http://localhost:8000"),
		liveURL:            env.Str("LIVE_URL", "ws://localhost:8000/ws/live"),
		questionsFile:      env.Str("QUESTIONS_FILE", "questions.yaml"),
		audioSegment:       env.Duration("AUDIO_SEGMENT", 4*time.Second),
		frameInterval:      env.Duration("FRAME_INTERVAL", 3*time.Second),
		uploadTimeout:      env.Duration("UPLOAD_TIMEOUT", 10*time.Second),
		uploadPoolSize:     env.Int("UPLOAD_POOL_SIZE", 8),
		feedbackTimeout:    env.Duration("FEEDBACK_TIMEOUT", 20*time.Second),
		feedbackRetries:    env.Int("FEEDBACK_RETRIES", 2),
		feedbackRetryDelay: env.Duration("FEEDBACK_RETRY_DELAY", 1500*time.Millisecond),
		feedbackEngine:     env.Str("FEEDBACK_ENGINE", engineServer),
		openaiAPIKey:       env.Str("OPENAI_API_KEY", ""),
		openaiBaseURL:      env.Str("OPENAI_BASE_URL", ""),
		openaiModel:        env.Str("OPENAI_MODEL", ""),
		reconnectAttempts:  env.Int("RECONNECT_ATTEMPTS", 3),
		reconnectDelay:     env.Duration("RECONNECT_DELAY", 2*time.Second),
		mediaSource:        env.Str("MEDIA_SOURCE", mediaSynthetic),
		mediaAudioFile:     env.Str("MEDIA_AUDIO_FILE", ""),
		mediaFramesDir:     env.Str("MEDIA_FRAMES_DIR", ""),
		mediaSpeed:         env.Float("MEDIA_SPEED", 1),
		reportFile:         env.Str("REPORT_FILE", ""),
		metricsAddr:        env.Str("METRICS_ADDR", ""),
		logLevel:           env.Str("LOG_LEVEL", "info"),
		logFile:            env.Str("LOG_FILE", ""),
		headless:           env.Bool("HEADLESS", false),
	}
}
