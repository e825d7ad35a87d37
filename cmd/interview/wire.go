package main

import (
	"fmt"
	"log/slog"

	"github.com/hubenschmidt/mock-interview/client/internal/feedback"
	"github.com/hubenschmidt/mock-interview/client/internal/live"
	"github.com/hubenschmidt/mock-interview/client/internal/media"
	"github.com/hubenschmidt/mock-interview/client/internal/upload"
)

const (
	engineServer = "server"
	engineOpenAI = "openai"

	mediaSynthetic = "synthetic"
	mediaFile      = "file"
)

func newDevice(cfg config) (media.Device, error) {
	switch cfg.mediaSource {
	case mediaSynthetic:
		return &media.SyntheticDevice{ToneHz: 220, Speed: cfg.mediaSpeed}, nil
	case mediaFile:
		if cfg.mediaAudioFile == "" {
			return nil, fmt.Errorf("media source %q needs an audio file", mediaFile)
		}
		return &media.FileDevice{
			AudioPath: cfg.mediaAudioFile,
			FramesDir: cfg.mediaFramesDir,
			Speed:     cfg.mediaSpeed,
		}, nil
	default:
		return nil, fmt.Errorf("unknown media source %q", cfg.mediaSource)
	}
}

func newFeedback(cfg config) *feedback.EngineRouter {
	policy := feedback.Policy{
		Timeout:    cfg.feedbackTimeout,
		Retries:    cfg.feedbackRetries,
		RetryDelay: cfg.feedbackRetryDelay,
	}

	backends := map[string]feedback.Requester{
		engineServer: feedback.NewServerClient(cfg.serverURL, policy),
	}
	if cfg.openaiAPIKey != "" {
		backends[engineOpenAI] = feedback.NewLLMEvaluator(feedback.LLMConfig{
			APIKey:  cfg.openaiAPIKey,
			BaseURL: cfg.openaiBaseURL,
			Model:   cfg.openaiModel,
		}, policy)
	} else if cfg.feedbackEngine == engineOpenAI {
		slog.Warn("openai feedback engine requested without api key, using server", "engine", cfg.feedbackEngine)
	}
	return feedback.NewEngineRouter(backends, cfg.feedbackEngine, engineServer)
}

func newChannel(cfg config) *live.Channel {
	lc := live.DefaultConfig(cfg.liveURL)
	lc.MaxReconnects = cfg.reconnectAttempts
	lc.ReconnectDelay = cfg.reconnectDelay
	return live.New(lc)
}

func newUploads(cfg config) (*upload.Pipeline, error) {
	uc := upload.DefaultConfig()
	uc.SegmentDuration = cfg.audioSegment
	uc.FrameInterval = cfg.frameInterval
	uc.UploadTimeout = cfg.uploadTimeout
	uc.MaxInFlight = cfg.uploadPoolSize
	if err := uc.Validate(); err != nil {
		return nil, fmt.Errorf("upload config: %w", err)
	}
	client := upload.NewClient(cfg.serverURL, cfg.uploadPoolSize, cfg.uploadTimeout)
	return upload.NewPipeline(uc, client), nil
}
