// Package upload streams a capture to the analysis server as independent chunks:
// fixed-length WAV segments on the audio path and periodic JPEG stills on the
// video path. Every upload is fire-and-forget.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/mock-interview/client/internal/audio"
	"github.com/hubenschmidt/mock-interview/client/internal/media"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

// Config controls chunking and upload concurrency. The validate tags bound
// user-supplied values; Validate reports the first violation.
type Config struct {
	SampleRate      int           `validate:"gt=0"`
	SegmentDuration time.Duration `validate:"gte=3s,lte=5s"`
	MinSegment      time.Duration `validate:"gte=0s"` // shorter trailing segments are dropped on flush
	FrameInterval   time.Duration `validate:"gte=1s,lte=3s"`
	MaxInFlight     int           `validate:"gte=1"`
	UploadTimeout   time.Duration `validate:"gt=0s"`
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		SegmentDuration: 4 * time.Second,
		MinSegment:      250 * time.Millisecond,
		FrameInterval:   3 * time.Second,
		MaxInFlight:     8,
		UploadTimeout:   10 * time.Second,
	}
}

var validate = validator.New()

// Validate checks the config against the accepted ranges: 3-5s audio
// segments and 1-3s frame intervals.
func (c Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "gte":
		return fmt.Errorf("%s must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Errorf("%s must be at most %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("%s must be greater than %s, got %v", fe.Field(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s is invalid: %w", fe.Field(), err)
}

// withDefaults replaces unusable values field by field so a running pipeline
// never sees a zero ticker interval or segment size.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = d.SegmentDuration
	}
	if c.MinSegment < 0 {
		c.MinSegment = 0
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = d.FrameInterval
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 1
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = d.UploadTimeout
	}
	if c.samples(c.SegmentDuration) < 1 {
		c.SegmentDuration = d.SegmentDuration
	}
	return c
}

func (c Config) samples(d time.Duration) int {
	return int(float64(c.SampleRate) * d.Seconds())
}

// Pipeline starts uploaders that share one Sender.
type Pipeline struct {
	cfg    Config
	sender Sender
	sem    chan struct{}
}

// NewPipeline does not enforce Validate's ranges; non-positive values fall
// back to defaults.
func NewPipeline(cfg Config, sender Sender) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{cfg: cfg, sender: sender, sem: make(chan struct{}, cfg.MaxInFlight)}
}

// Uploader is one running capture upload.
type Uploader struct {
	p       *Pipeline
	capture media.Capture
	meta    Meta
	seg     *audio.Segmenter

	stopPaths    context.CancelFunc
	uploadCtx    context.Context
	abortUploads context.CancelFunc
	group        *errgroup.Group

	flush    atomic.Bool
	once     sync.Once
	inflight sync.WaitGroup
	audioSeq atomic.Int64
	frameSeq atomic.Int64
}

// Start launches the audio and video paths for capture. Uploads are tagged with meta.
func (p *Pipeline) Start(ctx context.Context, capture media.Capture, meta Meta) *Uploader {
	pathCtx, stopPaths := context.WithCancel(ctx)
	uploadCtx, abort := context.WithCancel(context.WithoutCancel(ctx))

	u := &Uploader{
		p:            p,
		capture:      capture,
		meta:         meta,
		seg:          audio.NewSegmenter(p.cfg.samples(p.cfg.SegmentDuration)),
		stopPaths:    stopPaths,
		uploadCtx:    uploadCtx,
		abortUploads: abort,
	}
	u.flush.Store(true)

	g, gctx := errgroup.WithContext(pathCtx)
	g.Go(func() error { return u.audioPath(gctx) })
	g.Go(func() error { return u.videoPath(gctx) })
	u.group = g

	slog.Info("uploader started", "session", meta.SessionID, "question", meta.QuestionIndex)
	return u
}

// Stop ends both paths, uploads the trailing partial segment and returns once
// the paths have exited. Uploads already in flight keep running.
func (u *Uploader) Stop() {
	u.once.Do(func() {
		u.stopPaths()
		u.group.Wait()
	})
}

// Cancel ends both paths without flushing and aborts in-flight uploads. Used
// when the answer is abandoned.
func (u *Uploader) Cancel() {
	u.once.Do(func() {
		u.flush.Store(false)
		u.stopPaths()
		u.group.Wait()
		u.abortUploads()
	})
}

// Wait blocks until every launched upload has finished.
func (u *Uploader) Wait() {
	u.inflight.Wait()
}

func (u *Uploader) audioPath(ctx context.Context) error {
	blocks := u.capture.Audio()
	for {
		select {
		case <-ctx.Done():
			u.drain(blocks)
			u.flushPartial()
			return nil
		case block, ok := <-blocks:
			if !ok {
				u.flushPartial()
				return nil
			}
			u.push(block)
		}
	}
}

// drain takes whatever the device already buffered so the flushed segment
// covers audio captured up to the stop.
func (u *Uploader) drain(blocks <-chan []float32) {
	if !u.flush.Load() {
		return
	}
	for {
		select {
		case block, ok := <-blocks:
			if !ok {
				return
			}
			u.push(block)
		default:
			return
		}
	}
}

func (u *Uploader) push(block []float32) {
	for _, segment := range u.seg.Push(block) {
		u.sendSegment(segment)
	}
}

func (u *Uploader) flushPartial() {
	if !u.flush.Load() {
		u.seg.Flush(0)
		return
	}
	if segment := u.seg.Flush(u.p.cfg.samples(u.p.cfg.MinSegment)); segment != nil {
		u.sendSegment(segment)
	}
}

func (u *Uploader) sendSegment(segment []float32) {
	metrics.AudioSegmentLevel.Observe(audio.LevelDB(segment))
	wav := audio.SamplesToWAV(segment, u.p.cfg.SampleRate)
	u.dispatch(KindAudio, wav, int(u.audioSeq.Add(1)))
}

func (u *Uploader) videoPath(ctx context.Context) error {
	ticker := time.NewTicker(u.p.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := u.capture.Frame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("frame capture failed", "question", u.meta.QuestionIndex, "error", err)
			metrics.Errors.WithLabelValues("capture", "frame").Inc()
			continue
		}
		u.dispatch(KindVideo, frame, int(u.frameSeq.Add(1)))
	}
}

// dispatch launches one upload without waiting for it. When MaxInFlight uploads
// are already running the chunk is dropped.
func (u *Uploader) dispatch(kind Kind, payload []byte, seq int) {
	select {
	case u.p.sem <- struct{}{}:
	default:
		slog.Warn("upload dropped, too many in flight", "kind", kind, "seq", seq)
		metrics.Uploads.WithLabelValues(string(kind), "dropped").Inc()
		return
	}

	meta := u.meta
	meta.Seq = seq
	u.inflight.Add(1)
	go func() {
		defer u.inflight.Done()
		defer func() { <-u.p.sem }()

		ctx, cancel := context.WithTimeout(u.uploadCtx, u.p.cfg.UploadTimeout)
		defer cancel()

		start := time.Now()
		err := u.p.sender.Send(ctx, kind, payload, meta)
		metrics.UploadDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("upload failed", "kind", kind, "question", meta.QuestionIndex, "seq", seq, "error", err)
			metrics.Uploads.WithLabelValues(string(kind), "error").Inc()
			return
		}
		metrics.Uploads.WithLabelValues(string(kind), "ok").Inc()
	}()
}
