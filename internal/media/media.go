// Package media models camera and microphone acquisition. A Device hands out one
// Capture at a time; the capture yields live mono audio blocks and JPEG stills
// until it is released.
package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
	"github.com/hubenschmidt/mock-interview/client/internal/metrics"
)

// ErrReleased is returned by Frame once the capture has been released.
var ErrReleased = errors.New("capture released")

// Constraints fix the shape of the captured media.
type Constraints struct {
	SampleRate    int
	Channels      int
	BlockDuration time.Duration
	FrameWidth    int
	FrameHeight   int
}

// DefaultConstraints asks for mono 16 kHz audio in 100 ms blocks and VGA stills.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:    16000,
		Channels:      1,
		BlockDuration: 100 * time.Millisecond,
		FrameWidth:    640,
		FrameHeight:   480,
	}
}

// WithDefaults fills each unset or non-positive field from DefaultConstraints.
func (c Constraints) WithDefaults() Constraints {
	d := DefaultConstraints()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.BlockDuration <= 0 {
		c.BlockDuration = d.BlockDuration
	}
	if c.FrameWidth <= 0 {
		c.FrameWidth = d.FrameWidth
	}
	if c.FrameHeight <= 0 {
		c.FrameHeight = d.FrameHeight
	}
	return c
}

// check applies defaults and rejects shapes no device produces. Audio is
// always mono.
func (c Constraints) check() (Constraints, error) {
	c = c.WithDefaults()
	if c.Channels != 1 {
		return c, errs.Errorf(errs.KindDevice, "acquire", "%d audio channels requested, capture is mono", c.Channels)
	}
	return c, nil
}

func (c Constraints) blockSamples() int {
	return max(int(float64(c.SampleRate)*c.BlockDuration.Seconds()), 1)
}

// Device acquires capture handles.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Capture, error)
}

// Capture is an open media session.
//
// Audio is closed after Release or when a finite source runs dry. Release is
// idempotent and safe from any goroutine.
type Capture interface {
	Audio() <-chan []float32
	Frame(ctx context.Context) ([]byte, error)
	Release()
}

// blockFunc returns the next block of n samples, or false when the source is done.
type blockFunc func(n int) ([]float32, bool)

type frameFunc func() ([]byte, error)

// stream is the pump shared by every device. It emits one audio block per tick
// until released.
type stream struct {
	audio   chan []float32
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu    sync.Mutex
	frame frameFunc
}

func startStream(c Constraints, speed float64, next blockFunc, frame frameFunc) *stream {
	s := &stream{
		audio:   make(chan []float32, 8),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		frame:   frame,
	}

	interval := c.BlockDuration
	if speed > 1 {
		interval = time.Duration(float64(interval) / speed)
	}
	go s.pump(interval, c.blockSamples(), next)
	return s
}

func (s *stream) pump(interval time.Duration, n int, next blockFunc) {
	defer close(s.stopped)
	defer close(s.audio)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		block, ok := next(n)
		if !ok {
			slog.Debug("capture source exhausted")
			return
		}
		select {
		case s.audio <- block:
		case <-s.done:
			return
		}
	}
}

func (s *stream) Audio() <-chan []float32 {
	return s.audio
}

func (s *stream) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, errs.New(errs.KindDevice, "frame", ErrReleased)
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.frame()
	if err != nil {
		return nil, errs.New(errs.KindDevice, "frame", err)
	}
	return data, nil
}

func (s *stream) Release() {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		metrics.CaptureReleases.Inc()
		slog.Info("capture released")
	})
}
