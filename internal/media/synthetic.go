package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"

	"github.com/hubenschmidt/mock-interview/client/internal/errs"
)

// ErrDenied simulates the user refusing camera and microphone access.
var ErrDenied = errors.New("camera and microphone access denied")

// SyntheticDevice produces a tone with light noise and a drifting gradient image.
// It needs no hardware, which makes it the default for demos and tests.
type SyntheticDevice struct {
	ToneHz float64
	Speed  float64
	Deny   bool
}

func (d *SyntheticDevice) Acquire(ctx context.Context, c Constraints) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindDevice, "acquire", err)
	}
	if d.Deny {
		return nil, errs.New(errs.KindPermission, "acquire", ErrDenied)
	}
	c, err := c.check()
	if err != nil {
		return nil, err
	}

	tone := d.ToneHz
	if tone <= 0 {
		tone = 440
	}

	var sampleIdx int
	next := func(n int) ([]float32, bool) {
		block := make([]float32, n)
		for i := range block {
			t := float64(sampleIdx) / float64(c.SampleRate)
			block[i] = float32(math.Sin(2*math.Pi*tone*t)*0.3 + (rand.Float64()-0.5)*0.05)
			sampleIdx++
		}
		return block, true
	}

	var tick int
	frame := func() ([]byte, error) {
		tick++
		return gradientJPEG(c.FrameWidth, c.FrameHeight, tick)
	}

	return startStream(c, d.Speed, next, frame), nil
}

func gradientJPEG(w, h, shift int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		w, h = 64, 48
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{
				R: uint8((x + shift*8) % 256),
				G: uint8(y * 255 / h),
				B: 128,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
