package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hubenschmidt/mock-interview/client/internal/audio"
	"github.com/hubenschmidt/mock-interview/client/internal/errs"
)

var frameExts = map[string]bool{".jpg": true, ".jpeg": true}

// FileDevice replays a WAV recording as the microphone and cycles through the
// JPEG stills in FramesDir as the camera.
type FileDevice struct {
	AudioPath string
	FramesDir string
	Speed     float64 // >1 replays faster than real time
	Loop      bool
}

func (d *FileDevice) Acquire(ctx context.Context, c Constraints) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.KindDevice, "acquire", err)
	}

	c, err := c.check()
	if err != nil {
		return nil, err
	}

	samples, err := d.loadAudio(c.SampleRate)
	if err != nil {
		return nil, err
	}
	frames, err := d.loadFrames()
	if err != nil {
		return nil, err
	}

	pos := 0
	next := func(n int) ([]float32, bool) {
		if pos >= len(samples) {
			if !d.Loop || len(samples) == 0 {
				return nil, false
			}
			pos = 0
		}
		end := min(pos+n, len(samples))
		block := append([]float32(nil), samples[pos:end]...)
		pos = end
		return block, true
	}

	cursor := 0
	frame := func() ([]byte, error) {
		f := frames[cursor%len(frames)]
		cursor++
		return f, nil
	}

	return startStream(c, d.Speed, next, frame), nil
}

func (d *FileDevice) loadAudio(rate int) ([]float32, error) {
	data, err := os.ReadFile(d.AudioPath)
	if err != nil {
		return nil, acquireError(err)
	}
	format, samples, err := audio.ParseWAV(data)
	if err != nil {
		return nil, errs.New(errs.KindDevice, "acquire", fmt.Errorf("%s: %w", d.AudioPath, err))
	}
	mono := audio.Downmix(samples, format.Channels)
	return audio.Resample(mono, format.SampleRate, rate), nil
}

func (d *FileDevice) loadFrames() ([][]byte, error) {
	entries, err := os.ReadDir(d.FramesDir)
	if err != nil {
		return nil, acquireError(err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, errs.Errorf(errs.KindDevice, "acquire", "no jpeg frames in %s", d.FramesDir)
	}
	sort.Strings(names)

	frames := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(d.FramesDir, name))
		if err != nil {
			return nil, acquireError(err)
		}
		frames = append(frames, data)
	}
	return frames, nil
}

func acquireError(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return errs.New(errs.KindPermission, "acquire", err)
	}
	return errs.New(errs.KindDevice, "acquire", err)
}
