package audio

import "math"

const resampleTaps = 31

// Resampler converts mono audio between two fixed rates. The anti-aliasing kernel
// is built once per rate pair so a capture device can reuse it for every block.
type Resampler struct {
	src, dst int
	kernel   []float32
}

// NewResampler prepares a converter from src to dst Hz.
func NewResampler(src, dst int) *Resampler {
	r := &Resampler{src: src, dst: dst}
	if src != dst {
		// The filter runs at the higher of the two rates, cut at the lower Nyquist.
		r.kernel = blackmanSinc(float64(min(src, dst))/2, float64(max(src, dst)), resampleTaps)
	}
	return r
}

// Resample is a one-shot convenience around NewResampler.
func Resample(samples []float32, src, dst int) []float32 {
	return NewResampler(src, dst).Process(samples)
}

// Process returns samples at the destination rate. Input is returned unchanged
// when rates match.
func (r *Resampler) Process(samples []float32) []float32 {
	if r.src == r.dst || len(samples) == 0 {
		return samples
	}
	if r.src > r.dst {
		return r.interpolate(convolve(samples, r.kernel))
	}
	return convolve(r.interpolate(samples), r.kernel)
}

func (r *Resampler) interpolate(samples []float32) []float32 {
	step := float64(r.src) / float64(r.dst)
	out := make([]float32, int(float64(len(samples))/step))
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx] + (samples[idx+1]-samples[idx])*frac
	}
	return out
}

func convolve(samples, kernel []float32) []float32 {
	half := len(kernel) / 2
	out := make([]float32, len(samples))
	for i := range samples {
		var acc float32
		for j, k := range kernel {
			src := i + j - half
			if src < 0 || src >= len(samples) {
				continue
			}
			acc += samples[src] * k
		}
		out[i] = acc
	}
	return out
}

// blackmanSinc builds a unity-gain windowed-sinc low-pass kernel.
func blackmanSinc(cutoff, rate float64, taps int) []float32 {
	fc := cutoff / rate
	half := taps / 2
	span := float64(taps - 1)
	raw := make([]float64, taps)

	var sum float64
	for i := range taps {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		window := 0.42 - 0.5*math.Cos(2*math.Pi*float64(i)/span) + 0.08*math.Cos(4*math.Pi*float64(i)/span)
		raw[i] = sinc * window
		sum += raw[i]
	}

	kernel := make([]float32, taps)
	for i, v := range raw {
		kernel[i] = float32(v / sum)
	}
	return kernel
}
