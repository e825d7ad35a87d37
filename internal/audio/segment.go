package audio

// Segmenter slices a live sample stream into fixed-length segments. It never
// holds more than one partial segment.
type Segmenter struct {
	size int
	buf  []float32
}

// NewSegmenter cuts segments of exactly size samples.
func NewSegmenter(size int) *Segmenter {
	if size <= 0 {
		size = 1
	}
	return &Segmenter{size: size, buf: make([]float32, 0, size)}
}

// Push appends samples and returns every segment completed by them, in order.
func (s *Segmenter) Push(samples []float32) [][]float32 {
	var done [][]float32
	for len(samples) > 0 {
		take := min(s.size-len(s.buf), len(samples))
		s.buf = append(s.buf, samples[:take]...)
		samples = samples[take:]
		if len(s.buf) == s.size {
			done = append(done, s.buf)
			s.buf = make([]float32, 0, s.size)
		}
	}
	return done
}

// Flush returns the partial segment if it holds at least minSamples, and resets.
func (s *Segmenter) Flush(minSamples int) []float32 {
	partial := s.buf
	s.buf = make([]float32, 0, s.size)
	if len(partial) == 0 || len(partial) < minSamples {
		return nil
	}
	return partial
}

// Buffered reports how many samples are waiting in the partial segment.
func (s *Segmenter) Buffered() int {
	return len(s.buf)
}
