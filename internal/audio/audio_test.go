package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAVRoundTripPreservesFormat(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1}
	data := SamplesToWAV(in, 16000)

	require.Len(t, data, wavHeaderLen+len(in)*2)
	format, out, err := ParseWAV(data)
	require.NoError(t, err)

	assert.Equal(t, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, format)
	require.Len(t, out, len(in))
	for i := range in {
		assert.InDelta(t, in[i], out[i], 1e-3)
	}
}

func TestSamplesToWAVClampsOutOfRange(t *testing.T) {
	data := SamplesToWAV([]float32{2, -3}, 8000)
	hi := int16(binary.LittleEndian.Uint16(data[wavHeaderLen:]))
	lo := int16(binary.LittleEndian.Uint16(data[wavHeaderLen+2:]))
	assert.Equal(t, int16(math.MaxInt16), hi)
	assert.Equal(t, int16(-math.MaxInt16), lo)
}

func TestParseWAVRejectsGarbage(t *testing.T) {
	_, _, err := ParseWAV([]byte("hello world, not audio"))
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestParseWAVSkipsUnknownChunks(t *testing.T) {
	base := SamplesToWAV([]float32{0.25, 0.25}, 16000)

	// splice a LIST chunk between fmt and data
	list := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0)
	spliced := append([]byte{}, base[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, base[36:]...)

	_, out, err := ParseWAV(spliced)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDownmixAveragesChannels(t *testing.T) {
	out := Downmix([]float32{1, 0, 0.5, 0.5}, 2)
	assert.Equal(t, []float32{0.5, 0.5}, out)
}

func TestLevelDB(t *testing.T) {
	assert.Equal(t, -100.0, LevelDB(nil))
	assert.Equal(t, -100.0, LevelDB(make([]float32, 100)))

	full := make([]float32, 100)
	for i := range full {
		full[i] = 1
	}
	assert.InDelta(t, 0, LevelDB(full), 1e-9)
}

func TestResamplerLengths(t *testing.T) {
	in := make([]float32, 48000)
	assert.Len(t, Resample(in, 48000, 16000), 16000)
	assert.Len(t, Resample(in[:16000], 16000, 48000), 48000)

	same := []float32{1, 2, 3}
	assert.Equal(t, same, Resample(same, 16000, 16000))
}

func TestResamplerKeepsDCLevel(t *testing.T) {
	in := make([]float32, 4800)
	for i := range in {
		in[i] = 0.5
	}
	out := NewResampler(48000, 16000).Process(in)
	// ignore filter edges
	for _, v := range out[20 : len(out)-20] {
		assert.InDelta(t, 0.5, v, 1e-3)
	}
}

func TestSegmenterEmitsFixedSegments(t *testing.T) {
	s := NewSegmenter(4)

	assert.Empty(t, s.Push([]float32{1, 2, 3}))
	got := s.Push([]float32{4, 5, 6, 7, 8, 9})
	require.Len(t, got, 2)
	assert.Equal(t, []float32{1, 2, 3, 4}, got[0])
	assert.Equal(t, []float32{5, 6, 7, 8}, got[1])
	assert.Equal(t, 1, s.Buffered())
}

func TestSegmenterFlushHonorsMinimum(t *testing.T) {
	s := NewSegmenter(10)
	s.Push([]float32{1, 2})
	assert.Nil(t, s.Flush(3))
	assert.Equal(t, 0, s.Buffered())

	s.Push([]float32{1, 2, 3})
	assert.Equal(t, []float32{1, 2, 3}, s.Flush(3))
}
