package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const wavHeaderLen = 44

// Format describes a PCM WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// SamplesToWAV encodes mono float32 samples as a 16-bit PCM WAV byte slice.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := make([]byte, wavHeaderLen+dataLen)
	putHeader(buf, sampleRate, dataLen)

	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[wavHeaderLen+i*2:], uint16(val))
	}
	return buf
}

func putHeader(buf []byte, sampleRate, dataLen int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(wavHeaderLen-8+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
}

var ErrNotWAV = errors.New("not a RIFF/WAVE stream")

// ParseWAV walks the RIFF chunks of a 16-bit PCM WAV file and returns its format
// and interleaved samples normalized to [-1, 1].
func ParseWAV(data []byte) (Format, []float32, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}

	var format Format
	var pcm []byte
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := min(body+size, len(data))

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Format{}, nil, fmt.Errorf("fmt chunk too short: %d bytes", end-body)
			}
			if tag := binary.LittleEndian.Uint16(data[body:]); tag != 1 {
				return Format{}, nil, fmt.Errorf("unsupported wav encoding %d", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
		case "data":
			pcm = data[body:end]
		}
		// chunks are word aligned
		off = body + size + size%2
	}

	if format.SampleRate == 0 {
		return Format{}, nil, errors.New("wav missing fmt chunk")
	}
	if format.BitsPerSample != 16 {
		return Format{}, nil, fmt.Errorf("unsupported bits per sample %d", format.BitsPerSample)
	}
	if format.Channels < 1 {
		return Format{}, nil, fmt.Errorf("invalid channel count %d", format.Channels)
	}
	return format, decodePCM(pcm), nil
}
