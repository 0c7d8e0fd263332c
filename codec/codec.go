// Package codec decodes opaque binary payloads into sample buffers and
// encodes recorded samples back into payloads.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

var (
	// ErrUnsupportedFormat is returned when payload format is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported payload format")
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 8, 16, 24 and 32 bit depth is supported")
	// ErrEmptyPayload is returned when payload has no samples.
	ErrEmptyPayload = errors.New("empty payload")
)

// Buffer is a decoded multi-channel signal with samples in [-1, 1].
type Buffer struct {
	SampleRate int
	// Data holds samples per channel.
	Data [][]float64
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Length returns the number of frames.
func (b *Buffer) Length() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the time span of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Length()) * time.Second / time.Duration(b.SampleRate)
}

// Mono returns the average of all channels.
func (b *Buffer) Mono() []float64 {
	n := b.Length()
	mono := make([]float64, n)
	if len(b.Data) == 0 {
		return mono
	}
	for _, ch := range b.Data {
		for i := 0; i < n; i++ {
			mono[i] += ch[i]
		}
	}
	scale := 1 / float64(len(b.Data))
	for i := range mono {
		mono[i] *= scale
	}
	return mono
}

// Resample returns the buffer converted to provided sample rate. The
// buffer itself is returned when rates already match.
func (b *Buffer) Resample(sampleRate int) (*Buffer, error) {
	if sampleRate == b.SampleRate || b.Length() == 0 {
		return b, nil
	}
	out := Buffer{
		SampleRate: sampleRate,
		Data:       make([][]float64, len(b.Data)),
	}
	for i, ch := range b.Data {
		r, err := resample.NewForRates(float64(b.SampleRate), float64(sampleRate))
		if err != nil {
			return nil, fmt.Errorf("resample %d to %d: %w", b.SampleRate, sampleRate, err)
		}
		out.Data[i] = r.Process(ch)
	}
	return &out, nil
}

// Decode sniffs the payload format and decodes it. WAV and MP3 payloads
// are supported.
func Decode(payload []byte) (*Buffer, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	switch {
	case isWAV(payload):
		return DecodeWAV(bytes.NewReader(payload))
	case isMP3(payload):
		return DecodeMP3(bytes.NewReader(payload))
	}
	return nil, ErrUnsupportedFormat
}

func isWAV(p []byte) bool {
	return len(p) >= 12 && string(p[0:4]) == "RIFF" && string(p[8:12]) == "WAVE"
}

func isMP3(p []byte) bool {
	if len(p) >= 3 && string(p[0:3]) == "ID3" {
		return true
	}
	// frame sync
	return len(p) >= 2 && p[0] == 0xff && p[1]&0xe0 == 0xe0
}
