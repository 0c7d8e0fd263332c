package codec_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/audiograph/codec"
)

func sine(n, sampleRate int, freq float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return s
}

func TestWAVRoundTrip(t *testing.T) {
	samples := sine(4410, 44100, 441)
	payload, err := codec.WAV(samples, 44100)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(payload[:4]))

	b, err := codec.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 44100, b.SampleRate)
	assert.Equal(t, 1, b.Channels())
	assert.Equal(t, len(samples), b.Length())
	assert.Equal(t, 100*time.Millisecond, b.Duration())
	for i := range samples {
		assert.InDelta(t, samples[i], b.Data[0][i], 1e-4)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := codec.Decode(nil)
	assert.ErrorIs(t, err, codec.ErrEmptyPayload)

	_, err = codec.Decode([]byte("not audio at all"))
	assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)

	_, err = codec.WAV(nil, 44100)
	assert.ErrorIs(t, err, codec.ErrEmptyPayload)
}

func TestBufferResample(t *testing.T) {
	b := &codec.Buffer{
		SampleRate: 24000,
		Data:       [][]float64{sine(2400, 24000, 100), sine(2400, 24000, 200)},
	}
	same, err := b.Resample(24000)
	require.NoError(t, err)
	assert.Same(t, b, same)

	up, err := b.Resample(48000)
	require.NoError(t, err)
	assert.Equal(t, 48000, up.SampleRate)
	assert.Equal(t, 2, up.Channels())
	assert.InDelta(t, 4800, up.Length(), 8)

	mono := b.Mono()
	assert.Len(t, mono, 2400)
	assert.InDelta(t, (b.Data[0][100]+b.Data[1][100])/2, mono[100], 1e-12)
}
