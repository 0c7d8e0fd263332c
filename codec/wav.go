package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

// DecodeWAV reads the whole wav stream.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, errors.New("wav is not valid")
	}
	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	ib, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	numChannels := int(decoder.NumChans)
	if numChannels == 0 || len(ib.Data) == 0 {
		return nil, ErrEmptyPayload
	}

	frames := len(ib.Data) / numChannels
	b := Buffer{
		SampleRate: int(decoder.SampleRate),
		Data:       make([][]float64, numChannels),
	}
	for c := range b.Data {
		b.Data[c] = make([]float64, frames)
	}
	// 8 bit wav samples are unsigned
	var offset int
	if bitDepth == 8 {
		offset = 128
	}
	scale := 1 / float64(int(1)<<(bitDepth-1))
	for i := 0; i < frames; i++ {
		for c := 0; c < numChannels; c++ {
			b.Data[c][i] = float64(ib.Data[i*numChannels+c]-offset) * scale
		}
	}
	return &b, nil
}

// EncodeWAV writes mono samples as 16 bit PCM wav.
func EncodeWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	const bitDepth = 16
	encoder := wav.NewEncoder(w, sampleRate, bitDepth, 1, pcmFormat)
	ib := audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	const max = 1<<(bitDepth-1) - 1
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		ib.Data[i] = int(s * max)
	}
	if err := encoder.Write(&ib); err != nil {
		return fmt.Errorf("wav encode: %w", err)
	}
	return encoder.Close()
}

// WAV encodes mono samples into an in-memory wav payload.
func WAV(samples []float64, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyPayload
	}
	var ws writeSeeker
	if err := EncodeWAV(&ws, samples, sampleRate); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker required by wav encoder.
type writeSeeker struct {
	buf []byte
	pos int
}

func (ws *writeSeeker) Write(p []byte) (int, error) {
	end := ws.pos + len(p)
	if end > len(ws.buf) {
		if end > cap(ws.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, ws.buf)
			ws.buf = grown
		} else {
			ws.buf = ws.buf[:end]
		}
	}
	copy(ws.buf[ws.pos:], p)
	ws.pos = end
	return len(p), nil
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(ws.pos) + offset
	case io.SeekEnd:
		abs = int64(len(ws.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	ws.pos = int(abs)
	return abs, nil
}
