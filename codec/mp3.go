package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always produces 16 bit little endian stereo.
const (
	mp3Channels  = 2
	mp3FrameSize = 2 * mp3Channels
)

// DecodeMP3 reads the whole mp3 stream.
func DecodeMP3(r io.Reader) (*Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	b := Buffer{
		SampleRate: decoder.SampleRate(),
		Data:       make([][]float64, mp3Channels),
	}
	if l := decoder.Length(); l > 0 {
		frames := int(l / mp3FrameSize)
		for c := range b.Data {
			b.Data[c] = make([]float64, 0, frames)
		}
	}

	const scale = 1.0 / 32768
	chunk := make([]byte, 1024*mp3FrameSize)
	var rest int
	for {
		n, err := decoder.Read(chunk[rest:])
		n += rest
		frames := n / mp3FrameSize
		for i := 0; i < frames; i++ {
			for c := 0; c < mp3Channels; c++ {
				s := int16(binary.LittleEndian.Uint16(chunk[i*mp3FrameSize+c*2:]))
				b.Data[c] = append(b.Data[c], float64(s)*scale)
			}
		}
		rest = copy(chunk, chunk[frames*mp3FrameSize:n])
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("mp3 decode: %w", err)
		}
	}
	if b.Length() == 0 {
		return nil, ErrEmptyPayload
	}
	return &b, nil
}
