// Package portaudio implements device boundary with the PortAudio
// default input and output devices.
package portaudio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/audiograph/device"
)

type (
	// Player plays rendered blocks with default output device.
	Player struct {
		buf    []float32
		stream *portaudio.Stream
	}

	// Capturer opens default input device.
	Capturer struct{}

	inputStream struct {
		buf    []float32
		stream *portaudio.Stream
	}
)

// Open initializes portaudio and opens the default output stream.
func (p *Player) Open(f device.Format) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio initialize: %w", err)
	}
	p.buf = make([]float32, f.Samples())
	stream, err := portaudio.OpenDefaultStream(0, f.Channels, float64(f.SampleRate), f.BlockSize, &p.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("portaudio open output: %w", err)
	}
	p.stream = stream
	return nil
}

// Start the output stream.
func (p *Player) Start() error {
	return p.stream.Start()
}

// Write copies the block into the stream buffer and writes it.
func (p *Player) Write(buf []float32) error {
	copy(p.buf, buf)
	return p.stream.Write()
}

// Stop the output stream.
func (p *Player) Stop() error {
	return p.stream.Stop()
}

// Close the stream and terminate portaudio.
func (p *Player) Close() error {
	if p.stream == nil {
		return nil
	}
	if err := p.stream.Close(); err != nil {
		return err
	}
	p.stream = nil
	return portaudio.Terminate()
}

// Capture opens and starts the default input stream.
func (Capturer) Capture(ctx context.Context, f device.Format) (device.InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio initialize: %w", err)
	}
	s := inputStream{buf: make([]float32, f.Samples())}
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), f.BlockSize, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio open input: %w", err)
	}
	if err = stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("portaudio start input: %w", err)
	}
	s.stream = stream
	return &s, nil
}

func (s *inputStream) Read(buf []float32) error {
	if err := s.stream.Read(); err != nil {
		return err
	}
	copy(buf, s.buf)
	return nil
}

func (s *inputStream) Close() error {
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}
