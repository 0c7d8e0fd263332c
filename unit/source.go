package unit

import (
	"sync"

	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/param"
)

// BufferSource is a scheduled source playing decoded samples.
type BufferSource struct {
	schedule
	PlaybackRate *param.Param

	data     []float64
	loop     bool
	position float64
}

// NewBufferSource returns a source without data.
func NewBufferSource() *BufferSource {
	return &BufferSource{
		PlaybackRate: param.New(1, 0, 64),
	}
}

// Data returns function which installs samples and rewinds playback.
func (s *BufferSource) Data(samples []float64) func() {
	return func() {
		s.data = samples
		s.position = 0
	}
}

// Len returns the number of installed samples.
func (s *BufferSource) Len() int {
	return len(s.data)
}

// SetLoop toggles looping.
func (s *BufferSource) SetLoop(v bool) {
	s.loop = v
}

// Loop returns true if playback is looped.
func (s *BufferSource) Loop() bool {
	return s.loop
}

// Process plays the next block. Playback stops at the end of data
// unless it's looped.
func (s *BufferSource) Process(_, out []float64) {
	n := len(s.data)
	if !s.Playing() || n == 0 {
		silence(out)
		return
	}
	rate := s.PlaybackRate.Value()
	for i := range out {
		if s.position >= float64(n) {
			if !s.loop {
				s.Stop()
				silence(out[i:])
				return
			}
			for s.position >= float64(n) {
				s.position -= float64(n)
			}
		}
		idx := int(s.position)
		frac := s.position - float64(idx)
		next := idx + 1
		if next == n {
			if s.loop {
				next = 0
			} else {
				next = idx
			}
		}
		out[i] = s.data[idx]*(1-frac) + s.data[next]*frac
		s.position += rate
	}
}

// streamBlocks is the capacity of stream source buffer in blocks.
const streamBlocks = 8

// StreamSource renders samples captured from an input device. Device
// reads happen in a separate goroutine.
type StreamSource struct {
	stream   device.InputStream
	channels int

	m     sync.Mutex
	ring  []float64
	read  int
	count int

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewStreamSource starts reading provided stream.
func NewStreamSource(stream device.InputStream, f device.Format) *StreamSource {
	channels := f.Channels
	if channels < 1 {
		channels = 1
	}
	s := StreamSource{
		stream:   stream,
		channels: channels,
		ring:     make([]float64, f.BlockSize*streamBlocks),
		done:     make(chan struct{}),
	}
	go s.capture(make([]float32, f.BlockSize*channels))
	return &s
}

func (s *StreamSource) capture(buf []float32) {
	defer close(s.done)
	scale := 1 / float64(s.channels)
	for {
		if err := s.stream.Read(buf); err != nil {
			return
		}
		s.m.Lock()
		for i := 0; i+s.channels <= len(buf); i += s.channels {
			var v float64
			for c := 0; c < s.channels; c++ {
				v += float64(buf[i+c])
			}
			s.push(v * scale)
		}
		s.m.Unlock()
	}
}

// push overwrites the oldest sample when ring is full.
func (s *StreamSource) push(v float64) {
	write := (s.read + s.count) % len(s.ring)
	s.ring[write] = v
	if s.count < len(s.ring) {
		s.count++
		return
	}
	s.read = (s.read + 1) % len(s.ring)
}

// Process renders buffered samples, padding with silence on underrun.
func (s *StreamSource) Process(_, out []float64) {
	s.m.Lock()
	defer s.m.Unlock()
	n := min(len(out), s.count)
	for i := 0; i < n; i++ {
		out[i] = s.ring[s.read]
		s.read = (s.read + 1) % len(s.ring)
	}
	s.count -= n
	silence(out[n:])
}

// Close releases the device stream and waits for the reading goroutine.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.stream.Close()
		<-s.done
	})
	return s.closeErr
}
