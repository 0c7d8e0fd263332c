// Package mock provides device test doubles.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"pipelined.dev/audiograph/device"
)

// ErrClosed is returned when reading from closed stream.
var ErrClosed = errors.New("stream is closed")

type (
	// Capturer is a controllable device.Capturer. In manual mode every
	// Capture call waits until Resolve or Fail is called.
	Capturer struct {
		// Manual makes captures wait for Resolve or Fail.
		Manual bool
		// Err is returned by captures in automatic mode.
		Err error
		// Value is the sample produced by opened streams.
		Value float32

		once     sync.Once
		requests chan chan error

		m        sync.Mutex
		opened   int
		released int
	}

	// Player is a device.Player that keeps the first channel of written
	// blocks without pacing.
	Player struct {
		// StartErr is returned by Start.
		StartErr error
		// Limit is the number of samples to keep. Defaults to 1<<16.
		Limit int

		m       sync.Mutex
		format  device.Format
		started bool
		closed  bool
		starts  int
		stops   int
		writes  int
		samples []float32
	}

	stream struct {
		capturer *Capturer
		value    float32
		interval time.Duration
		once     sync.Once
		closed   chan struct{}
	}
)

func (c *Capturer) reqs() chan chan error {
	c.once.Do(func() {
		c.requests = make(chan chan error)
	})
	return c.requests
}

// Capture opens new stream.
func (c *Capturer) Capture(ctx context.Context, f device.Format) (device.InputStream, error) {
	if !c.Manual {
		if c.Err != nil {
			return nil, c.Err
		}
		return c.open(f), nil
	}
	result := make(chan error, 1)
	select {
	case c.reqs() <- result:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
		return c.open(f), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve waits for the next manual capture and lets it succeed.
func (c *Capturer) Resolve() {
	(<-c.reqs()) <- nil
}

// Fail waits for the next manual capture and fails it with err.
func (c *Capturer) Fail(err error) {
	(<-c.reqs()) <- err
}

// Opened returns the number of opened streams.
func (c *Capturer) Opened() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.opened
}

// Released returns the number of closed streams.
func (c *Capturer) Released() int {
	c.m.Lock()
	defer c.m.Unlock()
	return c.released
}

func (c *Capturer) open(f device.Format) *stream {
	c.m.Lock()
	c.opened++
	c.m.Unlock()
	return &stream{
		capturer: c,
		value:    c.Value,
		interval: f.Duration(),
		closed:   make(chan struct{}),
	}
}

// Read fills buf with value once per block duration.
func (s *stream) Read(buf []float32) error {
	select {
	case <-s.closed:
		return ErrClosed
	case <-time.After(s.interval):
	}
	for i := range buf {
		buf[i] = s.value
	}
	return nil
}

func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.capturer.m.Lock()
		s.capturer.released++
		s.capturer.m.Unlock()
	})
	return nil
}

// Open stores the format.
func (p *Player) Open(f device.Format) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.format = f
	return nil
}

// Start the player.
func (p *Player) Start() error {
	p.m.Lock()
	defer p.m.Unlock()
	if p.StartErr != nil {
		return p.StartErr
	}
	p.started = true
	p.starts++
	return nil
}

// Write keeps the first channel of the block.
func (p *Player) Write(buf []float32) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.writes++
	limit := p.Limit
	if limit == 0 {
		limit = 1 << 16
	}
	channels := p.format.Channels
	if channels < 1 {
		channels = 1
	}
	for i := 0; i < len(buf) && len(p.samples) < limit; i += channels {
		p.samples = append(p.samples, buf[i])
	}
	return nil
}

// Stop the player.
func (p *Player) Stop() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.started = false
	p.stops++
	return nil
}

// Close the player.
func (p *Player) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.closed = true
	return nil
}

// Format returns opened format.
func (p *Player) Format() device.Format {
	p.m.Lock()
	defer p.m.Unlock()
	return p.format
}

// Started returns true between Start and Stop.
func (p *Player) Started() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.started
}

// Closed returns true after Close.
func (p *Player) Closed() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.closed
}

// Writes returns the number of written blocks.
func (p *Player) Writes() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.writes
}

// Samples returns a copy of kept samples.
func (p *Player) Samples() []float32 {
	p.m.Lock()
	defer p.m.Unlock()
	s := make([]float32, len(p.samples))
	copy(s, p.samples)
	return s
}

// Reset discards kept samples.
func (p *Player) Reset() {
	p.m.Lock()
	defer p.m.Unlock()
	p.samples = p.samples[:0]
}
