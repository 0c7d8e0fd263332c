// Package device defines the boundary between the engine and audio
// hardware: asynchronous input acquisition and paced output.
package device

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoInput is returned by Unavailable capturer.
var ErrNoInput = errors.New("no input device available")

type (
	// Format of a device stream.
	Format struct {
		SampleRate int
		Channels   int
		BlockSize  int
	}

	// InputStream delivers blocks of interleaved samples.
	InputStream interface {
		// Read fills buf with the next block. It blocks until the block
		// is available.
		Read(buf []float32) error
		Close() error
	}

	// Capturer acquires input streams. Acquisition may take arbitrarily
	// long, for example while the user answers a permission prompt.
	Capturer interface {
		Capture(ctx context.Context, f Format) (InputStream, error)
	}

	// Player consumes rendered blocks of interleaved samples. Write is
	// expected to block for the duration of a block.
	Player interface {
		Open(f Format) error
		Start() error
		Write(buf []float32) error
		Stop() error
		Close() error
	}
)

// Duration returns the time span of a single block.
func (f Format) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.BlockSize) * time.Second / time.Duration(f.SampleRate)
}

// Samples returns the number of interleaved samples in a single block.
func (f Format) Samples() int {
	return f.BlockSize * f.Channels
}

// Unavailable is a capturer without devices.
type Unavailable struct{}

// Capture always fails with ErrNoInput.
func (Unavailable) Capture(context.Context, Format) (InputStream, error) {
	return nil, ErrNoInput
}

// Null is a player that discards rendered blocks at real-time pace.
type Null struct {
	m      sync.Mutex
	format Format
	ticker *time.Ticker
}

// Open stores the format.
func (n *Null) Open(f Format) error {
	n.m.Lock()
	defer n.m.Unlock()
	n.format = f
	return nil
}

// Start the pacing clock.
func (n *Null) Start() error {
	n.m.Lock()
	defer n.m.Unlock()
	d := n.format.Duration()
	if d <= 0 {
		d = time.Millisecond
	}
	if n.ticker == nil {
		n.ticker = time.NewTicker(d)
	} else {
		n.ticker.Reset(d)
	}
	return nil
}

// Write waits for the next tick.
func (n *Null) Write([]float32) error {
	n.m.Lock()
	t := n.ticker
	n.m.Unlock()
	if t != nil {
		<-t.C
	}
	return nil
}

// Stop the pacing clock.
func (n *Null) Stop() error {
	n.m.Lock()
	defer n.m.Unlock()
	if n.ticker != nil {
		n.ticker.Stop()
	}
	return nil
}

// Close the player.
func (n *Null) Close() error {
	return n.Stop()
}
