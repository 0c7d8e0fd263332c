// Package unit contains live signal processing units. Units are mono:
// Process receives the summed input block and fills the output block of
// the same length. Process is only called from the render goroutine.
package unit

import "sync/atomic"

// Unit renders one block.
type Unit interface {
	Process(in, out []float64)
}

// schedule states
const (
	idle int32 = iota
	started
	stopped
)

// schedule implements one-shot start/stop of scheduled sources. Start
// and Stop are safe to call from any goroutine and repeated calls are
// ignored.
type schedule struct {
	state atomic.Int32
}

// Start the source. Returns false if it was already started or stopped.
func (s *schedule) Start() bool {
	return s.state.CompareAndSwap(idle, started)
}

// Stop the source. Returns false if it was already stopped.
func (s *schedule) Stop() bool {
	return s.state.Swap(stopped) != stopped
}

// Playing returns true between Start and Stop.
func (s *schedule) Playing() bool {
	return s.state.Load() == started
}

func silence(out []float64) {
	for i := range out {
		out[i] = 0
	}
}

// Destination is the terminal unit. Its output is what devices play.
type Destination struct{}

// Process copies input to output.
func (Destination) Process(in, out []float64) {
	copy(out, in)
}
