package audiograph

import (
	"fmt"

	"pipelined.dev/audiograph/param"
	"pipelined.dev/audiograph/unit"
)

// State returns the state of the node entry.
func (e *Engine) State(id string) State {
	e.m.Lock()
	defer e.m.Unlock()
	if en, ok := e.entries[id]; ok {
		return en.state
	}
	return StateAbsent
}

// Err returns the acquisition error of a failed node.
func (e *Engine) Err(id string) error {
	e.m.Lock()
	defer e.m.Unlock()
	if en, ok := e.entries[id]; ok {
		return en.err
	}
	return nil
}

// Derived returns values derived by special setters of the node, keyed by
// field name.
func (e *Engine) Derived(id string) param.Bag {
	e.m.Lock()
	defer e.m.Unlock()
	if en, ok := e.entries[id]; ok {
		return en.derived.Clone()
	}
	return nil
}

// Value returns the current value of the parameter field of a live node.
func (e *Engine) Value(id, name string) (float64, bool) {
	e.m.Lock()
	defer e.m.Unlock()
	en, ok := e.entries[id]
	if !ok || en.state != StateLive {
		return 0, false
	}
	if b, ok := en.instance.Binding(name); ok && b.Param != nil {
		return b.Param.Value(), true
	}
	return 0, false
}

// Connected returns the number of paths from src to dst.
func (e *Engine) Connected(src, dst string) int {
	e.m.Lock()
	defer e.m.Unlock()
	return e.edges[edge{src: src, dst: dst}]
}

// Analyser returns the analyser of a live analysing node.
func (e *Engine) Analyser(id string) (*unit.Analyser, bool) {
	e.m.Lock()
	defer e.m.Unlock()
	if en, ok := e.entries[id]; ok && en.state == StateLive && en.instance.Analyser != nil {
		return en.instance.Analyser, true
	}
	return nil, false
}

// FrequencyBinCount returns the number of spectrum bins of the analysing
// node or zero if id doesn't analyse.
func (e *Engine) FrequencyBinCount(id string) uint {
	if a, ok := e.Analyser(id); ok {
		return a.FrequencyBinCount()
	}
	return 0
}

// SampleSpectrum fills buf with the current byte spectrum of the
// analysing node. It doesn't allocate and does nothing if id doesn't
// analyse.
func (e *Engine) SampleSpectrum(id string, buf []byte) {
	if a, ok := e.Analyser(id); ok {
		a.ByteFrequencyData(buf)
	}
}

// Recording returns WAV-encoded recording of the recording node.
func (e *Engine) Recording(id string) ([]byte, error) {
	e.m.Lock()
	var r *unit.Recorder
	if en, ok := e.entries[id]; ok && en.state == StateLive {
		r = en.instance.Recorder
	}
	e.m.Unlock()
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRecorder, id)
	}
	return r.WAV()
}
