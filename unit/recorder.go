package unit

import (
	"sync"

	"pipelined.dev/audiograph/codec"
)

// Recorder passes the signal through and keeps it while recording.
type Recorder struct {
	m          sync.Mutex
	recording  bool
	samples    []float64
	sampleRate int
	limit      int
}

// NewRecorder returns recorder that keeps at most limit samples.
func NewRecorder(sampleRate, limit int) *Recorder {
	return &Recorder{
		sampleRate: sampleRate,
		limit:      limit,
	}
}

// SetRecording starts or stops recording. Starting discards samples of
// the previous recording.
func (r *Recorder) SetRecording(v bool) {
	r.m.Lock()
	defer r.m.Unlock()
	if v && !r.recording {
		r.samples = r.samples[:0]
	}
	r.recording = v
}

// Recording returns true while recording.
func (r *Recorder) Recording() bool {
	r.m.Lock()
	defer r.m.Unlock()
	return r.recording
}

// Len returns the number of recorded samples.
func (r *Recorder) Len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.samples)
}

// Process copies input to output and records it.
func (r *Recorder) Process(in, out []float64) {
	copy(out, in)
	r.m.Lock()
	defer r.m.Unlock()
	if !r.recording {
		return
	}
	free := r.limit - len(r.samples)
	if free <= 0 {
		return
	}
	if len(in) > free {
		in = in[:free]
	}
	r.samples = append(r.samples, in...)
}

// WAV encodes recorded samples.
func (r *Recorder) WAV() ([]byte, error) {
	r.m.Lock()
	samples := make([]float64, len(r.samples))
	copy(samples, r.samples)
	r.m.Unlock()
	return codec.WAV(samples, r.sampleRate)
}
