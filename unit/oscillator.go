package unit

import (
	"math"

	"pipelined.dev/audiograph/param"
)

// Waveform of an oscillator.
type Waveform int

// Waveforms.
const (
	Sine Waveform = iota
	Square
	Sawtooth
	Triangle
)

var waveforms = [...]string{
	Sine:     "sine",
	Square:   "square",
	Sawtooth: "sawtooth",
	Triangle: "triangle",
}

func (w Waveform) String() string {
	if int(w) < len(waveforms) {
		return waveforms[w]
	}
	return "unknown"
}

// ParseWaveform returns waveform by its name.
func ParseWaveform(s string) (Waveform, bool) {
	for i, name := range waveforms {
		if name == s {
			return Waveform(i), true
		}
	}
	return 0, false
}

// maxDetune is the detune range in cents.
const maxDetune = 153600

// Oscillator is a scheduled periodic source.
type Oscillator struct {
	schedule
	Frequency *param.Param
	Detune    *param.Param

	waveform   Waveform
	phase      float64
	sampleRate float64
}

// NewOscillator returns a sine oscillator at 440 Hz.
func NewOscillator(sampleRate int) *Oscillator {
	nyquist := float64(sampleRate) / 2
	return &Oscillator{
		Frequency:  param.New(440, -nyquist, nyquist),
		Detune:     param.New(0, -maxDetune, maxDetune),
		sampleRate: float64(sampleRate),
	}
}

// SetWaveform assigns waveform.
func (o *Oscillator) SetWaveform(w Waveform) {
	o.waveform = w
}

// Waveform returns current waveform.
func (o *Oscillator) Waveform() Waveform {
	return o.waveform
}

// Process generates a block if the oscillator is playing.
func (o *Oscillator) Process(_, out []float64) {
	if !o.Playing() {
		silence(out)
		return
	}
	freq := o.Frequency.Value() * math.Exp2(o.Detune.Value()/1200)
	step := freq / o.sampleRate
	for i := range out {
		out[i] = o.sample(o.phase)
		o.phase += step
		o.phase -= math.Floor(o.phase)
	}
}

// sample returns value of the waveform at phase in [0, 1).
func (o *Oscillator) sample(phase float64) float64 {
	switch o.waveform {
	case Square:
		if phase < 0.5 {
			return 1
		}
		return -1
	case Sawtooth:
		return 2*phase - 1
	case Triangle:
		if phase < 0.5 {
			return 4*phase - 1
		}
		return 3 - 4*phase
	}
	return math.Sin(2 * math.Pi * phase)
}
