package unit

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"pipelined.dev/audiograph/param"
)

// FilterType of a biquad filter.
type FilterType int

// Filter types.
const (
	Lowpass FilterType = iota
	Highpass
	Bandpass
	LowShelf
	HighShelf
	Peaking
	Notch
	Allpass
)

var filterTypes = [...]string{
	Lowpass:   "lowpass",
	Highpass:  "highpass",
	Bandpass:  "bandpass",
	LowShelf:  "lowshelf",
	HighShelf: "highshelf",
	Peaking:   "peaking",
	Notch:     "notch",
	Allpass:   "allpass",
}

func (t FilterType) String() string {
	if int(t) < len(filterTypes) {
		return filterTypes[t]
	}
	return "unknown"
}

// ParseFilterType returns filter type by its name.
func ParseFilterType(s string) (FilterType, bool) {
	for i, name := range filterTypes {
		if name == s {
			return FilterType(i), true
		}
	}
	return 0, false
}

// shelfQ is used for shelving filters, which have no resonance control.
const shelfQ = 1 / math.Sqrt2

// Biquad is a second order filter section.
type Biquad struct {
	Frequency *param.Param
	Detune    *param.Param
	Q         *param.Param
	Gain      *param.Param

	filterType FilterType
	section    *biquad.Section
	sampleRate float64
	// values used for current coefficients
	designed [4]float64
	dirty    bool
}

// NewBiquad returns lowpass filter at 440 Hz.
func NewBiquad(sampleRate int) *Biquad {
	nyquist := float64(sampleRate) / 2
	b := Biquad{
		Frequency:  param.New(440, 0, nyquist),
		Detune:     param.New(0, -maxDetune, maxDetune),
		Q:          param.New(1, -math.MaxFloat32, math.MaxFloat32),
		Gain:       param.New(0, -math.MaxFloat32, 40*math.Log10(math.MaxFloat32)),
		section:    biquad.NewSection(biquad.Coefficients{B0: 1}),
		sampleRate: float64(sampleRate),
		dirty:      true,
	}
	return &b
}

// SetType assigns filter type.
func (b *Biquad) SetType(t FilterType) {
	if b.filterType != t {
		b.filterType = t
		b.dirty = true
	}
}

// Type returns current filter type.
func (b *Biquad) Type() FilterType {
	return b.filterType
}

// Process filters the block.
func (b *Biquad) Process(in, out []float64) {
	b.update()
	copy(out, in)
	b.section.ProcessBlock(out)
}

// update recalculates coefficients when parameters changed.
func (b *Biquad) update() {
	values := [4]float64{
		b.Frequency.Value(),
		b.Detune.Value(),
		b.Q.Value(),
		b.Gain.Value(),
	}
	if !b.dirty && values == b.designed {
		return
	}
	b.designed = values
	b.dirty = false
	b.section.Coefficients = b.coefficients(values[0]*math.Exp2(values[1]/1200), values[2], values[3])
}

func (b *Biquad) coefficients(freq, q, gain float64) biquad.Coefficients {
	nyquist := b.sampleRate / 2
	freq = core.Clamp(freq, 1, nyquist*0.999)
	if q < 1e-4 {
		q = 1e-4
	}
	switch b.filterType {
	case Highpass:
		return design.Highpass(freq, q, b.sampleRate)
	case Bandpass:
		return design.Bandpass(freq, q, b.sampleRate)
	case LowShelf:
		return design.LowShelf(freq, gain, shelfQ, b.sampleRate)
	case HighShelf:
		return design.HighShelf(freq, gain, shelfQ, b.sampleRate)
	case Peaking:
		return design.Peak(freq, gain, q, b.sampleRate)
	case Notch:
		return design.Notch(freq, q, b.sampleRate)
	case Allpass:
		return design.Allpass(freq, q, b.sampleRate)
	}
	return design.Lowpass(freq, q, b.sampleRate)
}
