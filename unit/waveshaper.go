package unit

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// Oversample factor of the wave shaper.
type Oversample int

// Oversample factors.
const (
	OversampleNone Oversample = 1
	Oversample2x   Oversample = 2
	Oversample4x   Oversample = 4
)

func (o Oversample) String() string {
	switch o {
	case Oversample2x:
		return "2x"
	case Oversample4x:
		return "4x"
	}
	return "none"
}

// ParseOversample returns factor by its name.
func ParseOversample(s string) (Oversample, bool) {
	switch s {
	case "none":
		return OversampleNone, true
	case "2x":
		return Oversample2x, true
	case "4x":
		return Oversample4x, true
	}
	return 0, false
}

// WaveShaper maps the signal through a transfer curve.
type WaveShaper struct {
	curve      []float64
	oversample Oversample
	up, down   *resample.Resampler
}

// NewWaveShaper returns wave shaper without curve, which passes the
// signal through.
func NewWaveShaper() *WaveShaper {
	return &WaveShaper{oversample: OversampleNone}
}

// SetCurve assigns transfer curve spanning input range [-1, 1].
func (w *WaveShaper) SetCurve(curve []float64) {
	w.curve = curve
}

// Curve returns current transfer curve.
func (w *WaveShaper) Curve() []float64 {
	return w.curve
}

// Oversampler prepares resamplers for provided factor. The returned
// function installs them and must run on the render goroutine.
func (w *WaveShaper) Oversampler(o Oversample) (func(), error) {
	if o == OversampleNone {
		return func() {
			w.oversample, w.up, w.down = o, nil, nil
		}, nil
	}
	up, err := resample.NewRational(int(o), 1)
	if err != nil {
		return nil, err
	}
	down, err := resample.NewRational(1, int(o))
	if err != nil {
		return nil, err
	}
	return func() {
		w.oversample, w.up, w.down = o, up, down
	}, nil
}

// Oversample returns current factor.
func (w *WaveShaper) Oversample() Oversample {
	return w.oversample
}

// Process shapes the block.
func (w *WaveShaper) Process(in, out []float64) {
	if w.up == nil {
		for i := range in {
			out[i] = w.shape(in[i])
		}
		return
	}
	upsampled := w.up.Process(in)
	for i := range upsampled {
		upsampled[i] = w.shape(upsampled[i])
	}
	n := copy(out, w.down.Process(upsampled))
	silence(out[n:])
}

func (w *WaveShaper) shape(x float64) float64 {
	n := len(w.curve)
	if n == 0 {
		return x
	}
	if n == 1 {
		return w.curve[0]
	}
	v := float64(n-1) * (x + 1) / 2
	if v <= 0 {
		return w.curve[0]
	}
	if v >= float64(n-1) {
		return w.curve[n-1]
	}
	k := math.Floor(v)
	i := int(k)
	f := v - k
	return w.curve[i]*(1-f) + w.curve[i+1]*f
}
