package unit

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

// Analyser defaults.
const (
	DefaultFFTSize               = 2048
	DefaultSmoothingTimeConstant = 0.8
	DefaultMinDecibels           = -100
	DefaultMaxDecibels           = -30

	minFFTSize = 32
	maxFFTSize = 32768
)

// ErrInvalidFFTSize is returned for sizes that are not a power of two
// within [32, 32768].
var ErrInvalidFFTSize = errors.New("fft size must be a power of two between 32 and 32768")

// Analyser passes the signal through and provides its frequency spectrum
// on demand. Readback methods can be called from any goroutine and do
// not allocate.
type Analyser struct {
	m         sync.Mutex
	fftSize   int
	smoothing float64
	minDB     float64
	maxDB     float64

	ring  []float64
	write int

	window   []float64
	plan     *algofft.Plan[complex128]
	input    []complex128
	output   []complex128
	smoothed []float64
}

// analysis holds buffers which depend on fft size.
type analysis struct {
	fftSize  int
	ring     []float64
	window   []float64
	plan     *algofft.Plan[complex128]
	input    []complex128
	output   []complex128
	smoothed []float64
}

// NewAnalyser returns analyser with default settings.
func NewAnalyser() (*Analyser, error) {
	a := Analyser{
		smoothing: DefaultSmoothingTimeConstant,
		minDB:     DefaultMinDecibels,
		maxDB:     DefaultMaxDecibels,
	}
	an, err := newAnalysis(DefaultFFTSize)
	if err != nil {
		return nil, err
	}
	a.install(an)
	return &a, nil
}

func newAnalysis(size int) (analysis, error) {
	if size < minFFTSize || size > maxFFTSize || size&(size-1) != 0 {
		return analysis{}, fmt.Errorf("%w: %d", ErrInvalidFFTSize, size)
	}
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return analysis{}, fmt.Errorf("analyser fft plan: %w", err)
	}
	return analysis{
		fftSize:  size,
		ring:     make([]float64, size),
		window:   window.Generate(window.TypeBlackman, size),
		plan:     plan,
		input:    make([]complex128, size),
		output:   make([]complex128, size),
		smoothed: make([]float64, size/2),
	}, nil
}

func (a *Analyser) install(an analysis) {
	a.fftSize = an.fftSize
	a.ring = an.ring
	a.write = 0
	a.window = an.window
	a.plan = an.plan
	a.input = an.input
	a.output = an.output
	a.smoothed = an.smoothed
}

// Resize prepares buffers for new fft size. The returned function
// installs them.
func (a *Analyser) Resize(size int) (func(), error) {
	an, err := newAnalysis(size)
	if err != nil {
		return nil, err
	}
	return func() {
		a.m.Lock()
		defer a.m.Unlock()
		a.install(an)
	}, nil
}

// SetSmoothingTimeConstant assigns averaging constant in [0, 1].
func (a *Analyser) SetSmoothingTimeConstant(v float64) bool {
	if v < 0 || v > 1 {
		return false
	}
	a.m.Lock()
	defer a.m.Unlock()
	a.smoothing = v
	return true
}

// SetMinDecibels assigns the lower bound of byte scaling. It must stay
// below the upper bound.
func (a *Analyser) SetMinDecibels(v float64) bool {
	a.m.Lock()
	defer a.m.Unlock()
	if v >= a.maxDB {
		return false
	}
	a.minDB = v
	return true
}

// SetMaxDecibels assigns the upper bound of byte scaling. It must stay
// above the lower bound.
func (a *Analyser) SetMaxDecibels(v float64) bool {
	a.m.Lock()
	defer a.m.Unlock()
	if v <= a.minDB {
		return false
	}
	a.maxDB = v
	return true
}

// FFTSize returns current fft size.
func (a *Analyser) FFTSize() int {
	a.m.Lock()
	defer a.m.Unlock()
	return a.fftSize
}

// FrequencyBinCount returns half of fft size.
func (a *Analyser) FrequencyBinCount() uint {
	a.m.Lock()
	defer a.m.Unlock()
	return uint(a.fftSize / 2)
}

// Process copies input to output and keeps the latest fft size samples.
func (a *Analyser) Process(in, out []float64) {
	copy(out, in)
	a.m.Lock()
	for _, v := range in {
		a.ring[a.write] = v
		a.write++
		if a.write == len(a.ring) {
			a.write = 0
		}
	}
	a.m.Unlock()
}

// ByteFrequencyData fills buf with the current spectrum scaled between
// min and max decibels into [0, 255]. At most FrequencyBinCount values
// are written.
func (a *Analyser) ByteFrequencyData(buf []byte) {
	a.m.Lock()
	defer a.m.Unlock()
	a.analyse()
	scale := 255 / (a.maxDB - a.minDB)
	n := min(len(buf), len(a.smoothed))
	for k := 0; k < n; k++ {
		v := (core.LinearToDB(a.smoothed[k]) - a.minDB) * scale
		if math.IsNaN(v) {
			v = 0
		}
		buf[k] = byte(core.Clamp(v, 0, 255))
	}
}

// FloatFrequencyData fills buf with the current spectrum in decibels.
func (a *Analyser) FloatFrequencyData(buf []float32) {
	a.m.Lock()
	defer a.m.Unlock()
	a.analyse()
	n := min(len(buf), len(a.smoothed))
	for k := 0; k < n; k++ {
		buf[k] = float32(core.LinearToDB(a.smoothed[k]))
	}
}

// ByteTimeDomainData fills buf with the latest waveform where 128 is zero.
func (a *Analyser) ByteTimeDomainData(buf []byte) {
	a.m.Lock()
	defer a.m.Unlock()
	n := min(len(buf), a.fftSize)
	read := a.write
	for i := 0; i < n; i++ {
		buf[i] = byte(core.Clamp(128*(1+a.ring[read]), 0, 255))
		read++
		if read == len(a.ring) {
			read = 0
		}
	}
}

// analyse applies window, transforms and smooths magnitudes. Must be
// called with the lock held.
func (a *Analyser) analyse() {
	read := a.write
	for i := 0; i < a.fftSize; i++ {
		a.input[i] = complex(a.ring[read]*a.window[i], 0)
		read++
		if read == len(a.ring) {
			read = 0
		}
	}
	if err := a.plan.Forward(a.output, a.input); err != nil {
		return
	}
	norm := 1 / float64(a.fftSize)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.output[k]) * norm
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
	}
}
