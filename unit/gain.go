package unit

import (
	"math"

	"pipelined.dev/audiograph/param"
)

// Gain multiplies the signal.
type Gain struct {
	Gain *param.Param
}

// NewGain returns unity gain.
func NewGain() *Gain {
	return &Gain{
		Gain: param.New(1, -math.MaxFloat32, math.MaxFloat32),
	}
}

// Process applies gain.
func (g *Gain) Process(in, out []float64) {
	v := g.Gain.Value()
	for i := range in {
		out[i] = in[i] * v
	}
}
