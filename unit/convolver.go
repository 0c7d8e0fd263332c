package unit

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/conv"
)

// Convolver applies an impulse response with streaming FFT convolution.
type Convolver struct {
	blockSize int
	engine    *conv.StreamingOverlapAdd
	scale     float64
	normalize bool
}

// NewConvolver returns a convolver without impulse response. It outputs
// silence until a response is installed.
func NewConvolver(blockSize int) *Convolver {
	return &Convolver{
		blockSize: blockSize,
		scale:     1,
	}
}

// Response prepares convolution with provided impulse response. The
// returned function installs it and must run on the render goroutine.
// Empty response removes the current one.
func (c *Convolver) Response(ir []float64) (func(), error) {
	if len(ir) == 0 {
		return func() {
			c.engine = nil
		}, nil
	}
	engine, err := conv.NewStreamingOverlapAdd(ir, c.blockSize)
	if err != nil {
		return nil, err
	}
	scale := normalization(ir)
	return func() {
		c.engine = engine
		c.scale = scale
	}, nil
}

// SetNormalize toggles scaling of the response to unit energy.
func (c *Convolver) SetNormalize(v bool) {
	c.normalize = v
}

// Normalize returns true if response is scaled to unit energy.
func (c *Convolver) Normalize() bool {
	return c.normalize
}

// Process convolves the block.
func (c *Convolver) Process(in, out []float64) {
	if c.engine == nil {
		silence(out)
		return
	}
	if err := c.engine.ProcessBlockTo(out, in); err != nil {
		silence(out)
		return
	}
	if c.normalize {
		for i := range out {
			out[i] *= c.scale
		}
	}
}

func normalization(ir []float64) float64 {
	var power float64
	for _, v := range ir {
		power += v * v
	}
	if power < 1e-12 {
		return 1
	}
	return 1 / math.Sqrt(power)
}
