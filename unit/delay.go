package unit

import (
	"github.com/cwbudde/algo-dsp/dsp/delay"

	"pipelined.dev/audiograph/param"
)

// Delay holds the signal back by DelayTime seconds.
type Delay struct {
	DelayTime  *param.Param
	line       *delay.Line
	sampleRate float64
}

// NewDelay returns zero delay able to hold up to maxDelay seconds.
func NewDelay(sampleRate int, maxDelay float64) (*Delay, error) {
	// cubic interpolation needs extra samples around the read position
	line, err := delay.New(int(maxDelay*float64(sampleRate)) + 4)
	if err != nil {
		return nil, err
	}
	return &Delay{
		DelayTime:  param.New(0, 0, maxDelay),
		line:       line,
		sampleRate: float64(sampleRate),
	}, nil
}

// Process delays the block.
func (d *Delay) Process(in, out []float64) {
	samples := d.DelayTime.Value() * d.sampleRate
	for i := range in {
		d.line.Write(in[i])
		// position 1 is the sample just written
		out[i] = d.line.ReadFractional(samples + 1)
	}
}
