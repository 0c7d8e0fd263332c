package kind

import (
	"context"
	"errors"
	"math"

	"pipelined.dev/audiograph/codec"
	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/param"
	"pipelined.dev/audiograph/unit"
)

// ErrInvalidValue is returned when special field value cannot be used.
var ErrInvalidValue = errors.New("invalid field value")

// DefaultRegistry returns registry with all built-in kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(oscillator().descriptor())
	r.MustRegister(microphone().descriptor())
	r.MustRegister(fileInput().descriptor())
	r.MustRegister(amplifier().descriptor())
	r.MustRegister(biquadFilter().descriptor())
	r.MustRegister(convolver().descriptor())
	r.MustRegister(delayLine().descriptor())
	r.MustRegister(waveShaper().descriptor())
	r.MustRegister(analyser().descriptor())
	r.MustRegister(fileOutput().descriptor())
	r.MustRegister(output().descriptor())
	return r
}

func oscillator() definition[*unit.Oscillator] {
	return definition[*unit.Oscillator]{
		kind: Oscillator,
		role: Source,
		defaults: param.Bag{
			"frequency": 440.0,
			"detune":    0.0,
			"type":      unit.Sine.String(),
		},
		fields: []field[*unit.Oscillator]{
			parameter("frequency", func(o *unit.Oscillator) *param.Param { return o.Frequency }),
			parameter("detune", func(o *unit.Oscillator) *param.Param { return o.Detune }),
			property("type", func(o *unit.Oscillator, v any) (func(), bool) {
				s, _ := param.String(v)
				w, ok := unit.ParseWaveform(s)
				if !ok {
					return nil, false
				}
				return func() { o.SetWaveform(w) }, true
			}),
		},
		build: func(env Env) (*unit.Oscillator, error) {
			return unit.NewOscillator(env.SampleRate), nil
		},
		start: (*unit.Oscillator).Start,
		stop:  (*unit.Oscillator).Stop,
	}
}

func microphone() definition[*unit.StreamSource] {
	return definition[*unit.StreamSource]{
		kind:     Microphone,
		role:     Source,
		defaults: param.Bag{},
		open: func(ctx context.Context, env Env) (*unit.StreamSource, error) {
			capturer := env.Capturer
			if capturer == nil {
				capturer = device.Unavailable{}
			}
			f := device.Format{
				SampleRate: env.SampleRate,
				Channels:   1,
				BlockSize:  env.BlockSize,
			}
			stream, err := capturer.Capture(ctx, f)
			if err != nil {
				return nil, err
			}
			return unit.NewStreamSource(stream, f), nil
		},
		release: (*unit.StreamSource).Close,
	}
}

func fileInput() definition[*unit.BufferSource] {
	return definition[*unit.BufferSource]{
		kind: FileInput,
		role: Source,
		defaults: param.Bag{
			"buffer":       nil,
			"loop":         false,
			"playbackRate": 1.0,
		},
		fields: []field[*unit.BufferSource]{
			boolProperty("loop", (*unit.BufferSource).SetLoop),
			parameter("playbackRate", func(s *unit.BufferSource) *param.Param { return s.PlaybackRate }),
			special("buffer", func(s *unit.BufferSource, env Env, v any) (func(), param.Bag, error) {
				if v == nil {
					return s.Data(nil), nil, nil
				}
				b, mono, err := decode(v, env)
				if err != nil {
					return nil, nil, err
				}
				return s.Data(mono), bufferInfo(b), nil
			}),
		},
		build: func(Env) (*unit.BufferSource, error) {
			return unit.NewBufferSource(), nil
		},
		start: (*unit.BufferSource).Start,
		stop:  (*unit.BufferSource).Stop,
	}
}

func amplifier() definition[*unit.Gain] {
	return definition[*unit.Gain]{
		kind:     Amplifier,
		role:     Effect,
		defaults: param.Bag{"gain": 0.5},
		fields: []field[*unit.Gain]{
			parameter("gain", func(g *unit.Gain) *param.Param { return g.Gain }),
		},
		build: func(Env) (*unit.Gain, error) {
			return unit.NewGain(), nil
		},
	}
}

func biquadFilter() definition[*unit.Biquad] {
	return definition[*unit.Biquad]{
		kind: Biquad,
		role: Effect,
		defaults: param.Bag{
			"frequency": 440.0,
			"detune":    0.0,
			"Q":         1.0,
			"gain":      0.0,
			"type":      unit.Lowpass.String(),
		},
		fields: []field[*unit.Biquad]{
			parameter("frequency", func(b *unit.Biquad) *param.Param { return b.Frequency }),
			parameter("detune", func(b *unit.Biquad) *param.Param { return b.Detune }),
			parameter("Q", func(b *unit.Biquad) *param.Param { return b.Q }),
			parameter("gain", func(b *unit.Biquad) *param.Param { return b.Gain }),
			property("type", func(b *unit.Biquad, v any) (func(), bool) {
				s, _ := param.String(v)
				t, ok := unit.ParseFilterType(s)
				if !ok {
					return nil, false
				}
				return func() { b.SetType(t) }, true
			}),
		},
		build: func(env Env) (*unit.Biquad, error) {
			return unit.NewBiquad(env.SampleRate), nil
		},
	}
}

func convolver() definition[*unit.Convolver] {
	return definition[*unit.Convolver]{
		kind: Convolver,
		role: Effect,
		defaults: param.Bag{
			"buffer":    nil,
			"normalize": false,
		},
		fields: []field[*unit.Convolver]{
			boolProperty("normalize", (*unit.Convolver).SetNormalize),
			special("buffer", func(c *unit.Convolver, env Env, v any) (func(), param.Bag, error) {
				if v == nil {
					install, err := c.Response(nil)
					return install, nil, err
				}
				b, mono, err := decode(v, env)
				if err != nil {
					return nil, nil, err
				}
				install, err := c.Response(mono)
				if err != nil {
					return nil, nil, err
				}
				return install, bufferInfo(b), nil
			}),
		},
		build: func(env Env) (*unit.Convolver, error) {
			return unit.NewConvolver(env.BlockSize), nil
		},
	}
}

func delayLine() definition[*unit.Delay] {
	return definition[*unit.Delay]{
		kind:     Delay,
		role:     Effect,
		defaults: param.Bag{"delayTime": 0.0},
		fields: []field[*unit.Delay]{
			parameter("delayTime", func(d *unit.Delay) *param.Param { return d.DelayTime }),
		},
		build: func(env Env) (*unit.Delay, error) {
			maxDelay := env.MaxDelayTime
			if maxDelay <= 0 {
				maxDelay = 1
			}
			return unit.NewDelay(env.SampleRate, maxDelay)
		},
	}
}

func waveShaper() definition[*unit.WaveShaper] {
	return definition[*unit.WaveShaper]{
		kind: WaveShaper,
		role: Effect,
		defaults: param.Bag{
			"curve":      []float64{0, 0},
			"oversample": unit.OversampleNone.String(),
		},
		fields: []field[*unit.WaveShaper]{
			property("curve", func(w *unit.WaveShaper, v any) (func(), bool) {
				if v == nil {
					return func() { w.SetCurve(nil) }, true
				}
				curve, ok := param.Floats(v)
				if !ok {
					return nil, false
				}
				return func() { w.SetCurve(curve) }, true
			}),
			property("oversample", func(w *unit.WaveShaper, v any) (func(), bool) {
				s, _ := param.String(v)
				o, ok := unit.ParseOversample(s)
				if !ok {
					return nil, false
				}
				install, err := w.Oversampler(o)
				return install, err == nil
			}),
		},
		build: func(Env) (*unit.WaveShaper, error) {
			return unit.NewWaveShaper(), nil
		},
	}
}

func analyser() definition[*unit.Analyser] {
	return definition[*unit.Analyser]{
		kind: Analyser,
		role: Sink,
		defaults: param.Bag{
			"fftSize":               unit.DefaultFFTSize,
			"smoothingTimeConstant": unit.DefaultSmoothingTimeConstant,
			"minDecibels":           float64(unit.DefaultMinDecibels),
			"maxDecibels":           float64(unit.DefaultMaxDecibels),
		},
		fields: []field[*unit.Analyser]{
			immediate(property("fftSize", func(a *unit.Analyser, v any) (func(), bool) {
				n, ok := param.Int(v)
				if !ok {
					return nil, false
				}
				if n == a.FFTSize() {
					return func() {}, true
				}
				install, err := a.Resize(n)
				return install, err == nil
			})),
			immediate(property("smoothingTimeConstant", func(a *unit.Analyser, v any) (func(), bool) {
				f, ok := param.Float(v)
				if !ok || f < 0 || f > 1 {
					return nil, false
				}
				return func() { a.SetSmoothingTimeConstant(f) }, true
			})),
			immediate(floatProperty("minDecibels", func(a *unit.Analyser, v float64) { a.SetMinDecibels(v) })),
			immediate(floatProperty("maxDecibels", func(a *unit.Analyser, v float64) { a.SetMaxDecibels(v) })),
		},
		build: func(Env) (*unit.Analyser, error) {
			return unit.NewAnalyser()
		},
		analyser: func(a *unit.Analyser) *unit.Analyser { return a },
	}
}

func fileOutput() definition[*unit.Recorder] {
	return definition[*unit.Recorder]{
		kind:     FileOutput,
		role:     Sink,
		defaults: param.Bag{"recording": false},
		fields: []field[*unit.Recorder]{
			boolProperty("recording", (*unit.Recorder).SetRecording),
		},
		build: func(env Env) (*unit.Recorder, error) {
			seconds := env.MaxRecording
			if seconds <= 0 {
				seconds = 600
			}
			return unit.NewRecorder(env.SampleRate, int(math.Ceil(seconds*float64(env.SampleRate)))), nil
		},
		recorder: func(r *unit.Recorder) *unit.Recorder { return r },
	}
}

func output() definition[unit.Destination] {
	return definition[unit.Destination]{
		kind:     Output,
		role:     Sink,
		defaults: param.Bag{},
		build: func(Env) (unit.Destination, error) {
			return unit.Destination{}, nil
		},
	}
}

// decode converts payload into mono samples at the engine sample rate.
func decode(v any, env Env) (*codec.Buffer, []float64, error) {
	payload, ok := param.Bytes(v)
	if !ok {
		return nil, nil, ErrInvalidValue
	}
	b, err := codec.Decode(payload)
	if err != nil {
		return nil, nil, err
	}
	resampled, err := b.Resample(env.SampleRate)
	if err != nil {
		return nil, nil, err
	}
	return b, resampled.Mono(), nil
}

// bufferInfo describes decoded payload.
func bufferInfo(b *codec.Buffer) param.Bag {
	return param.Bag{
		"duration":   b.Duration().Seconds(),
		"sampleRate": b.SampleRate,
		"channels":   b.Channels(),
		"length":     b.Length(),
	}
}
