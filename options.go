package audiograph

import (
	"errors"

	"github.com/sirupsen/logrus"

	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/metric"
)

// Defaults of the engine.
const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 128
	DefaultChannels   = 2
)

// Option provides a way to set functional parameters to engine.
type Option func(e *Engine) error

// WithRegistry sets the kind registry. DefaultRegistry is used otherwise.
func WithRegistry(r *kind.Registry) Option {
	return func(e *Engine) error {
		if r == nil {
			return errors.New("nil registry")
		}
		e.registry = r
		return nil
	}
}

// WithLogger sets logger to engine. Logs are discarded otherwise.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithPlayer sets the output device. Output is discarded at real-time
// pace otherwise.
func WithPlayer(p device.Player) Option {
	return func(e *Engine) error {
		e.player = p
		return nil
	}
}

// WithCapturer sets the input device used by asynchronous kinds.
func WithCapturer(c device.Capturer) Option {
	return func(e *Engine) error {
		e.env.Capturer = c
		return nil
	}
}

// WithFormat sets sample rate, block size and number of output channels.
func WithFormat(sampleRate, blockSize, channels int) Option {
	return func(e *Engine) error {
		if sampleRate <= 0 || blockSize <= 0 || channels <= 0 {
			return errors.New("format values must be positive")
		}
		e.format = device.Format{
			SampleRate: sampleRate,
			Channels:   channels,
			BlockSize:  blockSize,
		}
		return nil
	}
}

// WithMaxDelayTime sets the capacity of delay units in seconds.
func WithMaxDelayTime(seconds float64) Option {
	return func(e *Engine) error {
		if seconds <= 0 {
			return errors.New("max delay time must be positive")
		}
		e.env.MaxDelayTime = seconds
		return nil
	}
}

// WithMaxRecording sets the capacity of recording units in seconds.
func WithMaxRecording(seconds float64) Option {
	return func(e *Engine) error {
		if seconds <= 0 {
			return errors.New("max recording must be positive")
		}
		e.env.MaxRecording = seconds
		return nil
	}
}

// WithMetrics enables engine metrics.
func WithMetrics(m *metric.Engine) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithAdditiveConnections makes every Connect add a path, so connecting
// the same pair twice doubles the contribution of the source. Connect is
// idempotent otherwise.
func WithAdditiveConnections() Option {
	return func(e *Engine) error {
		e.additive = true
		return nil
	}
}
