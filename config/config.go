// Package config loads audiograph configuration from a YAML file and
// AUDIOGRAPH_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Devices.
const (
	DevicePortAudio = "portaudio"
	DeviceNull      = "null"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "AUDIOGRAPH_"

// ErrInvalid is returned when loaded configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Config of the audiograph server.
type Config struct {
	SampleRate int    `yaml:"sampleRate" mapstructure:"sampleRate"`
	BlockSize  int    `yaml:"blockSize" mapstructure:"blockSize"`
	Channels   int    `yaml:"channels" mapstructure:"channels"`
	Device     string `yaml:"device" mapstructure:"device"`
	Listen     string `yaml:"listen" mapstructure:"listen"`
	Debug      bool   `yaml:"debug" mapstructure:"debug"`
	// MaxDelayTime of delay nodes in seconds.
	MaxDelayTime float64 `yaml:"maxDelayTime" mapstructure:"maxDelayTime"`
	// MaxRecording of recording nodes in seconds.
	MaxRecording        float64       `yaml:"maxRecording" mapstructure:"maxRecording"`
	AdditiveConnections bool          `yaml:"additiveConnections" mapstructure:"additiveConnections"`
	SpectrumInterval    time.Duration `yaml:"spectrumInterval" mapstructure:"spectrumInterval"`
}

// Default returns default configuration.
func Default() Config {
	return Config{
		SampleRate:       48000,
		BlockSize:        128,
		Channels:         2,
		Device:           DevicePortAudio,
		Listen:           ":8080",
		MaxDelayTime:     1,
		MaxRecording:     600,
		SpectrumInterval: 16 * time.Millisecond,
	}
}

// Load reads configuration from the file at path over defaults and
// applies environment overrides. Empty path skips the file.
func Load(path string) (Config, error) {
	values := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &values); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	overrides(values, os.Environ())
	return Decode(values)
}

// Decode decodes values over defaults and validates the result.
func Decode(values map[string]any) (Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(values); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// overrides sets values from environment. AUDIOGRAPH_SAMPLE_RATE
// overrides sampleRate.
func overrides(values map[string]any, environ []string) {
	keys := map[string]string{}
	for _, key := range fields() {
		keys[envName(key)] = key
	}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if key, ok := keys[name]; ok {
			values[key] = value
		}
	}
}

func fields() []string {
	return []string{
		"sampleRate",
		"blockSize",
		"channels",
		"device",
		"listen",
		"debug",
		"maxDelayTime",
		"maxRecording",
		"additiveConnections",
		"spectrumInterval",
	}
}

// envName converts camel case key to environment variable name.
func envName(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			continue
		}
		b.WriteRune(r - 'a' + 'A')
	}
	return b.String()
}

// Validate checks configuration values.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalid, c.SampleRate)
	case c.BlockSize <= 0:
		return fmt.Errorf("%w: block size %d", ErrInvalid, c.BlockSize)
	case c.Channels <= 0:
		return fmt.Errorf("%w: channels %d", ErrInvalid, c.Channels)
	case c.Device != DevicePortAudio && c.Device != DeviceNull:
		return fmt.Errorf("%w: device %q", ErrInvalid, c.Device)
	case c.MaxDelayTime <= 0:
		return fmt.Errorf("%w: max delay time %v", ErrInvalid, c.MaxDelayTime)
	case c.MaxRecording <= 0:
		return fmt.Errorf("%w: max recording %v", ErrInvalid, c.MaxRecording)
	case c.SpectrumInterval <= 0:
		return fmt.Errorf("%w: spectrum interval %v", ErrInvalid, c.SpectrumInterval)
	}
	return nil
}
