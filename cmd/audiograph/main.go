package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/config"
	"pipelined.dev/audiograph/device"
	"pipelined.dev/audiograph/device/portaudio"
	"pipelined.dev/audiograph/log"
	"pipelined.dev/audiograph/metric"
)

var rootCmd = &cobra.Command{
	Use:          "audiograph",
	Short:        "Audiograph renders graphs of audio nodes in real time",
	Long:         `Audiograph assembles sources, effects and sinks into a graph and renders it to the output device.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML configuration")
	rootCmd.PersistentFlags().String("device", "", "audio device: portaudio or null")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads configuration and applies persistent flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if d, _ := cmd.Flags().GetString("device"); d != "" {
		cfg.Device = d
	}
	return cfg, cfg.Validate()
}

func logger(cfg config.Config) *logrus.Logger {
	l := log.GetLogger()
	if cfg.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// newEngine creates engine for configured device. Metrics are registered
// in reg if it's not nil.
func newEngine(cfg config.Config, l logrus.FieldLogger, reg prometheus.Registerer) (*audiograph.Engine, error) {
	options := []audiograph.Option{
		audiograph.WithLogger(l),
		audiograph.WithFormat(cfg.SampleRate, cfg.BlockSize, cfg.Channels),
		audiograph.WithMaxDelayTime(cfg.MaxDelayTime),
		audiograph.WithMaxRecording(cfg.MaxRecording),
	}
	switch cfg.Device {
	case config.DevicePortAudio:
		options = append(options,
			audiograph.WithPlayer(&portaudio.Player{}),
			audiograph.WithCapturer(portaudio.Capturer{}),
		)
	default:
		options = append(options,
			audiograph.WithPlayer(&device.Null{}),
			audiograph.WithCapturer(device.Unavailable{}),
		)
	}
	if cfg.AdditiveConnections {
		options = append(options, audiograph.WithAdditiveConnections())
	}
	if reg != nil {
		m, err := metric.New(reg)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		options = append(options, audiograph.WithMetrics(m))
	}
	return audiograph.New(options...)
}
