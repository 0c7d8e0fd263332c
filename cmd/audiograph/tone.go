package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/audiograph"
	"pipelined.dev/audiograph/kind"
	"pipelined.dev/audiograph/param"
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Play a tone",
	Long:  `Plays an oscillator through an amplifier for the given duration and optionally records it to a WAV file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		frequency, _ := flags.GetFloat64("frequency")
		waveform, _ := flags.GetString("type")
		gain, _ := flags.GetFloat64("gain")
		duration, _ := flags.GetDuration("duration")
		out, _ := flags.GetString("out")

		engine, err := newEngine(cfg, logger(cfg), nil)
		if err != nil {
			return err
		}
		defer engine.Close()

		engine.Create("osc", kind.Oscillator, param.Bag{"frequency": frequency, "type": waveform})
		engine.Create("amp", kind.Amplifier, param.Bag{"gain": gain})
		engine.Connect("osc", "amp")
		engine.Connect("amp", audiograph.OutputID)
		if out != "" {
			engine.Create("rec", kind.FileOutput, param.Bag{"recording": true})
			engine.Connect("amp", "rec")
		}

		if !<-engine.Toggle() {
			return fmt.Errorf("output device did not start")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), duration)
		defer cancel()
		<-ctx.Done()
		<-engine.Toggle()

		if out == "" {
			return nil
		}
		wav, err := engine.Recording("rec")
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, wav, 0o644); err != nil {
			return fmt.Errorf("write recording: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toneCmd)
	toneCmd.Flags().Float64P("frequency", "f", 440, "oscillator frequency in Hz")
	toneCmd.Flags().StringP("type", "t", "sine", "waveform: sine, square, sawtooth or triangle")
	toneCmd.Flags().Float64P("gain", "g", 0.5, "output gain")
	toneCmd.Flags().DurationP("duration", "d", time.Second, "tone duration")
	toneCmd.Flags().StringP("out", "o", "", "WAV file to record the tone")
}
