// ABOUTME: Entry point for the virtmic CLI
// ABOUTME: Parses flags, resolves configuration and runs the virtual microphone
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/virtualmic/virtmic-go/internal/app"
	"github.com/virtualmic/virtmic-go/internal/config"
	"github.com/virtualmic/virtmic-go/internal/logging"
	"github.com/virtualmic/virtmic-go/internal/version"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "virtmic",
		Short: "Create a virtual microphone and pipe an audio file into it",
		Long: `virtmic provisions a virtual microphone on the system audio daemon
(PulseAudio or PipeWire) and continuously feeds it from an audio file.
Supported formats: mp3, flac, wav, ogg/opus.

The created capture device shows up in applications under the chosen
name; all daemon-side modules are released again on exit.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, configPath)
		},
	}

	cmd.Flags().StringP("file", "f", "", "Audio file to play (mp3, flac, wav, ogg/opus)")
	cmd.Flags().BoolP("loop", "l", false, "Loop the audio file")
	cmd.Flags().StringP("name", "n", "VirtualMic", "Virtual microphone name")
	cmd.Flags().Float64P("volume", "v", 1.0, "Volume multiplier (0.0 - 2.0)")
	cmd.Flags().BoolP("monitor", "m", false, "Also play audio through speakers (monitor mode)")
	cmd.Flags().String("loglevel", "info", "Log level (none, error, warn, info, debug)")
	cmd.Flags().String("logfile", "", "Write JSON logs to this file instead of stderr")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(err)
	}

	return cmd
}

func run(cmd *cobra.Command, configPath string) error {
	settings, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	logFile, err := logging.Setup(settings.LogLevel, settings.LogFile)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	return app.Run(app.Config{
		File:    settings.File,
		Loop:    settings.Loop,
		Name:    settings.Name,
		Volume:  float32(settings.Volume),
		Monitor: settings.Monitor,
	})
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
