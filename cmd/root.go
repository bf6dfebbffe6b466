package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/internal/config"
	"github.com/chuikoffru/voicerec/internal/media"
	"github.com/chuikoffru/voicerec/recorder"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "voicerec",
	Short: "Voice recorder with live level monitoring",
	Long: `VoiceRec records microphone input into WAV clips, plays them back and
shows live frequency data while recording.

Recording honors an optional time limit and clips can be saved to a
local library. The serve command exposes the same controls over HTTP
for use from a browser on the same network.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// A missing default config file is fine; a named one must load.
		path := cfgFile
		if path == "" {
			candidate := os.ExpandEnv("$HOME/.config/voicerec.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}

		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicerec.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(clipsCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}

// newProvider builds the audio provider from the loaded configuration.
func newProvider() (*media.Provider, media.Backend, error) {
	backend, err := media.NewBackend(cfg.Audio.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	provider := media.NewProvider(backend, media.StreamConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Device:     cfg.Audio.Device,
	})
	return provider, backend, nil
}

// controllerOptions maps the recording configuration onto controller options.
func controllerOptions() recorder.Options {
	return recorder.Options{
		TimeLimit:       cfg.Recording.TimeLimitSeconds,
		TimeSlice:       time.Duration(cfg.Recording.TimeSliceMs) * time.Millisecond,
		ByteMonitor:     cfg.Recording.ByteMonitor,
		MonitorInterval: time.Duration(cfg.Recording.MonitorIntervalMs) * time.Millisecond,
	}
}
