package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/internal/clipstore"
	"github.com/chuikoffru/voicerec/recorder"
)

var recordCmd = &cobra.Command{
	Use:   "record [clip-name]",
	Short: "Record a voice clip from the microphone",
	Long: `Record microphone input into a WAV clip and save it to the clip library.
Recording stops on Ctrl+C, or automatically when the configured time
limit is reached.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clipName := ""
		if len(args) == 1 {
			clipName = args[0]
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			cfg.Recording.TimeLimitSeconds = limit
		}
		if out, _ := cmd.Flags().GetString("output"); out != "" {
			cfg.Output.Directory = out
		}

		provider, backend, err := newProvider()
		if err != nil {
			return err
		}
		defer backend.Close()

		store := clipstore.New(cfg.Output.Directory)
		saved := make(chan string, 1)

		ctrl := recorder.New(provider, func(data []byte, url string) {
			path, err := store.Save(clipName, data, clipstore.Metadata{
				RecordedAt: time.Now(),
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
			})
			if err != nil {
				slog.Error("Failed to save clip", "error", err)
				saved <- ""
				return
			}
			saved <- path
		}, controllerOptions())
		defer ctrl.Close()

		if err := ctrl.StartRecording(context.Background()); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		if cfg.Recording.TimeLimitSeconds > 0 {
			slog.Info("Recording... Press Ctrl+C to stop", "time_limit_seconds", cfg.Recording.TimeLimitSeconds)
		} else {
			slog.Info("Recording... Press Ctrl+C to stop")
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		// Either the user interrupts or the time limit stops the capture.
		var path string
		select {
		case <-sigChan:
			slog.Info("Stopping recording...")
			if err := ctrl.StopRecording(); err != nil {
				return fmt.Errorf("failed to stop recording: %w", err)
			}
			path = <-saved
		case path = <-saved:
			slog.Info("Time limit reached")
		}

		if path == "" {
			return fmt.Errorf("recording was not saved")
		}
		fmt.Printf("Saved %s (%ds)\n", path, ctrl.Duration())
		return nil
	},
}

func init() {
	recordCmd.Flags().IntP("limit", "l", 0, "time limit in seconds (overrides config)")
	recordCmd.Flags().StringP("output", "o", "", "output directory (overrides config)")
}
