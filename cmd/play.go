package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/recorder"
)

var playCmd = &cobra.Command{
	Use:   "play [clip]",
	Short: "Play a recorded clip",
	Long: `Play a clip through the configured audio backend. The argument is a
clip name from the library, a WAV file path, or an http(s) URL.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := resolvePlayTarget(args[0])

		provider, backend, err := newProvider()
		if err != nil {
			return err
		}
		defer backend.Close()

		ctrl := recorder.New(provider, nil, recorder.Options{})
		defer ctrl.Close()

		fmt.Printf("Playing %s\n", target)
		if err := ctrl.StartPlaying(target); err != nil {
			return fmt.Errorf("playback failed: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		// Wait for end of track or interruption.
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sigChan:
				return ctrl.StopPlaying()
			case <-ticker.C:
				if !ctrl.IsPlaying() {
					return nil
				}
			}
		}
	},
}

// resolvePlayTarget maps a bare clip name onto the library, passing file
// paths and URLs through untouched.
func resolvePlayTarget(arg string) string {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return arg
	}
	if strings.ContainsAny(arg, "/\\") || strings.HasSuffix(arg, ".wav") {
		return arg
	}
	return filepath.Join(cfg.Output.Directory, arg+".wav")
}
