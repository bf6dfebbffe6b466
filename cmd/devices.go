package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/internal/media"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Show audio backends and capture devices",
	Long: `Show the available audio backends, the capture devices the configured
backend can open, and the currently configured capture format. A device
name (or a unique part of it) can be set as audio.device to record from
it instead of the system default.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Audio backends (%s)\n", runtime.GOOS)
		fmt.Printf("═══════════════════════════════════════\n\n")

		for _, backend := range media.GetAvailableBackends() {
			marker := " "
			if string(backend) == cfg.Audio.Backend {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, backend)
		}

		backend, err := media.NewBackend(cfg.Audio.Backend)
		if err != nil {
			return fmt.Errorf("failed to initialize audio backend: %w", err)
		}
		defer backend.Close()

		names, err := backend.CaptureDevices()
		if err != nil {
			return fmt.Errorf("failed to list capture devices: %w", err)
		}
		fmt.Printf("\nCapture devices (%s):\n", backend.Type())
		for _, name := range names {
			marker := " "
			if cfg.Audio.Device != "" && name == cfg.Audio.Device {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, name)
		}

		fmt.Printf("\nConfigured capture format:\n")
		fmt.Printf("  backend:     %s\n", cfg.Audio.Backend)
		fmt.Printf("  sample rate: %d Hz\n", cfg.Audio.SampleRate)
		fmt.Printf("  channels:    %d\n", cfg.Audio.Channels)
		if cfg.Audio.Device != "" {
			fmt.Printf("  device:      %s\n", cfg.Audio.Device)
		} else {
			fmt.Printf("  device:      system default\n")
		}
		return nil
	},
}
