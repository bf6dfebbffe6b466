package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/internal/clipstore"
	"github.com/chuikoffru/voicerec/internal/server"
	"github.com/chuikoffru/voicerec/recorder"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the VoiceRec web server to control recording from a browser.
This allows recording and playback from a smartphone or any device on
the same network. The server prints the local network URL on startup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		if port == "" {
			port = cfg.Server.Port
		}

		provider, backend, err := newProvider()
		if err != nil {
			return err
		}
		defer backend.Close()

		store := clipstore.New(cfg.Output.Directory)

		// The browser monitor needs frequency data in the snapshot.
		opts := controllerOptions()
		opts.ByteMonitor = true

		// Every completed recording is persisted to the clip library with a
		// timestamp-derived name; the browser can re-save under a chosen name.
		ctrl := recorder.New(provider, func(data []byte, url string) {
			path, err := store.Save("", data, clipstore.Metadata{
				RecordedAt: time.Now(),
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
			})
			if err != nil {
				slog.Error("Failed to save clip", "url", url, "error", err)
				return
			}
			slog.Info("Clip recorded", "path", path, "bytes", len(data))
		}, opts)
		defer ctrl.Close()

		srv := server.New(ctrl, store, port, time.Duration(cfg.Recording.MonitorIntervalMs)*time.Millisecond)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (overrides config)")
}
