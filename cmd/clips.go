package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chuikoffru/voicerec/internal/clipstore"
)

var clipsCmd = &cobra.Command{
	Use:   "clips",
	Short: "List saved clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := clipstore.New(cfg.Output.Directory)
		clips, err := store.List()
		if err != nil {
			return fmt.Errorf("failed to list clips: %w", err)
		}

		if len(clips) == 0 {
			fmt.Printf("No clips in %s\n", cfg.Output.Directory)
			return nil
		}

		fmt.Printf("Clips in %s (%d):\n\n", cfg.Output.Directory, len(clips))
		for _, clip := range clips {
			line := fmt.Sprintf("  %-30s %10s  %s", clip.Name, clip.SizeHuman, clip.ModTimeHuman)
			if clip.Metadata != nil && clip.Metadata.DurationSeconds > 0 {
				line += fmt.Sprintf("  %ds", clip.Metadata.DurationSeconds)
			}
			fmt.Println(line)
		}
		return nil
	},
}
