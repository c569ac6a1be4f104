package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundvault/backend/internal/catalog"
)

var (
	trackTitle      string
	trackChunks     int
	trackStreamable bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Manage the track catalog (direct database access)",
}

var trackAddCmd = &cobra.Command{
	Use:   "add <track-id>",
	Short: "Register a track in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		cat := catalog.NewGormCatalog(db)
		if err := cat.Migrate(); err != nil {
			return err
		}

		track := catalog.Track{
			ID:         args[0],
			Title:      trackTitle,
			ChunkCount: trackChunks,
			Streamable: trackStreamable,
		}
		if err := db.Save(&track).Error; err != nil {
			return fmt.Errorf("failed to save track: %w", err)
		}
		fmt.Printf("track %s registered (%d chunks, streamable=%v)\n", track.ID, track.ChunkCount, track.Streamable)
		return nil
	},
}

func init() {
	trackAddCmd.Flags().StringVar(&trackTitle, "title", "", "Track title")
	trackAddCmd.Flags().IntVar(&trackChunks, "chunks", 0, "Number of chunks (0 = unknown)")
	trackAddCmd.Flags().BoolVar(&trackStreamable, "streamable", true, "Whether the track may be streamed")

	trackCmd.AddCommand(trackAddCmd)
}
