// Command sonicsync mirrors Spotify playlists into a Subsonic library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sonicsync",
	Short: "Mirror Spotify playlists into a Subsonic library",
	Long: `sonicsync matches Spotify tracks against a Subsonic-compatible library
by MusicBrainz recording id, falling back to fuzzy text matching, and writes
the result as library playlists. Unmatched tracks can be handed to slskd.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		reconcileCmd(),
		cacheCmd(),
		missingCmd(),
		pruneCmd(),
		ignoreCmd(),
		downloadCmd(),
		downloadsCmd(),
		playlistsCmd(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
