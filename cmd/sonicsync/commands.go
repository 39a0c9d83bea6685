package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/llehouerou/sonicsync/internal/errmsg"
	"github.com/llehouerou/sonicsync/internal/reconcile"
	"github.com/llehouerou/sonicsync/internal/source"
	"github.com/llehouerou/sonicsync/internal/store"
)

// runWithApp wires the services around fn and drains the queues afterwards.
func runWithApp(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return errmsg.Wrap(errmsg.OpInitialize, err)
		}
		defer a.close()
		return fn(cmd, a, args)
	}
}

func reconcileCmd() *cobra.Command {
	var rebuild bool
	cmd := &cobra.Command{
		Use:   "reconcile <uri>...",
		Short: "Build library playlists from Spotify playlists, albums, artists or tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.requireSource(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if rebuild {
				a.cache.ForceRebuild(ctx)
			}

			for _, uri := range args {
				obj, err := a.source.GetObject(ctx, uri)
				if err != nil {
					if errors.Is(err, source.ErrInvalidURI) {
						return err
					}
					a.logger.Error("fetch source object", zap.String("uri", uri), zap.Error(err))
					fmt.Fprintln(cmd.ErrOrStderr(), errmsg.FormatWith(errmsg.OpSourceFetch, uri, err))
					continue
				}

				tracks := obj.Tracks
				if obj.Track != nil {
					tracks = []source.Track{*obj.Track}
				}
				pl := store.Playlist{SourceURI: obj.URI, Name: obj.Name, Type: string(obj.Kind)}

				res, err := a.engine.Reconcile(ctx, pl, tracks)
				if errors.Is(err, reconcile.ErrLibraryOffline) {
					return errmsg.Wrap(errmsg.OpReconcile, err)
				}
				if err != nil {
					a.logger.Error("reconcile", zap.String("uri", uri), zap.Error(err))
					fmt.Fprintln(cmd.ErrOrStderr(), errmsg.FormatWith(errmsg.OpReconcile, obj.Name, err))
					continue
				}
				printResult(cmd.OutOrStdout(), res)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&rebuild, "rebuild-cache", false, "rebuild the library cache before matching")
	return cmd
}

func printResult(w io.Writer, res *reconcile.Result) {
	switch {
	case res.Skipped:
		fmt.Fprintf(w, "%s: skipped (ignored)\n", res.PlaylistName)
		return
	case res.Deleted:
		fmt.Fprintf(w, "%s: no songs matched, playlist deleted\n", res.PlaylistName)
	default:
		fmt.Fprintf(w, "%s: %d songs\n", res.PlaylistName, len(res.SongIDs))
	}

	var parts []string
	for _, o := range []reconcile.Outcome{
		reconcile.MatchedByFingerprint,
		reconcile.MatchedByFuzzy,
		reconcile.AlreadyInPlaylist,
		reconcile.Ignored,
		reconcile.Excluded,
		reconcile.Unmatched,
	} {
		if n := res.Count(o); n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", o, n))
		}
	}
	downloading := 0
	for _, t := range res.Tracks {
		if t.Downloading {
			downloading++
		}
	}
	if downloading > 0 {
		parts = append(parts, fmt.Sprintf("downloading %d", downloading))
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, ", "))
	}
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the library cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "rebuild",
			Short: "Rebuild the library cache from a full library scan",
			Args:  cobra.NoArgs,
			RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
				snap := a.cache.ForceRebuild(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "%s songs scanned, %s with a recording id\n",
					humanize.Comma(int64(snap.Count)), humanize.Comma(int64(len(snap.Songs))))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the cached snapshot size and whether it is stale",
			Args:  cobra.NoArgs,
			RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
				snap := a.cache.Current()
				state := "fresh"
				if a.cache.IsStale(cmd.Context()) {
					state = "stale"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s songs cached (%s)\n", humanize.Comma(int64(snap.Count)), state)
				return nil
			}),
		},
	)
	return cmd
}

func missingCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "missing",
		Short: "List tracks with no library match",
		Args:  cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
			songs, err := a.store.MissingSongs(cmd.Context())
			if err != nil {
				return errmsg.Wrap(errmsg.OpMissingList, err)
			}
			w := cmd.OutOrStdout()
			for i, s := range songs {
				if limit > 0 && i >= limit {
					fmt.Fprintf(w, "... %d more\n", len(songs)-limit)
					break
				}
				fmt.Fprintf(w, "%s - %s", s.Artists, s.Title)
				if s.Album != "" {
					fmt.Fprintf(w, " [%s]", s.Album)
				}
				fmt.Fprintf(w, " in %q, %s (song %s)\n", s.PlaylistName, humanize.Time(s.UpdatedAt), s.SongUUID)
			}
			return nil
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most n entries")
	return cmd
}

func pruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Forget playlists that were deleted from the library",
		Args:  cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
			pruned, err := a.engine.PruneDeletedPlaylists(cmd.Context())
			if err != nil {
				return errmsg.Wrap(errmsg.OpPrune, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d playlists pruned\n", len(pruned))
			return nil
		}),
	}
}

func ignoreCmd() *cobra.Command {
	var unset bool
	kinds := []string{
		string(store.IgnoreSong),
		string(store.IgnoreAlbum),
		string(store.IgnoreArtist),
		string(store.IgnoreSongPlaylist),
		string(store.IgnorePlaylist),
	}
	cmd := &cobra.Command{
		Use:       "ignore <kind> <uuid>",
		Short:     "Mark a song, album, artist, playlist entry or playlist as ignored",
		Long:      "Kinds: " + strings.Join(kinds, ", ") + ". Use the uuids shown by 'missing' and 'playlists'.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: kinds,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.store.SetIgnored(cmd.Context(), store.IgnoreKind(args[0]), args[1], !unset); err != nil {
				return errmsg.Wrap(errmsg.OpIgnore, err)
			}
			verb := "ignored"
			if unset {
				verb = "restored"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", args[0], args[1], verb)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&unset, "unset", false, "clear the ignore flag")
	return cmd
}

func playlistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "playlists",
		Short: "List known source playlists and their library counterparts",
		Args:  cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
			ctx := cmd.Context()
			pls, err := a.store.ListPlaylists(ctx)
			if err != nil {
				return errmsg.Wrap(errmsg.OpPlaylistList, err)
			}
			w := cmd.OutOrStdout()
			for _, pl := range pls {
				target := "-"
				if pl.SubsonicPlaylistID != "" {
					target = pl.SubsonicPlaylistName
					if name, ok := a.engine.PlaylistName(ctx, pl.SubsonicPlaylistID); ok {
						target = name
					} else {
						target += " (gone)"
					}
				}
				flag := ""
				if pl.Ignored {
					flag = " [ignored]"
				}
				fmt.Fprintf(w, "%s  %s (%s) -> %s%s\n", pl.UUID, pl.Name, pl.Type, target, flag)
			}
			return nil
		}),
	}
}

func downloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download <track-uri>",
		Short: "Queue a Spotify track for download through slskd",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.requireSource(); err != nil {
				return err
			}
			track, err := a.engine.DownloadSong(cmd.Context(), args[0])
			if err != nil {
				return errmsg.Wrap(errmsg.OpDownloadQueue, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s - %s\n", track.ArtistNames(), track.Name)
			return nil
		}),
	}
}

func downloadsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "downloads",
		Short: "Show slskd transfers",
		Args:  cobra.NoArgs,
		RunE: runWithApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if a.slskd == nil {
				return errors.New("slskd is not configured (SLSKD_ENABLED, SLSKD_URL, SLSKD_API_KEY)")
			}
			downloads, err := a.slskd.GetDownloads(cmd.Context())
			if err != nil {
				return errmsg.Wrap(errmsg.OpDownloadRefresh, err)
			}
			w := cmd.OutOrStdout()
			for _, d := range downloads {
				pct := 0.0
				if d.Size > 0 {
					pct = float64(d.BytesTransferred) / float64(d.Size) * 100
				}
				fmt.Fprintf(w, "%-28s %5.1f%% %9s  %s (%s)\n",
					d.State, pct, humanize.Bytes(uint64(max(d.Size, 0))), d.Filename, d.Username)
			}
			return nil
		}),
	}
}
