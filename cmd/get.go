package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
	"github.com/anivault/anivault/internal/scheduler"
	"github.com/anivault/anivault/internal/types"
)

func newGetCmd() *cobra.Command {
	var server string
	var animeTitle string
	var episodeTitle string

	cmd := &cobra.Command{
		Use:   "get [ANIME_SLUG] [EPISODE] [--server SERVER]",
		Short: "Queue an episode for offline viewing and download it",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			episode, err := strconv.Atoi(args[1])
			if err != nil {
				output.PrintError(fmt.Sprintf("Invalid episode number: %s", args[1]))
				os.Exit(1)
			}
			app, err := newApp(true)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			req := scheduler.Request{
				Ref: types.EpisodeRef{
					AnimeSlug:     args[0],
					EpisodeNumber: episode,
					Server:        server,
				},
				AnimeTitle:   animeTitle,
				EpisodeTitle: episodeTitle,
			}
			if err := app.sched.Enqueue(req); err != nil {
				if errors.Is(err, types.ErrAlreadyTracked) {
					output.PrintWarning(err.Error())
					return
				}
				output.PrintError(err.Error())
				os.Exit(1)
			}
			app.runQueue()
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "hd-1", "Server variant to download from")
	cmd.Flags().StringVar(&animeTitle, "title", "", "Anime display title")
	cmd.Flags().StringVar(&episodeTitle, "episode-title", "", "Episode display title")
	return cmd
}
