package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anivault/anivault/internal/output"
	"github.com/anivault/anivault/internal/scheduler"
	"github.com/anivault/anivault/internal/types"
)

type BatchEntry struct {
	AnimeSlug    string `yaml:"anime"`
	Episode      int    `yaml:"episode"`
	Server       string `yaml:"server,omitempty"`
	AnimeTitle   string `yaml:"title,omitempty"`
	EpisodeTitle string `yaml:"episode_title,omitempty"`
}

type BatchFile struct {
	Episodes []BatchEntry `yaml:"episodes"`
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Queue multiple episodes from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading YAML file: %v", err))
				os.Exit(1)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				output.PrintError(fmt.Sprintf("Error parsing YAML file: %v", err))
				os.Exit(1)
			}
			if len(batchFile.Episodes) == 0 {
				output.PrintError("No episodes found in the batch file")
				os.Exit(1)
			}
			app, err := newApp(true)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			queued := 0
			for _, entry := range batchFile.Episodes {
				if entry.AnimeSlug == "" || entry.Episode == 0 {
					output.PrintWarning("Skipping entry without anime slug or episode number")
					continue
				}
				server := entry.Server
				if server == "" {
					server = "hd-1"
				}
				req := scheduler.Request{
					Ref: types.EpisodeRef{
						AnimeSlug:     entry.AnimeSlug,
						EpisodeNumber: entry.Episode,
						Server:        server,
					},
					AnimeTitle:   entry.AnimeTitle,
					EpisodeTitle: entry.EpisodeTitle,
				}
				if err := app.sched.Enqueue(req); err != nil {
					if errors.Is(err, types.ErrAlreadyTracked) {
						output.PrintWarning(err.Error())
						continue
					}
					output.PrintError(err.Error())
					os.Exit(1)
				}
				queued++
			}
			if queued == 0 {
				output.PrintInfo("Nothing new to download")
				return
			}
			app.runQueue()
		},
	}
}
