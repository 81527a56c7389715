package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
	"github.com/anivault/anivault/internal/types"
)

func newRetryCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [KEY]",
		Short: "Re-queue a failed or paused download from scratch",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 && !all {
				output.PrintError("Provide a download key or --all")
				os.Exit(1)
			}
			app, err := newApp(true)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			queued := 0
			if all {
				for _, rec := range app.sched.Records() {
					if rec.Status != types.StatusFailed && rec.Status != types.StatusPaused {
						continue
					}
					if err := app.sched.Retry(rec.Key()); err != nil {
						output.PrintWarning(err.Error())
						continue
					}
					queued++
				}
			} else {
				if err := app.sched.Retry(args[0]); err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				queued++
			}
			if queued == 0 {
				output.PrintInfo("Nothing to retry")
				return
			}
			app.runQueue()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every failed or paused download")
	return cmd
}
