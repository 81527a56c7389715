package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove orphaned scratch directories",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app, err := newApp(false)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			if err := app.sched.CleanScratch(); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Scratch directories cleaned up")
		},
	}
}
