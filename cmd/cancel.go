package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [KEY]",
		Short: "Pause a queued download so the next run skips it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			app, err := newApp(false)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			if err := app.sched.Cancel(args[0]); err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Cancelled %s", args[0]))
		},
	}
}
