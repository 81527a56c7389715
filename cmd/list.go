package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show tracked downloads and their status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			app, err := newApp(false)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			output.RenderRecords(app.sched.Records())
		},
	}
}
