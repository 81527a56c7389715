package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/anivault/anivault/internal/output"
)

func newDeleteCmd() *cobra.Command {
	var all bool
	var completed bool

	cmd := &cobra.Command{
		Use:   "delete [KEY]",
		Short: "Delete a download, its video file, and its subtitles",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 && !all && !completed {
				output.PrintError("Provide a download key, --all, or --completed")
				os.Exit(1)
			}
			app, err := newApp(false)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			defer app.Close()
			switch {
			case all:
				err = app.sched.DeleteAll()
			case completed:
				err = app.sched.DeleteCompleted()
			default:
				err = app.sched.Delete(args[0])
			}
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Deleted")
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every download and its files")
	cmd.Flags().BoolVar(&completed, "completed", false, "Delete completed downloads and their files")
	return cmd
}
