package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a submitted job until it finishes",
	Long: `Follow a job submitted earlier (for example with 'loglens upload --detach')
and show similar records once it completes.

Examples:
  loglens watch 3f9c2a71`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		jobID := args[0]
		return track(ctx, func(tr *tracker.Tracker) error {
			return tr.Track(jobID)
		}, false)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&uploadNoSimilar, "no-similar", false, "do not fetch similar records when done")
}
