package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/tracker"
)

var (
	uploadContext    string
	uploadVisibility string
	uploadDetach     bool
	uploadNoSimilar  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a log file for analysis",
	Long: `Upload a log file, follow the processing job until it finishes and show
similar records from earlier uploads.

Visibility defaults to the default_visibility preference (self unless set).
On a terminal a progress display is shown; press q to leave the job running
in the background.

Examples:
  loglens upload ./service.log
  loglens upload ./service.log --context "after the 14:00 deploy" --visibility team
  loglens upload ./service.log --detach`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadContext, "context", "c", "", "free-text context for the analysis")
	uploadCmd.Flags().StringVar(&uploadVisibility, "visibility", "", "who can see the record (self, team, public)")
	uploadCmd.Flags().BoolVarP(&uploadDetach, "detach", "d", false, "print the job id and exit without waiting")
	uploadCmd.Flags().BoolVar(&uploadNoSimilar, "no-similar", false, "do not fetch similar records when done")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	visibility, err := uploadVisibilityFor(ctx, uploadVisibility)
	if err != nil {
		return err
	}

	candidate, err := models.NewUploadCandidate(args[0], uploadContext, visibility)
	if err != nil {
		return err
	}

	if uploadDetach {
		jobID, err := apiClient.Upload(ctx, candidate)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Printf("Submitted job %s\n", jobID)
		fmt.Printf("Use 'loglens watch %s' to follow it.\n", jobID)
		return nil
	}

	return track(ctx, func(tr *tracker.Tracker) error {
		return tr.SelectFile(candidate)
	}, true)
}

// uploadVisibilityFor returns the flag value if set, else the stored default.
func uploadVisibilityFor(ctx context.Context, flag string) (models.Visibility, error) {
	if flag != "" {
		return models.ParseVisibility(flag)
	}
	return prefStore.DefaultVisibility(ctx)
}

// track runs a tracker prepared by setup to a final state and prints the
// outcome. With submit set the selected file is submitted first.
func track(ctx context.Context, setup func(*tracker.Tracker) error, submit bool) error {
	useTUI := interactive()

	var callbacks tracker.Callbacks
	if !useTUI {
		callbacks = plainCallbacks()
	}
	tr := tracker.New(apiClient, trackerConfig(callbacks))
	defer tr.Close()

	if err := setup(tr); err != nil {
		return err
	}

	if useTUI {
		snap, err := RunJobProgress(tr, submit)
		if err != nil {
			return err
		}
		if snap.State == tracker.Polling {
			return nil
		}
		return finishTracking(ctx, snap, !uploadNoSimilar)
	}

	if submit {
		if _, err := tr.Submit(ctx); err != nil {
			return err
		}
	}
	return finishTracking(ctx, watchPlain(ctx, tr), !uploadNoSimilar)
}
