package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/models"
)

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the current status of a job",
	Long: `Check a processing job once and print its status.

Examples:
  loglens job 3f9c2a71`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	job, err := apiClient.PollJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Status: %s\n", job.Status)
	fmt.Printf("  Progress: %.0f%%\n", job.ProgressPercent())
	if !job.CreatedAt.IsZero() {
		fmt.Printf("  Started: %s\n", job.CreatedAt.Format(time.RFC3339))
	}
	if !job.FinishedAt.IsZero() {
		fmt.Printf("  Finished: %s\n", job.FinishedAt.Format(time.RFC3339))
		if !job.CreatedAt.IsZero() {
			fmt.Printf("  Duration: %s\n", job.FinishedAt.Sub(job.CreatedAt.Time).Round(time.Second))
		}
	}
	if job.RecordID != "" {
		fmt.Printf("  Record: %s\n", job.RecordID)
	}
	if job.Error != "" {
		fmt.Printf("  Error: %s\n", job.Error)
	}
	switch {
	case job.Status == models.JobStatusCompleted && job.RecordID == "":
		fmt.Println("  Warning: completed without a record id")
	case job.Status == models.JobStatusFailed && job.Error == "":
		fmt.Println("  Error: job failed with unknown error")
	}

	return nil
}
