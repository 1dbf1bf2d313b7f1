package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/ranking"
	"github.com/raphaelgruber/loglens/internal/tracker"
)

// plainCallbacks reports tracker events as log lines on stderr.
func plainCallbacks() tracker.Callbacks {
	return tracker.Callbacks{
		OnTransientError: func(err error) {
			fmt.Fprintf(os.Stderr, "Warning: status check failed, retrying: %v\n", err)
		},
	}
}

// watchPlain prints a line per status change until the job reaches a
// terminal state or ctx is done, in which case tracking is cancelled.
func watchPlain(ctx context.Context, tr *tracker.Tracker) tracker.Snapshot {
	updates, unsubscribe := tr.Subscribe()
	defer unsubscribe()

	var last string
	for {
		select {
		case <-ctx.Done():
			tr.Cancel()
			return tr.Snapshot()
		case snap, ok := <-updates:
			if !ok {
				return tr.Snapshot()
			}
			if line := plainLine(snap); line != "" && line != last {
				fmt.Println(line)
				last = line
			}
			if snap.Terminal() || snap.State == tracker.Cancelled {
				return snap
			}
		}
	}
}

func plainLine(snap tracker.Snapshot) string {
	switch snap.State {
	case tracker.Submitting:
		if snap.Candidate != nil {
			return "uploading " + snap.Candidate.Name
		}
		return "uploading"
	case tracker.Polling, tracker.Completed, tracker.Failed:
		return jobSummary(snap.Job)
	case tracker.Cancelled:
		return "stopped tracking"
	}
	return ""
}

// finishTracking turns the final snapshot into output and an error.
// On completion it shows the similar records of the new record.
func finishTracking(ctx context.Context, snap tracker.Snapshot, showSimilar bool) error {
	switch snap.State {
	case tracker.Completed:
		fmt.Printf("Record: %s\n", snap.Job.RecordID)
		if !showSimilar {
			return nil
		}
		fmt.Println()
		return showSimilarRecords(ctx, snap.Job.RecordID, similarParams{})

	case tracker.Failed:
		if snap.LastError != nil {
			return fmt.Errorf("job failed: %w", snap.LastError)
		}
		return errors.New("job failed")

	case tracker.Cancelled:
		return nil

	case tracker.Polling:
		// Detached from the terminal UI.
		if snap.Job != nil {
			fmt.Printf("Job %s continues in background. Use 'loglens watch %s' to follow it.\n", snap.Job.ID, snap.Job.ID)
		}
		return nil
	}

	if snap.LastError != nil {
		return snap.LastError
	}
	return nil
}

// printRanked prints a ranked similarity list.
func printRanked(ranked []ranking.Ranked, floor float64, total int) {
	if len(ranked) == 0 {
		fmt.Printf("No similar records at or above %.0f%% (%d fetched)\n", floor, total)
		return
	}

	fmt.Printf("%-3s %-38s %8s  %s\n", "#", "RECORD", "MATCH", "CONTEXT")
	fmt.Println(strings.Repeat("-", 72))
	for i, r := range ranked {
		marker := ""
		if r.IsPrimary {
			marker = " (primary)"
		}
		fmt.Printf("%-3d %-38s %8s  %s%s\n", i+1, r.RecordID, r.String(), truncate(r.Candidate.Context, 40), marker)
	}
	fmt.Printf("\n%d of %d records at or above %.0f%%\n", len(ranked), total, floor)
}

// printRecord prints one record.
func printRecord(rec *models.Record) {
	fmt.Printf("Record: %s\n", rec.ID)
	if rec.Filename != "" {
		fmt.Printf("  File: %s\n", rec.Filename)
	}
	fmt.Printf("  Visibility: %s\n", rec.Visibility)
	if !rec.CreatedAt.IsZero() {
		fmt.Printf("  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	}
	if len(rec.Tags) > 0 {
		fmt.Printf("  Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	if rec.Context != "" {
		fmt.Printf("  Context: %s\n", rec.Context)
	}
	if rec.PrimaryMatch != nil {
		fmt.Printf("  Primary match: %s (%.1f%%)\n", rec.PrimaryMatch.RecordID, rec.PrimaryMatch.Percentage)
	}
	if rec.Summary != "" {
		fmt.Printf("\nSummary:\n  %s\n", rec.Summary)
	}
	if rec.DevFeedback != "" {
		fmt.Printf("\nDeveloper feedback:\n  %s\n", rec.DevFeedback)
	}
}

// printProfile prints the signed-in user's profile.
func printProfile(p models.Profile, conversations int) {
	fmt.Printf("User: %s\n", p.UserID)
	if p.TeamID != "" {
		fmt.Printf("  Team: %s\n", p.TeamID)
	}
	if p.DisplayName != "" {
		fmt.Printf("  Name: %s\n", p.DisplayName)
	}
	if p.Email != "" {
		fmt.Printf("  Email: %s\n", p.Email)
	}
	if !p.CreatedAt.IsZero() {
		fmt.Printf("  Member since: %s\n", p.CreatedAt.Format("2006-01-02"))
	}
	fmt.Printf("  Conversations: %d\n", conversations)
}

// printClientStats displays request timings collected during this run.
func printClientStats(snap metrics.Snapshot) {
	if len(snap.Operations) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\nRequest Statistics (%.1fs)\n", snap.UptimeSeconds)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════\n")
	for _, op := range snap.Operations {
		fmt.Fprintf(os.Stderr, "%s:\n", op.Op)
		printOpStats(op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op metrics.OperationSnapshot) {
	fmt.Fprintf(os.Stderr, "  Calls: %d, Errors: %d, Total: %dms\n", op.Count, op.Errors, op.TotalTimeMs)
	fmt.Fprintf(os.Stderr, "  Time: avg %.1fms, p50 %dms, p95 %dms, min %dms, max %dms\n",
		op.AvgTimeMs, op.P50TimeMs, op.P95TimeMs, op.MinTimeMs, op.MaxTimeMs)
	if op.LastError != "" {
		fmt.Fprintf(os.Stderr, "  Last error: %s\n", truncate(op.LastError, 80))
	}
}

// truncate shortens a single-line string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
