package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/client"
	"github.com/raphaelgruber/loglens/internal/models"
	"github.com/raphaelgruber/loglens/internal/ranking"
)

var (
	similarFloor       float64
	similarLimit       int
	similarPrimary     string
	similarInteractive bool
)

var similarCmd = &cobra.Command{
	Use:   "similar <record-id>",
	Short: "Show records similar to a record",
	Long: `Show earlier records ranked by similarity to a record.

Only records at or above the similarity floor are listed; the floor defaults
to the similarity_floor preference (80 unless set). The record's primary
match, if it has one, is always listed first.

In interactive mode the floor can be changed with + and - without fetching
again, s stores the current floor as the default, and enter opens a record.

Examples:
  loglens similar r-42
  loglens similar r-42 --floor 65 --limit 50
  loglens similar r-42 --primary r-17:88
  loglens similar r-42 --interactive`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	similarCmd.Flags().Float64Var(&similarFloor, "floor", 0, "minimum similarity percentage (0-100)")
	similarCmd.Flags().IntVarP(&similarLimit, "limit", "n", 0, "maximum number of records to fetch")
	similarCmd.Flags().StringVar(&similarPrimary, "primary", "", "primary match as record-id:percentage")
	similarCmd.Flags().BoolVarP(&similarInteractive, "interactive", "i", false, "browse results interactively")
}

// similarParams overrides the defaults for a similarity listing.
type similarParams struct {
	floor       *float64
	limit       int
	primary     *models.PrimaryMatch
	interactive bool
}

func runSimilar(cmd *cobra.Command, args []string) error {
	var p similarParams
	if cmd.Flags().Changed("floor") {
		if similarFloor < 0 || similarFloor > 100 {
			return fmt.Errorf("--floor must be between 0 and 100")
		}
		p.floor = &similarFloor
	}
	p.limit = similarLimit
	p.interactive = similarInteractive

	if similarPrimary != "" {
		primary, err := parsePrimary(similarPrimary)
		if err != nil {
			return err
		}
		p.primary = primary
	}

	return showSimilarRecords(cmd.Context(), args[0], p)
}

// parsePrimary parses "record-id:percentage".
func parsePrimary(s string) (*models.PrimaryMatch, error) {
	id, pct, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("invalid --primary %q (expected record-id:percentage)", s)
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(pct, "%"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid --primary percentage %q: %w", pct, err)
	}
	return &models.PrimaryMatch{RecordID: id, Percentage: ranking.Normalize(models.NewScore(f))}, nil
}

// showSimilarRecords fetches, ranks and prints the records similar to recordID.
func showSimilarRecords(ctx context.Context, recordID string, p similarParams) error {
	floor := ranking.DefaultFloor
	if p.floor != nil {
		floor = *p.floor
	} else if stored, err := prefStore.SimilarityFloor(ctx); err == nil {
		floor = stored
	} else {
		logger.Warn("failed to read similarity floor preference", "error", err)
	}

	limit := p.limit
	if limit <= 0 {
		limit = cfg.SimilarLimit
	}

	primary := p.primary
	if primary == nil {
		rec, err := apiClient.GetRecord(ctx, recordID)
		if err != nil {
			logger.Warn("failed to load record for primary match", "record_id", recordID, "error", err)
		} else {
			primary = rec.PrimaryMatch
		}
	}

	// Interactive browsing fetches everything so the floor can be lowered
	// without fetching again.
	opts := client.SimilarOptions{MinScore: ranking.FloorFraction(floor), Limit: limit}
	useBrowser := p.interactive && interactive()
	if useBrowser {
		opts.MinScore = 0
	}

	candidates, err := apiClient.FetchSimilar(ctx, recordID, opts)
	if err != nil {
		return fmt.Errorf("fetch similar records: %w", err)
	}

	ranker := ranking.NewRanker(candidates, floor, primary)
	logger.Debug("ranked similar records",
		"record_id", recordID,
		"fetched", len(candidates),
		"shown", len(ranker.Ranked()),
		"floor", floor,
	)

	if useBrowser {
		return RunSimilarBrowser(ctx, recordID, ranker)
	}

	fmt.Printf("Similar to %s\n\n", recordID)
	printRanked(topRanked(ranker.Ranked(), limit), floor, ranker.Total())
	return nil
}

// topRanked keeps the first n of an already ranked list (all for n <= 0).
func topRanked(ranked []ranking.Ranked, n int) []ranking.Ranked {
	if n > 0 && len(ranked) > n {
		return ranked[:n]
	}
	return ranked
}
