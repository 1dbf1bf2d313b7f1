package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/models"
)

var (
	annotateTags         []string
	annotateContext      string
	annotateFeedback     string
	annotateFeedbackFile string
	annotateVisibility   string
	annotateThresholds   []string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <record-id>",
	Short: "Update a record's tags, context, feedback or visibility",
	Long: `Update developer annotations on a record. Each flag updates one field;
fields without a flag are left unchanged. Tags replace the current tags.

Examples:
  loglens annotate r-42 --tags oom,payments
  loglens annotate r-42 --feedback "Connection pool too small, raised to 50"
  loglens annotate r-42 --feedback-file ./postmortem.md
  loglens annotate r-42 --visibility team
  loglens annotate r-42 --thresholds error_rate=0.05,latency_p99=800`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringSliceVarP(&annotateTags, "tags", "t", nil, "tags (replaces existing tags)")
	annotateCmd.Flags().StringVarP(&annotateContext, "context", "c", "", "new context")
	annotateCmd.Flags().StringVarP(&annotateFeedback, "feedback", "f", "", "developer feedback")
	annotateCmd.Flags().StringVar(&annotateFeedbackFile, "feedback-file", "", "read developer feedback from file")
	annotateCmd.Flags().StringVar(&annotateVisibility, "visibility", "", "who can see the record (self, team, public)")
	annotateCmd.Flags().StringSliceVar(&annotateThresholds, "thresholds", nil, "alert thresholds as name=value")
}

// annotation is one field update.
type annotation struct {
	field models.MetadataField
	value any
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	recordID := args[0]
	flags := cmd.Flags()

	var updates []annotation
	if flags.Changed("tags") {
		updates = append(updates, annotation{models.FieldTags, annotateTags})
	}
	if flags.Changed("context") {
		updates = append(updates, annotation{models.FieldContext, annotateContext})
	}
	if flags.Changed("feedback-file") {
		data, err := os.ReadFile(annotateFeedbackFile)
		if err != nil {
			return fmt.Errorf("read feedback file: %w", err)
		}
		annotateFeedback = string(data)
	}
	if flags.Changed("feedback") || flags.Changed("feedback-file") {
		updates = append(updates, annotation{models.FieldDevFeedback, annotateFeedback})
	}
	if flags.Changed("visibility") {
		updates = append(updates, annotation{models.FieldVisibility, annotateVisibility})
	}
	if flags.Changed("thresholds") {
		thresholds, err := parseThresholds(annotateThresholds)
		if err != nil {
			return err
		}
		updates = append(updates, annotation{models.FieldThresholds, thresholds})
	}

	if len(updates) == 0 {
		return fmt.Errorf("nothing to update (use --tags, --context, --feedback, --visibility or --thresholds)")
	}

	return applyAnnotations(cmd.Context(), recordID, updates)
}

// applyAnnotations patches each field, stopping at the first failure.
func applyAnnotations(ctx context.Context, recordID string, updates []annotation) error {
	for _, u := range updates {
		if err := apiClient.PatchMetadata(ctx, recordID, u.field, u.value); err != nil {
			return fmt.Errorf("update %s: %w", u.field, err)
		}
		fmt.Printf("Updated %s on %s\n", u.field, recordID)
	}
	return nil
}

// parseThresholds parses name=value pairs.
func parseThresholds(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid threshold %q (expected name=value)", p)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold value for %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
