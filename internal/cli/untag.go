package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/models"
)

var untagCmd = &cobra.Command{
	Use:   "untag <record-id> <tag>...",
	Short: "Remove tags from a record",
	Long: `Remove one or more tags from a record.

Examples:
  loglens untag r-42 oom
  loglens untag r-42 payments flaky`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordID := args[0]
		for _, raw := range args[1:] {
			tag := models.NormalizeTag(raw)
			if tag == "" {
				fmt.Printf("Warning: skipping empty tag %q\n", raw)
				continue
			}
			if err := apiClient.DeleteTag(cmd.Context(), recordID, tag); err != nil {
				return fmt.Errorf("remove tag %s: %w", tag, err)
			}
			fmt.Printf("Removed tag %s from %s\n", tag, recordID)
		}
		return nil
	},
}
