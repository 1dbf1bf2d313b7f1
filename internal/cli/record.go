package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/client"
	"github.com/raphaelgruber/loglens/internal/models"
)

var (
	recordsVisibility string
	recordsTag        string
)

var recordCmd = &cobra.Command{
	Use:   "record <record-id>",
	Short: "Show a record",
	Long: `Show an analyzed record with its metadata, summary and developer feedback.

Examples:
  loglens record r-42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := apiClient.GetRecord(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		printRecord(rec)
		return nil
	},
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List records visible to you",
	Long: `List analyzed records with optional filtering.

Examples:
  loglens records
  loglens records --visibility team
  loglens records --tag oom`,
	Args: cobra.NoArgs,
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().StringVar(&recordsVisibility, "visibility", "", "filter by visibility (self, team, public, all)")
	recordsCmd.Flags().StringVarP(&recordsTag, "tag", "t", "", "filter by tag")
}

func runRecords(cmd *cobra.Command, args []string) error {
	visibility := recordsVisibility
	if visibility != "" && visibility != "all" {
		v, err := models.ParseVisibility(visibility)
		if err != nil {
			return err
		}
		visibility = string(v)
	}

	records, err := apiClient.ListRecords(cmd.Context(), client.ListRecordsOptions{
		Visibility: visibility,
		Tag:        recordsTag,
	})
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("No records found")
		return nil
	}

	fmt.Printf("%-36s %-8s %-20s %s\n", "ID", "VISIBLE", "CREATED", "TAGS")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range records {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-36s %-8s %-20s %s\n", r.ID, r.Visibility, created, strings.Join(r.Tags, ","))
	}
	return nil
}
