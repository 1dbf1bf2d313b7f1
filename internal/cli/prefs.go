package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/prefs"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or change preferences",
	Long: `Show or change stored preferences.

Preferences:
  default_visibility  visibility for new uploads (self, team, public; default self)
  similarity_floor    minimum similarity percentage shown (0-100; default 80)

Examples:
  loglens prefs
  loglens prefs get default_visibility
  loglens prefs set default_visibility team
  loglens prefs clear similarity_floor`,
	Args: cobra.NoArgs,
	RunE: runPrefsList,
}

var prefsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a preference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := prefStore.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store a preference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefStore.Set(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		v, err := prefStore.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s = %s\n", args[0], v)
		return nil
	},
}

var prefsClearCmd = &cobra.Command{
	Use:   "clear <name>",
	Short: "Reset a preference to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := prefStore.Clear(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", args[0])
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsClearCmd)
}

func runPrefsList(cmd *cobra.Command, args []string) error {
	fmt.Printf("%-20s %-10s %s\n", "NAME", "VALUE", "DESCRIPTION")
	for _, d := range prefs.Definitions() {
		v, err := prefStore.Get(cmd.Context(), d.Name)
		if err != nil {
			return err
		}
		fmt.Printf("%-20s %-10s %s\n", d.Name, v, d.Description)
	}
	fmt.Printf("\nStored in %s (%s)\n", cfg.PrefsPath, cfg.PrefsBackend)
	return nil
}
