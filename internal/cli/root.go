// Package cli provides the command-line interface for loglens.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/raphaelgruber/loglens/internal/client"
	"github.com/raphaelgruber/loglens/internal/config"
	"github.com/raphaelgruber/loglens/internal/metrics"
	"github.com/raphaelgruber/loglens/internal/prefs"
	"github.com/raphaelgruber/loglens/internal/tracker"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	cfgFile   string
	verbose   bool
	plain     bool
	showStats bool

	// Initialized in PersistentPreRunE
	cfg        config.Config
	logger     *slog.Logger
	apiClient  *client.Client
	collector  *metrics.Collector
	prefStore  *prefs.Store
	logCleanup func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "loglens",
	Short: "Upload logs for analysis and browse similar incidents",
	Long: `Loglens uploads log files to the log-analysis service, follows the
processing job until it finishes, and shows previously analyzed records
that look similar, ranked by similarity.

Configuration is read from loglens.yaml (in the working directory or
~/.config/loglens) and LOGLENS_* environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		v, err := config.NewViper(cfgFile)
		if err != nil {
			return err
		}
		if err := bindFlags(cmd, v); err != nil {
			return err
		}
		cfg, err = config.Load(v)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// The progress UI owns the terminal, so console logs are opt-in.
		var console io.Writer
		if verbose {
			console = os.Stderr
		}
		logger, logCleanup = config.SetupLogger(console, cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		collector = metrics.NewCollector()
		apiClient = client.New(client.Config{
			BaseURL:    cfg.ServerURL,
			Token:      cfg.Token,
			UserAgent:  "loglens/" + Version,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		}, client.WithLogger(logger), client.WithMetrics(collector))

		backend, err := prefs.Open(cfg.PrefsBackend, cfg.PrefsPath)
		if err != nil {
			return fmt.Errorf("open preferences: %w", err)
		}
		prefStore = prefs.NewStore(backend, logger)

		logger.Debug("loglens starting", "command", cmd.CommandPath(), "server_url", cfg.ServerURL)
		return nil
	},
}

// bindFlags lets explicitly set flags override file and environment config.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"server": config.KeyServerURL,
		"token":  config.KeyToken,
	}
	for name, key := range flags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}
	return nil
}

// trackerConfig builds the job tracker settings from config.
func trackerConfig(callbacks tracker.Callbacks) tracker.Config {
	return tracker.Config{
		PollInterval:         cfg.PollInterval,
		MaxBackoff:           cfg.MaxBackoff,
		MaxConsecutiveErrors: cfg.MaxPollErrors,
		MaxPollDuration:      cfg.MaxPollDuration,
		Callbacks:            callbacks,
		Logger:               logger,
	}
}

// interactive reports whether the terminal UI should be used.
func interactive() bool {
	return !plain && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Cleanup runs whether or not the command failed; cobra skips post-run
// hooks after an error.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	finish()
	return err
}

// finish prints stats if requested and releases what PersistentPreRunE opened.
func finish() {
	if showStats && collector != nil {
		printClientStats(collector.Snapshot())
	}
	if prefStore != nil {
		if err := prefStore.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close preferences: %v\n", err)
		}
		prefStore = nil
	}
	if logCleanup != nil {
		_ = logCleanup()
		logCleanup = nil
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./loglens.yaml or ~/.config/loglens/loglens.yaml)")
	rootCmd.PersistentFlags().String("server", "", "analysis service URL (overrides LOGLENS_SERVER_URL)")
	rootCmd.PersistentFlags().String("token", "", "API token (overrides LOGLENS_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "plain output even on a terminal")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "print request timings on exit")

	// Add subcommands
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(untagCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(downloadCmd)
}
