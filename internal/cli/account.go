package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/loglens/internal/models"
)

var (
	signupTeam string

	profileDisplayName string
	profileEmail       string
	profileTeam        string

	downloadRaw    bool
	downloadOutput string
)

var signupCmd = &cobra.Command{
	Use:   "signup <user>",
	Short: "Create an account",
	Long: `Create an account on the analysis service. The password is read the
same way as for login. Use 'loglens login' afterwards to get a token.

Examples:
  loglens signup alice --team sre`,
	Args: cobra.ExactArgs(1),
	RunE: runSignup,
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show your profile",
	Long: `Show the profile of the user the configured token belongs to.

Examples:
  loglens profile
  loglens profile set --display-name "Alice" --email alice@example.com`,
	Args: cobra.NoArgs,
	RunE: runProfile,
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update your profile",
	Long: `Update profile fields. Only the flags you pass are changed.

Examples:
  loglens profile set --team payments`,
	Args: cobra.NoArgs,
	RunE: runProfileSet,
}

var downloadCmd = &cobra.Command{
	Use:   "download <record-id>",
	Short: "Download a record's processed log",
	Long: `Download the processed log of a record, or the log as uploaded with --raw.
The file is written to the current directory unless -o is given; -o - writes
to stdout.

Examples:
  loglens download r-42
  loglens download r-42 --raw -o original.log`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	signupCmd.Flags().StringVar(&signupTeam, "team", "", "team to join (required)")
	_ = signupCmd.MarkFlagRequired("team")

	profileSetCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "display name")
	profileSetCmd.Flags().StringVar(&profileEmail, "email", "", "email address")
	profileSetCmd.Flags().StringVar(&profileTeam, "team", "", "team id")
	profileCmd.AddCommand(profileSetCmd)

	downloadCmd.Flags().BoolVar(&downloadRaw, "raw", false, "download the log as uploaded")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output file, - for stdout")
}

func runSignup(cmd *cobra.Command, args []string) error {
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	userID, err := apiClient.Signup(cmd.Context(), args[0], password, signupTeam)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}

	logger.Info("signed up", "user_id", userID, "team_id", signupTeam)
	fmt.Printf("Created user %s. Run 'loglens login %s' to get a token.\n", userID, userID)
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	res, err := apiClient.GetProfile(cmd.Context())
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	printProfile(res.Profile, res.Conversations)
	return nil
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	var update models.ProfileUpdate
	flags := cmd.Flags()
	if flags.Changed("display-name") {
		update.DisplayName = &profileDisplayName
	}
	if flags.Changed("email") {
		update.Email = &profileEmail
	}
	if flags.Changed("team") {
		update.TeamID = &profileTeam
	}
	if update.Empty() {
		return errors.New("nothing to update: pass --display-name, --email or --team")
	}

	if err := apiClient.UpdateProfile(cmd.Context(), update); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	fmt.Println("Profile updated.")
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rec, err := apiClient.GetRecord(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get record: %w", err)
	}

	src := rec.ProcessedPath
	if downloadRaw {
		src = rec.RawFilePath
	}
	if src == "" {
		return fmt.Errorf("record %s has no stored file", rec.ID)
	}

	dest := downloadOutput
	if dest == "" {
		dest = path.Base(src)
	}

	var w io.Writer = os.Stdout
	if dest != "-" {
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := apiClient.Download(ctx, src, w)
	if err != nil {
		if dest != "-" {
			_ = os.Remove(dest)
		}
		return fmt.Errorf("download: %w", err)
	}
	logger.Info("downloaded record file", "record_id", rec.ID, "path", src, "bytes", n)
	if dest != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", n, dest)
	}
	return nil
}
