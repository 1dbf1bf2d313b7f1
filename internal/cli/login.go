package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login <user>",
	Short: "Log in and print an API token",
	Long: `Log in to the analysis service and print a token. Export it as
LOGLENS_TOKEN (or put it in loglens.yaml) for the other commands.

The password is read from the terminal without echo, or from the first
line of stdin when stdin is not a terminal.

Examples:
  export LOGLENS_TOKEN=$(loglens login alice)`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	password, err := readPassword()
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	res, err := apiClient.Login(cmd.Context(), args[0], password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	logger.Info("logged in", "user_id", res.UserID, "team_id", res.TeamID)
	fmt.Println(res.Token)
	return nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		return string(b), err
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
