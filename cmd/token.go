// cmd/token.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/markb/chatlite/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a connection token for a user",
	Long: `Mints a signed JWT that a client can present when opening the
WebSocket connection. The signing secret is read from CHATLITE_JWT_SECRET
or prompted for interactively.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]
		ttl, _ := cmd.Flags().GetDuration("ttl")

		secret := os.Getenv("CHATLITE_JWT_SECRET")
		if secret == "" {
			var err error
			secret, err = promptSecret("JWT secret: ")
			if err != nil {
				return err
			}
		}
		if secret == "" {
			return fmt.Errorf("a signing secret is required")
		}

		token, err := auth.GenerateToken(secret, userID, ttl)
		if err != nil {
			return fmt.Errorf("failed to mint token: %w", err)
		}

		fmt.Println(token)
		return nil
	},
}

// stdinReader is reused for non-terminal input to avoid losing buffered data
var stdinReader *bufio.Reader

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read secret with input hidden when attached to a terminal
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	// Fallback for non-terminal (e.g., piped input)
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().Duration("ttl", auth.TokenExpiry, "Token lifetime")
}
