package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/declwidgets/declwidgets/internal/web/websocket"
)

var tokenTTL time.Duration

// NewTokenCommand creates the token command
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue a websocket access token",
		Long: `Print a token signed with server.token_secret. Browsers pass it as the
"token" query parameter or an Authorization bearer header on the ws route.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runToken,
	}

	cmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime (0 for no expiry)")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Server.TokenSecret == "" {
		return errors.New("server.token_secret is not set")
	}

	subject := "notebook"
	if len(args) > 0 {
		subject = args[0]
	}

	token, err := websocket.NewTokenAuth(cfg.Server.TokenSecret, tokenTTL).Issue(subject)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
