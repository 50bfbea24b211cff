package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"typingschool/identity/internal/auth"
	"typingschool/identity/internal/config"
)

func newTokenCmd() *cobra.Command {
	var secret string

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Session token utilities",
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a session token and print its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if secret == "" {
				secret = cfg.SessionSecret
			}
			codec, err := auth.NewCodec(secret, cfg.SessionIssuer, cfg.SessionTTL)
			if err != nil {
				return err
			}
			session, err := codec.Decode(args[0])
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(session)
		},
	}
	inspectCmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to SESSION_SECRET)")

	tokenCmd.AddCommand(inspectCmd)
	return tokenCmd
}
