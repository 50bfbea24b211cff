package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"typingschool/identity/internal/config"
	"typingschool/identity/internal/crypto"
)

func newPasswordCmd() *cobra.Command {
	passwordCmd := &cobra.Command{
		Use:   "password",
		Short: "Password utilities",
	}

	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the argon2id hash of a password read from stdin",
		Long: `Reads one line from stdin and prints its argon2id hash using the PASSWORD_*
cost settings. Useful for seeding users directly in the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				return fmt.Errorf("empty password")
			}
			hasher, err := newHasher(config.Load())
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	passwordCmd.AddCommand(hashCmd)
	return passwordCmd
}

func newHasher(cfg config.Config) (*crypto.Hasher, error) {
	return crypto.NewHasher(crypto.Params{
		MemoryKB:    uint32(cfg.PasswordMemoryKB),
		Time:        uint32(cfg.PasswordTime),
		Parallelism: uint8(cfg.PasswordParallelism),
	})
}
