package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the schoolctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schoolctl",
		Short: "Typing school identity admin tool",
		Long: `schoolctl provisions accounts and inspects session tokens for the typing school
identity service. It reads the same environment variables as the server.`,
		SilenceUsage: true,
	}
	root.AddCommand(newUsersCmd())
	root.AddCommand(newPasswordCmd())
	root.AddCommand(newTokenCmd())
	return root
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
