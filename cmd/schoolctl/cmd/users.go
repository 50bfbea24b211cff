package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"typingschool/identity/internal/config"
	"typingschool/identity/internal/db"
	"typingschool/identity/internal/identity"
	"typingschool/identity/internal/repository"
)

func newUsersCmd() *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	usersCmd.AddCommand(newUsersCreateCmd())
	return usersCmd
}

func newUsersCreateCmd() *cobra.Command {
	var (
		req   identity.CreateUserRequest
		grade int
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user in the configured database",
		Example: `  schoolctl users create --email ada@school.test --name "Ada" --role instructor --password '...'
  schoolctl users create --email kid@school.test --name "Kid" --role student --grade 4 --password '...'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("grade") {
				req.Grade = &grade
			}
			parsed, err := identity.ParseCreateUserRequest(req)
			if err != nil {
				return err
			}

			cfg := config.Load()
			hasher, err := newHasher(cfg)
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}

			user, err := identity.NewDirectory(repository.NewStore(pool), hasher).Create(cmd.Context(), parsed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", user.ID, user.Email, user.Role)
			return nil
		},
	}

	flags := createCmd.Flags()
	flags.StringVar(&req.Email, "email", "", "Email address")
	flags.StringVar(&req.Name, "name", "", "Display name")
	flags.StringVar(&req.Role, "role", "", "One of admin, school_admin, instructor, student")
	flags.StringVar(&req.Password, "password", "", "Initial password")
	flags.IntVar(&grade, "grade", 0, "Grade (students only)")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("role")
	return createCmd
}
