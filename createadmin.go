package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/session"
)

func createAdminCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the administrator account",
		Long: `Create the account for ADMIN_EMAIL. Public sign up refuses that address,
so this is how a new deployment gets its administrator. The password is
read from the first line of stdin and must meet the sign up policy.

Examples:
  echo 'Nova@Senha1' | ADMIN_EMAIL=advogada@agendajur.app agendajur create-admin --name "Dra. Ana"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runCreateAdmin(cmd.Context(), config.New(), name, password)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name of the administrator")

	return cmd
}

func runCreateAdmin(ctx context.Context, conf *config.Config, name, password string) error {
	if conf.AdminEmail == "" {
		return errors.New("ADMIN_EMAIL is not set")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p, closeDB, err := openProvider(ctx, conf)
	if err != nil {
		return err
	}
	defer closeDB()

	queryCtx, cancel := api.WithQueryTimeout(ctx)
	defer cancel()
	err = p.CreateAdmin(queryCtx, name, conf.AdminEmail, password)
	if errors.Is(err, session.ErrDuplicateIdentifier) {
		return fmt.Errorf("an account for %s already exists, use set-password", conf.AdminEmail)
	}
	if err != nil {
		return err
	}
	zap.S().Infow("administrator created", "email", conf.AdminEmail)
	return nil
}
