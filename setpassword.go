package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/email"
	"github.com/linesmerrill/agendajur-api/identity"
)

func setPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-password <email>",
		Short: "Replace the password of an account",
		Long: `Replace the password of a registered account without the emailed reset
flow. The new password is read from the first line of stdin and must meet
the sign up policy.

Examples:
  # Recover the administrator account
  echo 'Nova@Senha1' | agendajur set-password advogada@agendajur.app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runSetPassword(cmd.Context(), args[0], password)
		},
	}

	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password on stdin")
	}
	return password, nil
}

func runSetPassword(ctx context.Context, addr, password string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p, closeDB, err := openProvider(ctx, config.New())
	if err != nil {
		return err
	}
	defer closeDB()

	queryCtx, cancelQuery := api.WithQueryTimeout(ctx)
	defer cancelQuery()
	err = p.SetPassword(queryCtx, addr, password)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("no account registered for %s", addr)
	}
	if err != nil {
		return err
	}
	zap.S().Infow("password updated", "email", addr)
	return nil
}

// openProvider connects to the database and returns an identity provider
// for operator commands. Mail goes through SendGrid when a key is set.
func openProvider(ctx context.Context, conf *config.Config) (*identity.Provider, func(), error) {
	client, err := databases.NewClient(conf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create new client: %w", err)
	}
	connectCtx, cancel := api.WithQueryTimeout(ctx)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := databases.NewDatabase(conf, client)
	var mail email.Sender = email.LogSender{Logger: zap.S()}
	if conf.SendgridAPIKey != "" {
		mail = email.NewSendGrid(conf.SendgridAPIKey, conf.MailFrom)
	}
	p := identity.NewProvider(databases.NewUserDatabase(db), databases.NewPasswordResetDatabase(db),
		mail, conf.BaseURL, zap.S())
	return p, func() { client.Disconnect(context.Background()) }, nil
}
