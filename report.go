package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api"
	"github.com/linesmerrill/agendajur-api/config"
	"github.com/linesmerrill/agendajur-api/databases"
	"github.com/linesmerrill/agendajur-api/store"
	"github.com/linesmerrill/agendajur-api/templates/text"
)

func reportCmd() *cobra.Command {
	var output string
	var limit int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write the audit log report",
		Long: `Write the most recent audit log entries as a plain text report, one
"[DD/MM/YYYY às HH:MM:SS] - [TYPE] - message" line per entry, newest first.

Examples:
  # Print to stdout
  agendajur report

  # Save the report file
  agendajur report -o relatorio_agendajur.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), output, limit)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "File to write, stdout when empty")
	cmd.Flags().IntVarP(&limit, "limit", "n", store.RecentLogLimit, "Number of entries to include")

	return cmd
}

func runReport(ctx context.Context, stdout io.Writer, output string, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conf := config.New()
	client, err := databases.NewClient(conf)
	if err != nil {
		return fmt.Errorf("failed to create new client: %w", err)
	}
	connectCtx, cancel := api.WithQueryTimeout(ctx)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			zap.S().Warnw("failed to disconnect", "error", err)
		}
	}()

	logs := store.NewMongoLogs(databases.NewLogDatabase(databases.NewDatabase(conf, client)), conf.PollInterval, zap.S())
	queryCtx, cancelQuery := api.WithQueryTimeout(ctx)
	defer cancelQuery()
	entries, err := logs.Recent(queryCtx, limit)
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}
	if err := text.WriteReport(w, entries, conf.Location()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if output == "" {
		fmt.Fprintln(w)
	} else {
		zap.S().Infow("report written", "file", output, "entries", len(entries))
	}
	return nil
}
