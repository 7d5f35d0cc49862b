package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/linesmerrill/agendajur-api/api/handlers"
	"github.com/linesmerrill/agendajur-api/api/scheduler"
	"github.com/linesmerrill/agendajur-api/config"
)

const limiterIdle = 15 * time.Minute

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		Long: `Connect to MongoDB and serve the REST and websocket API on $PORT.

Examples:
  # Serve with daily reminders
  agendajur serve

  # Serve only, another instance sends the reminders
  agendajur serve --no-scheduler`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run the daily hearing reminder job")

	return cmd
}

func runServe(noScheduler bool) error {
	a := handlers.App{}
	a.Config = *config.New()

	if err := a.Initialize(); err != nil { //initialize database and router
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !noScheduler {
		s := scheduler.NewScheduler(a.Hearings, a.Users, a.Locks, a.Mail, a.Location)
		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()
	}

	go func() {
		t := time.NewTicker(limiterIdle)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				a.Limiter.Evict(limiterIdle)
			}
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%v", a.Config.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()
	zap.S().Infow("agendajur-api is up and running",
		"port", a.Config.Port,
		"url", a.Config.BaseURL,
	)

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		zap.S().Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnw("http shutdown did not complete", "error", err)
	}
	return a.Close(shutdownCtx)
}
