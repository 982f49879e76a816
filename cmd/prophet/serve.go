package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thinkscotty/prophet/internal/server"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the periodic scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Starting Prophet", "version", version)

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(cfg, a.db, a.sched, a.snapshots, a.rss, a.registry, version)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go a.sched.Run(ctx)

			go func() {
				<-ctx.Done()
				slog.Info("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}
