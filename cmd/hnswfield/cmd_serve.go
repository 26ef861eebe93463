package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/api"
	promcollector "github.com/hupe1980/hnswfield/metrics/prometheus"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		Long: `Serve the REST API until interrupted.

On SIGINT or SIGTERM the server stops accepting requests, drains in-flight
ones and, unless --save-on-exit=false, saves the database before exiting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			saveOnExit, _ := cmd.Flags().GetBool("save-on-exit")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collector := promcollector.NewCollector(prometheus.DefaultRegisterer, "")
			db, cfg, err := openDB(ctx, cmd, hnswfield.WithMetricsCollector(collector))
			if err != nil {
				return err
			}
			defer db.Close()

			logger := cfg.Logger()
			srv := api.NewServer(db, cfg.Server,
				api.WithLogger(logger.Logger),
				api.WithMetrics(collector, prometheus.DefaultGatherer),
			)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown failed", "error", err)
			}
			if saveOnExit {
				if err := db.Save(shutdownCtx); err != nil {
					return fmt.Errorf("save failed: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("save-on-exit", true, "Save the database on shutdown")
	return cmd
}
