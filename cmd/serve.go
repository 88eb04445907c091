package cmd

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

	"github.com/somonox/findata-crawler/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Long: `Starts the ops HTTP server: health and readiness probes, the
Prometheus metrics endpoint, and an API for triggering news collection
runs on demand.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner, cleanup, err := buildNewsRunner(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			server := &http.Server{
				Addr:              api.ListenAddr(cfg.Server.Port),
				Handler:           api.NewServer(runner, logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", server.Addr))
				errCh <- server.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return nil
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("serve: %w", err)
			}
		},
	}
	return cmd
}
