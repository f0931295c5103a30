package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/cascade"
	cascadehttp "github.com/aretw0/cascade/pkg/adapters/http"
	"github.com/aretw0/lifecycle"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Serves the JSON API: trees can be imported and inspected, and runs are
started in the background and driven through answer and decision calls.
Prometheus metrics are exposed on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := prometheus.NewRegistry()
		sys, cfg, logger, err := openSystem(cmd, cascade.WithMetrics(reg))
		if err != nil {
			return err
		}
		defer sys.Close()

		addr := cfg.Server.Addr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		mux := chi.NewRouter()
		mux.Handle("/metrics", sys.Metrics.Handler())
		mux.Mount("/", cascadehttp.NewHandler(sys.Store, sys.NewSessionManager(),
			cascadehttp.WithLogger(logger),
			cascadehttp.WithVersion(cascade.Version),
		))

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx := lifecycle.NewSignalContext(context.Background())
		serverErrors := make(chan error, 1)
		lifecycle.Go(ctx, func(ctx context.Context) error {
			logger.Info("Starting Cascade server", "addr", addr, "store", cfg.Store.Kind)
			serverErrors <- srv.ListenAndServe()
			return nil
		})

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "err", err)
				return srv.Close()
			}
			logger.Info("Cascade server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from config)")
}
