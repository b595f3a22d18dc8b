package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/alainbuyze/stampscan/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan pipeline over HTTP",
		Long: `Starts the JSON API: upload an image to run the full pipeline, list
and fetch recorded sessions, and manage the pending-review queue.`,
		Example: `  # Start on the configured address
  stampscan serve

  # Override the bind address
  stampscan serve --addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}

			runner, recorder, index, closer, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closer()

			app := &server.App{
				Runner:   runner,
				Recorder: recorder,
				Index:    index,
			}
			srv := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: server.NewRouter(app),
			}

			serverErr := make(chan error, 1)
			go func() {
				slog.Info("stampscan API available", "addr", cfg.ListenAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				slog.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					slog.Error("server shutdown failed", "err", err)
					return err
				}
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Bind address (overrides config)")
	return cmd
}
