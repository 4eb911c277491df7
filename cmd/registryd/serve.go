package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"registryd/internal/flows"
	"registryd/internal/platform/httpserver"
	httptransport "registryd/internal/transport/http"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the EPP flow server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			opts := append(d.runnerOptions(), flows.WithDeletionDelay(d.cfg.AsyncDeletionDelay))
			runner := flows.NewRunner(
				d.store, d.registries, d.dns, d.async, d.sessions,
				d.metrics, d.logger, opts...)
			handler := httptransport.NewHandler(runner, d.sessions, d.logger,
				httptransport.WithSuperusers(d.cfg.SuperuserRegistrars))
			router := httptransport.NewRouter(handler, d.promReg, d.logger)
			srv := httpserver.New(d.cfg.Addr, router)

			errCh := make(chan error, 1)
			go func() {
				d.logger.Info("registryd listening", "addr", d.cfg.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
			select {
			case err := <-errCh:
				return err
			case <-quit:
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), d.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			d.logger.Info("registryd stopped")
			return nil
		},
	}
}
