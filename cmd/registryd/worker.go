package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"registryd/internal/async"
)

func asyncWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "asyncworker",
		Short: "Run the deferred deletion worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			opts := []async.Option{}
			if d.history != nil {
				opts = append(opts, async.WithHistoryPublisher(d.history))
			}
			worker := async.New(
				d.store, d.async, d.dns, d.registries,
				d.metrics, d.logger, d.cfg.AsyncPollInterval, opts...)

			d.logger.Info("deletion worker started",
				"poll_interval", d.cfg.AsyncPollInterval.String())
			err = worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				d.logger.Info("deletion worker stopped")
				return nil
			}
			return err
		},
	}
}
