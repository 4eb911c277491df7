package main

import (
	"github.com/spf13/cobra"

	"registryd/internal/bulk"
)

func resaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resave",
		Short: "Re-save all resources, materializing projected state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx)
			if err != nil {
				return err
			}
			defer d.close()

			resaver := bulk.New(d.store, d.logger, d.cfg.ResaveBatchSize)
			stats, err := resaver.Run(ctx)
			if err != nil {
				return err
			}
			d.logger.Info("resave complete", "scanned", stats.Scanned, "resaved", stats.Resaved)
			return nil
		},
	}
}
