// Command registryd runs the domain registry: the EPP flow server, the
// async deletion worker, and the bulk resave batch job.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "registryd",
		Short:        "EPP domain registry service",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), asyncWorkerCmd(), resaveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
