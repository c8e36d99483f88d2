// Command upstreamd serves the health, debug and metrics surface of the
// upstream call layer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "upstreamd",
		Short:         "Upstream call layer ops server",
		Long:          "Run the cached, resilient upstream call layer and expose its health, debug and metrics endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(configCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
