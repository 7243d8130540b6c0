// Command pagepdf exports regions of rendered pages as paginated PDFs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pagepdf",
		Short:         "Export page regions as paginated PDF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, json or toml)")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newCaptureCommand(&configPath))
	root.AddCommand(newCleanupCommand(&configPath))
	return root
}
