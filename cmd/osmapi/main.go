// Command osmapi serves an OSM snapshot over the API.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// RootCmd is the entry point of all sub commands.
var RootCmd = &cobra.Command{
	Use:          "osmapi",
	Short:        "Serve OSM data over the 0.6 API",
	SilenceUsage: true,
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
