package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "neuropipe",
	Short: "Configuration-driven batch processing for brain-imaging datasets",
	Long: "Neuropipe resolves a declarative configuration into data loaders and\n" +
		"processing pipelines, then runs every discovered item through its\n" +
		"pipeline with bounded concurrency and idempotent artifact caching.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
