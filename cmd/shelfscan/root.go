package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/shelfscan/internal/api"
	"github.com/jackzampolin/shelfscan/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "shelfscan",
	Short: "Bookshelf photo scanning pipeline with catalog-validated book records",
	Long: `Shelfscan turns a photo of a bookshelf into validated book records.

The pipeline includes:
  - Text detection over the uploaded photo
  - LLM-powered segmentation of spine fragments into book candidates
  - Parallel validation against external book catalogs
  - Result delivery to waiting WebSocket clients`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.shelfscan/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
