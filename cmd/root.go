package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cloudkb",
	Short: "Multi-tenant knowledge base serving layer",
	Long: `cloudkb serves tenant-isolated knowledge bases: document uploads are
indexed as vector embeddings and free-text questions are answered from the
retrieved context.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	settingDefaultConfig()
}
