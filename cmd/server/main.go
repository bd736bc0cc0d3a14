// Package main 是应用程序的入口点。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "MCP knowledge server",
	Long: `Document ingestion and semantic retrieval server.

Without a subcommand the HTTP server is started (same as "server serve").`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
