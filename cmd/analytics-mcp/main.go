package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "analytics-mcp",
	Short: "Analytics MCP server",
	Long:  "analytics-mcp serves analytics tools over the MCP streamable and legacy SSE transports.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("analytics-mcp version %s\n", version))

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newServeSSECmd())
}
