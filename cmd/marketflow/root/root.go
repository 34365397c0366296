// Package root wires the marketflow CLI: collector fleet construction from
// configuration, plus the route, validate, and collectors commands.
package root

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "marketflow",
	Short: "Financial data collector routing",
	Long: `Marketflow routes market data requests across a fleet of collectors:
government sources, commercial MCP servers, and commercial REST APIs.
Each collector carries its own rate and quota budget; routing ranks the
eligible collectors and filters out the ones that cannot afford the call.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to marketflow.yaml (default: ./marketflow.yaml)")
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(collectorsCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("marketflow version %s\n", rootCmd.Version))
}
