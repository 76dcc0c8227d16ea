// ABOUTME: Entry point and root command for the gatehouse CLI
// ABOUTME: Subcommands: serve, user add/list/grant, trust-token

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "gatehouse",
	Short: "Access-control gate for web applications",
	Long: `gatehouse guards web application routes behind a per-request access gate:
session authentication, signed remember-me re-login, trust delegation with an
external identity authority, and per-route profile checks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gatehouse.yaml", "path to config file (.yaml or .toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(trustTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
