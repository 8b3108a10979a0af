// Package cmd provides the CLI commands for storecore.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verdant-market/storecore/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "storecore",
	Short: "storecore - storefront session and security core",
	Long: `storecore is the session and security core for the Verdant Market
storefront. It manages sign-in sessions, CSRF tokens, rate limiting,
input sanitization, and cart/favorites sync against the hosted record
store, and serves health and metrics endpoints for the dev server.

Quick start:
  1. Create a config file: storecore.yaml
  2. Run: storecore serve

Configuration:
  Config is loaded from storecore.yaml in the current directory,
  $HOME/.storecore/, or /etc/storecore/.

  Environment variables can override config values with the STORECORE_ prefix.
  Example: STORECORE_SERVER_HTTP_ADDR=:9090

Commands:
  serve           Start the dev server
  hash-password   Generate an argon2id hash for a seed identity
  version         Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./storecore.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
