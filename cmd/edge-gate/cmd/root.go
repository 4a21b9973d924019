// Package cmd provides the CLI commands for the edge gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/edgegate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "edge-gate",
	Short: "Edge Gate - HTTP gateway for broker-connected backends",
	Long: `Edge Gate is the single HTTP entry point in front of a set of backend
services reached over a Redis message broker.

It authenticates bearer tokens against the auth backend, enforces per-route
roles, forwards requests as broker commands and renders every failure in one
uniform error shape. Bulk file uploads go to the processing backend directly,
falling back to a broker event when it is unreachable.

Quick start:
  1. Create a config file: edge-gate.yaml
  2. Run: edge-gate start

Configuration:
  Config is loaded from edge-gate.yaml in the current directory,
  $HOME/.edge-gate/, or /etc/edge-gate/.

  Environment variables can override config values with the EDGE_GATE_ prefix.
  Example: EDGE_GATE_SERVER_HTTP_ADDR=:8080

Commands:
  start       Start the gateway
  stop        Stop the running gateway
  routes      Print the resolved route table
  version     Print version information`,
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
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./edge-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
