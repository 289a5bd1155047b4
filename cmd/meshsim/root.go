package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the path to the swarm YAML configuration file, shared by
// every subcommand via a persistent flag.
var configPath string

// rootCmd is the top-level cobra command for meshsim.
var rootCmd = &cobra.Command{
	Use:   "meshsim",
	Short: "Simulate a swarm of BLE mesh discovery/clusterhead-election nodes",
	Long:  "meshsim runs many mesh.Engine instances over an in-memory radio model to exercise the clusterhead-election protocol without real BLE hardware.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "meshsim.yml",
		"path to the swarm configuration YAML file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
