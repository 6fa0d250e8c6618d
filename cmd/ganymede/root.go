package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Mercator Ganymede - LLM admission control and risk scoring runtime",
	Long: `Mercator Ganymede is an open-source admission control runtime that provides
budget enforcement, threat scoring, and adaptive analysis sampling for LLM
applications.

Every request passes one Capture call, providing:
  - Multi-tier budget and rate limit enforcement
  - Spend velocity anomaly detection
  - Threat pattern detection (injection, PII, secrets, jailbreak, token storm)
  - Adaptive sampling into an asynchronous analysis pipeline

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
