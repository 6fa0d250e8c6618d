package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a Ganymede configuration file.

Validation applies the same rules the controller enforces at startup:
budgets must not be negative, thresholds must stay in range, the cron
schedule must parse, and the analysis pipeline must have capacity.

Examples:
  # Validate the default config
  ganymede validate

  # Validate a specific file
  ganymede validate --config /etc/ganymede/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
	fmt.Printf("  Daily budget:    $%.2f\n", cfg.Budget.DailyBudgetUSD)
	fmt.Printf("  Hourly limit:    $%.2f\n", cfg.Budget.HourlyLimitUSD)
	fmt.Printf("  Request rate:    %d/min\n", cfg.Budget.RequestsPerMinute)
	fmt.Printf("  Token rate:      %d/min\n", cfg.Budget.TokensPerMinute)
	fmt.Printf("  Sampling rate:   %.2f\n", cfg.Sampling.BaseRate)
	fmt.Printf("  Analysis:        %d workers, queue %d\n",
		cfg.Analysis.Workers, cfg.Analysis.QueueCapacity)
	if cfg.Retention.PruneSchedule != "" {
		fmt.Printf("  Retention:       %d days, schedule %q\n",
			cfg.Retention.RetainDays, cfg.Retention.PruneSchedule)
	}
	return nil
}
