package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/pricing"
)

var pricingFlags struct {
	file   string
	format string
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Inspect a pricing table",
	Long: `Load a pricing table and print its entries.

Without --file, the built-in pricing table is shown. Loading fails when
the file is malformed or lacks the mandatory "default" entry, so this
doubles as a lint for pricing files before deployment.

Examples:
  # Show the built-in table
  ganymede pricing

  # Lint and show a pricing file
  ganymede pricing --file pricing.yaml

  # JSON output
  ganymede pricing --file pricing.yaml --format json`,
	RunE: showPricing,
}

func init() {
	rootCmd.AddCommand(pricingCmd)

	pricingCmd.Flags().StringVarP(&pricingFlags.file, "file", "f", "", "pricing YAML file (default: built-in table)")
	pricingCmd.Flags().StringVar(&pricingFlags.format, "format", "text", "output format: text, json")
}

func showPricing(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(pricingFlags.format)
	if err != nil {
		return cli.NewCommandError("pricing", err)
	}

	table := pricing.DefaultTable()
	if pricingFlags.file != "" {
		loaded, err := pricing.LoadFile(pricingFlags.file)
		if err != nil {
			return cli.NewCommandError("pricing", err)
		}
		table = loaded
	}

	models := table.Models()
	sort.Strings(models)

	entries := make([]pricing.Entry, 0, len(models))
	for _, model := range models {
		entries = append(entries, table.Resolve(model))
	}

	if format == cli.FormatJSON {
		return cli.WriteJSON(os.Stdout, entries)
	}

	fmt.Printf("%-20s %12s %12s %12s %12s\n",
		"MODEL", "IN $/1K", "OUT $/1K", "STORM", "CONTEXT")
	for _, e := range entries {
		fmt.Printf("%-20s %12.5f %12.5f %12d %12d\n",
			e.Model, e.InputPricePer1K, e.OutputPricePer1K,
			e.TokenStormThreshold, e.MaxContextTokens)
	}
	return nil
}
