package commands

import (
	"github.com/spf13/cobra"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "factorhub",
	Short: "Factor research platform: point-in-time data, factors, backtests, allocation",
	Long: `factorhub is a factor-based equity research CLI.

It loads point-in-time field data from Postgres, scores a universe with a
named strategy, and either replays the strategy historically (backtest) or
turns the latest scores into an integer position list (allocate).

Examples:
  factorhub fields
  factorhub backtest momentum --from 2023-01-01 --to 2024-12-31
  factorhub allocate momentum --capital 100000 --positions 10
  factorhub serve`,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
