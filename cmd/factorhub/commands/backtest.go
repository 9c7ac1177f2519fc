package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linchuan/factorhub/internal/backtest"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Replay a strategy over history and report performance",
	Long: `Runs the named strategy over the requested window at the chosen
rebalance cadence and prints per-period records plus summary statistics.

Example:
  factorhub backtest momentum --from 2023-01-01 --to 2024-12-31
  factorhub backtest momentum --rebalance weekly --top 5 --cost 0.002
  factorhub backtest --profile strategies/momentum.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBacktestCmd,
}

var (
	backtestProfile   string
	backtestFrom      string
	backtestTo        string
	backtestCapital   float64
	backtestRebalance string
	backtestCost      float64
	backtestTop       int
	backtestWeighting string
	backtestMaxWeight float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestProfile, "profile", "", "strategy profile YAML")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "start date (YYYY-MM-DD, default: calendar start)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "end date (YYYY-MM-DD, default: calendar end)")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 0, "initial capital (default: configured)")
	backtestCmd.Flags().StringVar(&backtestRebalance, "rebalance", "", "cadence: daily|weekly|monthly (default: configured)")
	backtestCmd.Flags().Float64Var(&backtestCost, "cost", -1, "transaction cost rate (default: configured)")
	backtestCmd.Flags().IntVar(&backtestTop, "top", 0, "number of holdings (default: configured)")
	backtestCmd.Flags().StringVar(&backtestWeighting, "weighting", "", "weighting: equal|score (default: configured)")
	backtestCmd.Flags().Float64Var(&backtestMaxWeight, "max-weight", 0, "cap per position weight (default: 1.0)")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	strat, err := buildStrategy(name, backtestProfile)
	if err != nil {
		return err
	}

	s, err := loadResearchStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	cal := s.Calendar()
	start, end := cal.First(), cal.Last()
	if backtestFrom != "" {
		if start, err = time.Parse("2006-01-02", backtestFrom); err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
	}
	if backtestTo != "" {
		if end, err = time.Parse("2006-01-02", backtestTo); err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
	}

	btCfg := backtest.DefaultConfig(start, end)
	btCfg.InitialCapital = cfg.Backtest.InitialCapital
	btCfg.RebalanceFreq = backtest.Frequency(cfg.Backtest.RebalanceFreq)
	btCfg.CostRate = cfg.Backtest.CostRate
	btCfg.TopK = cfg.Backtest.TopK
	btCfg.Weighting = backtest.Weighting(cfg.Backtest.Weighting)
	btCfg.RiskFreeRate = cfg.Backtest.RiskFreeRate
	btCfg.PriceField = cfg.Backtest.PriceField
	if backtestCapital > 0 {
		btCfg.InitialCapital = backtestCapital
	}
	if backtestRebalance != "" {
		btCfg.RebalanceFreq = backtest.Frequency(backtestRebalance)
	}
	if backtestCost >= 0 {
		btCfg.CostRate = backtestCost
	}
	if backtestTop > 0 {
		btCfg.TopK = backtestTop
	}
	if backtestWeighting != "" {
		btCfg.Weighting = backtest.Weighting(backtestWeighting)
	}
	if backtestMaxWeight > 0 {
		btCfg.MaxWeight = backtestMaxWeight
	}

	engine, err := backtest.New(btCfg, strat, s, log)
	if err != nil {
		return err
	}
	result, err := engine.Run(cmd.Context())
	if err != nil {
		if result != nil && len(result.Records) > 0 {
			fmt.Printf("Run failed; %d completed periods follow.\n\n", len(result.Records))
			printBacktestResult(result, btCfg)
		}
		return err
	}
	printBacktestResult(result, btCfg)
	return nil
}

func printBacktestResult(res *backtest.Result, cfg backtest.Config) {
	fmt.Printf("=== Backtest: %s ===\n", res.Strategy)
	fmt.Printf("Period:    %s ~ %s (%s, top %d, %s weighted)\n",
		cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"),
		cfg.RebalanceFreq, cfg.TopK, cfg.Weighting)
	fmt.Printf("Capital:   %.2f -> %.2f\n\n", res.InitialCapital, res.FinalCapital)

	fmt.Printf("%-12s %8s %9s %8s %6s\n", "DATE", "RETURN", "TURNOVER", "COST", "GAPS")
	for _, r := range res.Records {
		fmt.Printf("%-12s %7.2f%% %8.2f%% %7.3f%% %6d\n",
			r.Date.Format("2006-01-02"), r.Return*100, r.Turnover*100, r.Cost*100, r.DataGaps)
	}

	sm := res.Summary
	fmt.Println("\nSummary:")
	fmt.Printf("  Total return       %8.2f%%\n", sm.TotalReturn*100)
	fmt.Printf("  Annualized return  %8.2f%%\n", sm.AnnualizedReturn*100)
	fmt.Printf("  Volatility         %8.2f%%\n", sm.Volatility*100)
	fmt.Printf("  Sharpe             %8.2f\n", sm.Sharpe)
	fmt.Printf("  Sortino            %8.2f\n", sm.Sortino)
	fmt.Printf("  Calmar             %8.2f\n", sm.Calmar)
	fmt.Printf("  Max drawdown       %8.2f%% (%d days)\n", sm.MaxDrawdown*100, sm.MaxDrawdownDays)
	fmt.Printf("  Win rate           %8.2f%%\n", sm.WinRate*100)
	fmt.Printf("  Avg positions      %8.1f\n", sm.AvgPositions)
	fmt.Printf("  Annual turnover    %8.2f%%\n", sm.AnnualTurnover*100)
}
