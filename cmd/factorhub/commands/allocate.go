package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/linchuan/factorhub/internal/allocator"
	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/strategy"
)

var allocateCmd = &cobra.Command{
	Use:   "allocate [strategy]",
	Short: "Turn the latest scores into an integer position list",
	Long: `Scores the universe as of a trading day (default: the latest) and
converts the cross-section into whole-share positions under capital and
concentration constraints.

Example:
  factorhub allocate momentum --capital 100000 --positions 10
  factorhub allocate low_volatility --max-weight 0.15 --as-of 2025-06-30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAllocateCmd,
}

var (
	allocateProfile   string
	allocateAsOf      string
	allocateCapital   float64
	allocatePositions int
	allocateMaxWeight float64
)

func init() {
	rootCmd.AddCommand(allocateCmd)

	allocateCmd.Flags().StringVar(&allocateProfile, "profile", "", "strategy profile YAML")
	allocateCmd.Flags().StringVar(&allocateAsOf, "as-of", "", "valuation date (YYYY-MM-DD, default: latest trading day)")
	allocateCmd.Flags().Float64Var(&allocateCapital, "capital", 0, "capital to deploy (default: configured)")
	allocateCmd.Flags().IntVar(&allocatePositions, "positions", 0, "max positions (default: configured)")
	allocateCmd.Flags().Float64Var(&allocateMaxWeight, "max-weight", 0, "max weight per position (default: configured)")
}

func runAllocateCmd(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	strat, err := buildStrategy(name, allocateProfile)
	if err != nil {
		return err
	}

	s, err := loadResearchStore(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}

	cal := s.Calendar()
	asOf := cal.Last()
	if allocateAsOf != "" {
		t, err := time.Parse("2006-01-02", allocateAsOf)
		if err != nil {
			return fmt.Errorf("invalid as-of date: %w", err)
		}
		idx := cal.FloorIndex(t)
		if idx < 0 {
			return fmt.Errorf("no trading day on or before %s", allocateAsOf)
		}
		asOf = cal.Days()[idx]
	}

	scoreFrame, err := strat.Compute(s)
	if err != nil {
		return err
	}
	scores := scoreFrame.RowMap(asOf)
	if uf, ok := strat.(strategy.UniverseFilter); ok {
		var mask *frame.Frame
		if mask, err = uf.FilterUniverse(s); err != nil {
			return err
		}
		eligible := mask.RowMap(asOf)
		for id := range scores {
			if _, ok := eligible[id]; !ok {
				delete(scores, id)
			}
		}
	}
	prices, err := s.Get(cfg.Backtest.PriceField)
	if err != nil {
		return err
	}

	acfg := allocator.Config{
		Capital:      cfg.Allocator.Capital,
		MaxPositions: cfg.Allocator.MaxPositions,
		MaxWeight:    cfg.Allocator.MaxWeight,
	}
	if allocateCapital > 0 {
		acfg.Capital = allocateCapital
	}
	if allocatePositions > 0 {
		acfg.MaxPositions = allocatePositions
	}
	if allocateMaxWeight > 0 {
		acfg.MaxWeight = allocateMaxWeight
	}

	alloc, err := allocator.Allocate(scores, prices.RowMap(asOf), acfg)
	if err != nil {
		return err
	}

	fmt.Printf("=== Allocation: %s as of %s ===\n", strat.Name(), asOf.Format("2006-01-02"))
	fmt.Printf("Capital: %.2f, max %d positions, max weight %.1f%%\n\n",
		acfg.Capital, acfg.MaxPositions, acfg.MaxWeight*100)

	fmt.Printf("%-12s %8s %12s %10s %14s\n", "SECURITY", "WEIGHT", "PRICE", "SHARES", "VALUE")
	for _, p := range alloc.Positions {
		fmt.Printf("%-12s %7.2f%% %12.2f %10d %14.2f\n",
			p.Security, p.Weight*100, p.Price, p.Shares, p.Value)
	}
	fmt.Printf("\nCash: %.2f\n", alloc.Cash)
	return nil
}
