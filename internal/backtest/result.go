package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyUniverse means no security was ever eligible during the window.
var ErrEmptyUniverse = errors.New("backtest: empty universe for entire window")

// RunError carries the last rebalance date a failed run reached.
type RunError struct {
	LastRebalance time.Time
	Err           error
}

func (e *RunError) Error() string {
	if e.LastRebalance.IsZero() {
		return fmt.Sprintf("backtest failed before first rebalance: %v", e.Err)
	}
	return fmt.Sprintf("backtest failed after %s: %v", e.LastRebalance.Format("2006-01-02"), e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Holding is one position held over a period.
type Holding struct {
	Security string  `json:"security"`
	Weight   float64 `json:"weight"`
	Score    float64 `json:"score"`
}

// PeriodRecord describes one rebalance-to-rebalance period. Return is net
// of the transaction-cost drag. DataGaps counts accrual days on which a
// held security had no usable price and contributed a flat return.
type PeriodRecord struct {
	Date     time.Time `json:"date"`
	Holdings []Holding `json:"holdings"`
	Return   float64   `json:"return"`
	Turnover float64   `json:"turnover"`
	Cost     float64   `json:"cost"`
	DataGaps int       `json:"data_gaps"`
}

// Summary aggregates a run into the usual performance statistics.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Calmar           float64 `json:"calmar"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownDays  int     `json:"max_drawdown_days"`
	WinRate          float64 `json:"win_rate"`
	AvgPositions     float64 `json:"avg_positions"`
	AnnualTurnover   float64 `json:"annual_turnover"`
}

// Result is the output of a single run. It is owned by that run and not
// mutated after the run reaches a terminal state. On an aborted or failed
// run it holds every completed period up to the stop point.
type Result struct {
	Strategy       string         `json:"strategy"`
	Records        []PeriodRecord `json:"records"`
	Summary        Summary        `json:"summary"`
	InitialCapital float64        `json:"initial_capital"`
	FinalCapital   float64        `json:"final_capital"`
}
