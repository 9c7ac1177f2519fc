// Package backtest replays a strategy over historical data at a fixed
// rebalance cadence and measures the resulting returns net of transaction
// costs. Scoring on a date only ever sees observations already visible on
// that date; the store's alignment layer enforces this and the engine
// trusts it.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/linchuan/factorhub/internal/allocator"
	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/store"
	"github.com/linchuan/factorhub/internal/strategy"
	"github.com/linchuan/factorhub/pkg/logger"
)

// State describes where a run is in its lifecycle. Completed and Failed are
// terminal.
type State int32

const (
	StateInitialized State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Engine runs one backtest. It is single-use: construct, Run once, read the
// result.
type Engine struct {
	cfg   Config
	strat strategy.Strategy
	store *store.Store
	log   *logger.Logger
	state atomic.Int32
}

// New validates the configuration and prepares a run. Configuration
// problems surface here, never mid-run.
func New(cfg Config, strat strategy.Strategy, st *store.Store, log *logger.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, fmt.Errorf("%w: strategy is required", ErrBadConfig)
	}
	if st == nil {
		return nil, fmt.Errorf("%w: store is required", ErrBadConfig)
	}
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{cfg: cfg, strat: strat, store: st, log: log}
	e.state.Store(int32(StateInitialized))
	return e, nil
}

// State reports the current lifecycle state.
func (e *Engine) State() State { return State(e.state.Load()) }

// Run executes the backtest. On failure or on context cancellation between
// rebalance steps, the returned result still holds every period completed
// up to the stop point.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.state.CompareAndSwap(int32(StateInitialized), int32(StateRunning)) {
		return nil, errors.New("backtest: run already started")
	}

	result := &Result{
		Strategy:       e.strat.Name(),
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   e.cfg.InitialCapital,
	}

	scores, err := e.strat.Compute(e.store)
	if err != nil {
		return e.fail(result, time.Time{}, err)
	}
	var mask *frame.Frame
	if uf, ok := e.strat.(strategy.UniverseFilter); ok {
		if mask, err = uf.FilterUniverse(e.store); err != nil {
			return e.fail(result, time.Time{}, err)
		}
	}
	prices, err := e.store.Get(e.cfg.PriceField)
	if err != nil {
		return e.fail(result, time.Time{}, err)
	}

	cal := e.store.Calendar()
	rebalances := e.rebalanceDates(cal)
	if len(rebalances) == 0 {
		return e.fail(result, time.Time{}, fmt.Errorf("%w: no trading days in range", ErrBadConfig))
	}
	lastAccrual := cal.FloorIndex(e.cfg.End)

	e.log.WithFields(map[string]interface{}{
		"strategy":   e.strat.Name(),
		"rebalances": len(rebalances),
		"from":       rebalances[0].Format("2006-01-02"),
		"to":         rebalances[len(rebalances)-1].Format("2006-01-02"),
	}).Info("backtest started")

	value := e.cfg.InitialCapital
	prev := map[string]float64{}
	everEligible := false

	for k, day := range rebalances {
		if err := ctx.Err(); err != nil {
			last := time.Time{}
			if k > 0 {
				last = rebalances[k-1]
			}
			return e.fail(result, last, err)
		}

		row := scores.RowIndex(day)
		holdings := e.selectHoldings(scores, mask, row)
		if len(holdings) > 0 {
			everEligible = true
		}

		weights := make(map[string]float64, len(holdings))
		for _, h := range holdings {
			weights[h.Security] = h.Weight
		}
		turnover := weightTurnover(prev, weights)
		cost := turnover * e.cfg.CostRate

		endIdx := lastAccrual
		if k+1 < len(rebalances) {
			endIdx = cal.IndexOf(rebalances[k+1])
		}
		growth, gaps := accrue(prices, holdings, cal.IndexOf(day), endIdx)

		periodReturn := growth - 1 - cost
		value *= 1 + periodReturn
		result.Records = append(result.Records, PeriodRecord{
			Date:     day,
			Holdings: holdings,
			Return:   periodReturn,
			Turnover: turnover,
			Cost:     cost,
			DataGaps: gaps,
		})
		prev = weights
	}

	if !everEligible {
		return e.fail(result, rebalances[len(rebalances)-1], ErrEmptyUniverse)
	}

	result.FinalCapital = value
	result.Summary = summarize(result.Records, e.cfg.periodsPerYear(), e.cfg.RiskFreeRate)
	e.state.Store(int32(StateCompleted))
	e.log.WithFields(map[string]interface{}{
		"total_return": result.Summary.TotalReturn,
		"sharpe":       result.Summary.Sharpe,
	}).Info("backtest completed")
	return result, nil
}

func (e *Engine) fail(partial *Result, last time.Time, err error) (*Result, error) {
	e.state.Store(int32(StateFailed))
	partial.Summary = summarize(partial.Records, e.cfg.periodsPerYear(), e.cfg.RiskFreeRate)
	runErr := &RunError{LastRebalance: last, Err: err}
	e.log.WithError(runErr).Error("backtest failed")
	return partial, runErr
}

// rebalanceDates derives the schedule: the last trading day of each period
// inside the configured window.
func (e *Engine) rebalanceDates(cal *frame.Calendar) []time.Time {
	switch e.cfg.RebalanceFreq {
	case Daily:
		return cal.Between(e.cfg.Start, e.cfg.End)
	case Weekly:
		return cal.LastPerWeek(e.cfg.Start, e.cfg.End)
	default:
		return cal.LastPerMonth(e.cfg.Start, e.cfg.End)
	}
}

// selectHoldings ranks the row's eligible scores and assigns weights.
// Ties are broken by security identifier so a rerun picks the same names.
func (e *Engine) selectHoldings(scores, mask *frame.Frame, row int) []Holding {
	if row < 0 {
		return nil
	}
	type candidate struct {
		id    string
		score float64
	}
	var cands []candidate
	for j := 0; j < scores.NumCols(); j++ {
		v := scores.At(row, j)
		if frame.Missing(v) {
			continue
		}
		if mask != nil && frame.Missing(mask.At(row, j)) {
			continue
		}
		cands = append(cands, candidate{scores.SecurityAt(j), v})
	}
	if len(cands) == 0 {
		return nil
	}
	sort.Slice(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		return cands[a].id < cands[b].id
	})
	if len(cands) > e.cfg.TopK {
		cands = cands[:e.cfg.TopK]
	}

	weights := make(map[string]float64, len(cands))
	switch e.cfg.Weighting {
	case ScoreWeight:
		lo, hi := cands[len(cands)-1].score, cands[0].score
		if hi == lo {
			for _, c := range cands {
				weights[c.id] = 1.0 / float64(len(cands))
			}
			break
		}
		// min-max normalize with a floor so the weakest pick still
		// carries weight
		floor := 1.0 / float64(len(cands))
		total := 0.0
		for _, c := range cands {
			w := (c.score-lo)/(hi-lo) + floor
			weights[c.id] = w
			total += w
		}
		for id := range weights {
			weights[id] /= total
		}
	default:
		for _, c := range cands {
			weights[c.id] = 1.0 / float64(len(cands))
		}
	}
	weights = allocator.CapWeights(weights, e.cfg.MaxWeight)

	holdings := make([]Holding, 0, len(cands))
	for _, c := range cands {
		holdings = append(holdings, Holding{Security: c.id, Weight: weights[c.id], Score: c.score})
	}
	return holdings
}

// accrue compounds the weighted daily returns over rows (startIdx, endIdx].
// Contributions are summed in holding order, never map order, so repeated
// runs produce bit-identical results. A held security without usable prices
// on a day contributes a flat return and bumps the gap counter rather than
// aborting the run.
func accrue(prices *frame.Frame, holdings []Holding, startIdx, endIdx int) (growth float64, gaps int) {
	growth = 1.0
	for t := startIdx + 1; t <= endIdx; t++ {
		dayReturn := 0.0
		for _, h := range holdings {
			j := prices.ColIndex(h.Security)
			if j < 0 {
				gaps++
				continue
			}
			p1, p0 := prices.At(t, j), prices.At(t-1, j)
			if frame.Missing(p1) || frame.Missing(p0) || p0 == 0 {
				gaps++
				continue
			}
			dayReturn += h.Weight * (p1/p0 - 1)
		}
		growth *= 1 + dayReturn
	}
	return growth, gaps
}

// weightTurnover is the sum of absolute weight changes between two
// portfolios, counting entries and exits. Summation walks the sorted union
// of identifiers so the float accumulation order is fixed.
func weightTurnover(prev, next map[string]float64) float64 {
	ids := make([]string, 0, len(prev)+len(next))
	for id := range next {
		ids = append(ids, id)
	}
	for id := range prev {
		if _, held := next[id]; !held {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	total := 0.0
	for _, id := range ids {
		total += abs(next[id] - prev[id])
	}
	return total
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
