package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/store"
	"github.com/linchuan/factorhub/pkg/logger"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// scoreByClose ranks securities by their aligned close, so the pricier
// security always wins.
type scoreByClose struct{}

func (scoreByClose) Name() string { return "score_by_close" }

func (scoreByClose) Compute(s *store.Store) (*frame.Frame, error) {
	return s.Get("close")
}

// fixedScore always scores exactly one security and leaves the rest
// missing.
type fixedScore struct{ target string }

func (f fixedScore) Name() string { return "fixed_score" }

func (f fixedScore) Compute(s *store.Store) (*frame.Frame, error) {
	out, err := frame.New(s.Calendar().Days(), s.Universe())
	if err != nil {
		return nil, err
	}
	j := out.ColIndex(f.target)
	for i := 0; i < out.NumRows(); i++ {
		out.Set(i, j, 1)
	}
	return out, nil
}

// neverScores returns an all-missing frame.
type neverScores struct{}

func (neverScores) Name() string { return "never_scores" }

func (neverScores) Compute(s *store.Store) (*frame.Frame, error) {
	return frame.New(s.Calendar().Days(), s.Universe())
}

// aaaPrice is AAA's synthetic close on the k-th trading day.
func aaaPrice(k int) float64 { return 100 * math.Pow(1.01, float64(k)) }

// newBacktestStore builds a frozen store over Q1 2025 weekdays. AAA
// compounds 1% per trading day, BBB is flat at 50, so AAA always has the
// higher close. withBBBPrices controls whether BBB gets any close data.
func newBacktestStore(t *testing.T, withBBBPrices bool) *store.Store {
	t.Helper()
	cal, err := frame.Weekdays(d(2025, time.January, 2), d(2025, time.March, 31))
	require.NoError(t, err)

	s, err := store.New(cal, []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.NoError(t, s.RegisterField(store.FieldSpec{Name: "close", Frequency: store.Daily}))

	var obs []store.Observation
	for k, day := range cal.Days() {
		obs = append(obs, store.Observation{Security: "AAA", PeriodEnd: day, Value: aaaPrice(k)})
		if withBBBPrices {
			obs = append(obs, store.Observation{Security: "BBB", PeriodEnd: day, Value: 50})
		}
	}
	require.NoError(t, s.Append("close", obs))
	s.Freeze()
	return s
}

func q1Config() Config {
	cfg := DefaultConfig(d(2025, time.January, 2), d(2025, time.March, 31))
	cfg.TopK = 1
	cfg.CostRate = 0
	return cfg
}

func TestRun_MatchesBuyAndHoldPerPeriod(t *testing.T) {
	s := newBacktestStore(t, true)
	eng, err := New(q1Config(), scoreByClose{}, s, logger.NewNop())
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, eng.State())

	// monthly cadence over Q1 rebalances on the last trading day of
	// January, February and March
	require.Len(t, res.Records, 3)
	cal := s.Calendar()
	jan := cal.IndexOf(res.Records[0].Date)
	feb := cal.IndexOf(res.Records[1].Date)
	mar := cal.IndexOf(res.Records[2].Date)

	for _, r := range res.Records {
		require.Len(t, r.Holdings, 1)
		assert.Equal(t, "AAA", r.Holdings[0].Security, "higher close always wins")
		assert.Equal(t, 1.0, r.Holdings[0].Weight)
		assert.Zero(t, r.DataGaps)
	}

	// each period's return is AAA's own price ratio: buy-and-hold of the
	// selected security with zero cost
	assert.InDelta(t, aaaPrice(feb)/aaaPrice(jan)-1, res.Records[0].Return, 1e-9)
	assert.InDelta(t, aaaPrice(mar)/aaaPrice(feb)-1, res.Records[1].Return, 1e-9)
	assert.InDelta(t, 0.0, res.Records[2].Return, 1e-12, "final rebalance has no accrual days left")

	assert.InDelta(t, aaaPrice(mar)/aaaPrice(jan)-1, res.Summary.TotalReturn, 1e-9)
	assert.InDelta(t, res.InitialCapital*(1+res.Summary.TotalReturn), res.FinalCapital, 1e-6)
}

func TestRun_Deterministic(t *testing.T) {
	s := newBacktestStore(t, true)

	run := func() *Result {
		eng, err := New(q1Config(), scoreByClose{}, s, logger.NewNop())
		require.NoError(t, err)
		res, err := eng.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, run(), run())
}

// newWideStore builds a frozen store over Q1 2025 weekdays with seven
// securities on irregular price paths, so a score-weighted selection
// carries seven distinct weights.
func newWideStore(t *testing.T) *store.Store {
	t.Helper()
	cal, err := frame.Weekdays(d(2025, time.January, 2), d(2025, time.March, 31))
	require.NoError(t, err)

	secs := []string{"S1", "S2", "S3", "S4", "S5", "S6", "S7"}
	s, err := store.New(cal, secs)
	require.NoError(t, err)
	require.NoError(t, s.RegisterField(store.FieldSpec{Name: "close", Frequency: store.Daily}))

	var obs []store.Observation
	for j, sec := range secs {
		price := 20.0 + 10*float64(j)
		for k, day := range cal.Days() {
			price *= 1 + 0.002*float64(j-3) + 0.01*math.Sin(float64(k*(j+2)))
			obs = append(obs, store.Observation{Security: sec, PeriodEnd: day, Value: price})
		}
	}
	require.NoError(t, s.Append("close", obs))
	s.Freeze()
	return s
}

func TestRun_DeterministicScoreWeighted(t *testing.T) {
	s := newWideStore(t)

	cfg := DefaultConfig(d(2025, time.January, 2), d(2025, time.March, 31))
	cfg.RebalanceFreq = Weekly
	cfg.TopK = 7
	cfg.Weighting = ScoreWeight
	cfg.MaxWeight = 0.22

	run := func() *Result {
		eng, err := New(cfg, scoreByClose{}, s, logger.NewNop())
		require.NoError(t, err)
		res, err := eng.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	// Weekly cadence with seven capped, unevenly weighted holdings: every
	// period sums many float contributions, so any order dependence in the
	// accumulation shows up as a last-ulp difference between runs.
	base := run()
	for i := 0; i < 50; i++ {
		res := run()
		require.Equal(t, base.Records, res.Records, "run %d diverged", i)
		require.Equal(t, base.FinalCapital, res.FinalCapital)
	}
}

func TestRun_TurnoverAndCostDrag(t *testing.T) {
	s := newBacktestStore(t, true)
	cfg := q1Config()
	cfg.CostRate = 0.01
	eng, err := New(cfg, scoreByClose{}, s, logger.NewNop())
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)

	// first rebalance buys the whole book, later ones keep holding AAA
	assert.InDelta(t, 1.0, res.Records[0].Turnover, 1e-12)
	assert.InDelta(t, 0.01, res.Records[0].Cost, 1e-12)
	assert.InDelta(t, 0.0, res.Records[1].Turnover, 1e-12)

	cal := s.Calendar()
	jan := cal.IndexOf(res.Records[0].Date)
	feb := cal.IndexOf(res.Records[1].Date)
	assert.InDelta(t, aaaPrice(feb)/aaaPrice(jan)-1-0.01, res.Records[0].Return, 1e-9)
}

func TestRun_MissingPricesCountAsGaps(t *testing.T) {
	s := newBacktestStore(t, false)
	eng, err := New(q1Config(), fixedScore{target: "BBB"}, s, logger.NewNop())
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.NoError(t, err)

	// BBB is held but never priced: every accrual day is flat and flagged
	assert.Greater(t, res.Records[0].DataGaps, 0)
	assert.InDelta(t, 0.0, res.Records[0].Return, 1e-12)
	assert.Equal(t, StateCompleted, eng.State())
}

func TestRun_EmptyUniverseFails(t *testing.T) {
	s := newBacktestStore(t, true)
	eng, err := New(q1Config(), neverScores{}, s, logger.NewNop())
	require.NoError(t, err)

	res, err := eng.Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyUniverse)
	assert.Equal(t, StateFailed, eng.State())

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.False(t, runErr.LastRebalance.IsZero())
	require.NotNil(t, res, "partial result stays inspectable")
	assert.Len(t, res.Records, 3)
}

func TestRun_AbortKeepsPartialResult(t *testing.T) {
	s := newBacktestStore(t, true)
	eng, err := New(q1Config(), scoreByClose{}, s, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := eng.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, eng.State())
	require.NotNil(t, res)
	assert.Empty(t, res.Records)
}

func TestRun_SingleUse(t *testing.T) {
	s := newBacktestStore(t, true)
	eng, err := New(q1Config(), scoreByClose{}, s, logger.NewNop())
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)
	_, err = eng.Run(context.Background())
	assert.Error(t, err)
}

func TestNew_ConfigValidation(t *testing.T) {
	s := newBacktestStore(t, true)
	base := q1Config()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"end before start", func(c *Config) { c.End = c.Start.AddDate(0, 0, -1) }},
		{"zero capital", func(c *Config) { c.InitialCapital = 0 }},
		{"bad frequency", func(c *Config) { c.RebalanceFreq = "hourly" }},
		{"negative cost", func(c *Config) { c.CostRate = -0.01 }},
		{"zero top-k", func(c *Config) { c.TopK = 0 }},
		{"bad weighting", func(c *Config) { c.Weighting = "inverse" }},
		{"bad max weight", func(c *Config) { c.MaxWeight = 1.5 }},
		{"empty price field", func(c *Config) { c.PriceField = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := New(cfg, scoreByClose{}, s, logger.NewNop())
			assert.ErrorIs(t, err, ErrBadConfig)
		})
	}
}

func TestSummarize(t *testing.T) {
	records := []PeriodRecord{
		{Date: d(2025, time.January, 31), Return: 0.10, Turnover: 1.0, Holdings: make([]Holding, 2)},
		{Date: d(2025, time.February, 28), Return: -0.05, Turnover: 0.5, Holdings: make([]Holding, 2)},
	}
	s := summarize(records, 12, 0)

	assert.InDelta(t, 0.045, s.TotalReturn, 1e-12)
	assert.InDelta(t, math.Pow(1.045, 6)-1, s.AnnualizedReturn, 1e-12)
	assert.InDelta(t, 0.5, s.WinRate, 1e-12)
	assert.InDelta(t, 2.0, s.AvgPositions, 1e-12)
	assert.InDelta(t, 0.75*12, s.AnnualTurnover, 1e-12)

	// drawdown: peak 1.10 after January, trough 1.045 after February
	assert.InDelta(t, 1-1.045/1.10, s.MaxDrawdown, 1e-12)
	assert.Equal(t, 28, s.MaxDrawdownDays)

	sampleStd := math.Sqrt(2*0.075*0.075) * math.Sqrt(12)
	assert.InDelta(t, sampleStd, s.Volatility, 1e-12)
	assert.InDelta(t, s.AnnualizedReturn/s.Volatility, s.Sharpe, 1e-12)
}

func TestSummarize_Empty(t *testing.T) {
	s := summarize(nil, 12, 0.02)
	assert.Zero(t, s.TotalReturn)
	assert.Zero(t, s.Sharpe)
}
