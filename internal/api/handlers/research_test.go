package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/store"
	"github.com/linchuan/factorhub/internal/strategy"
	"github.com/linchuan/factorhub/pkg/config"
	"github.com/linchuan/factorhub/pkg/logger"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func newTestHandler(t *testing.T) *ResearchHandler {
	t.Helper()
	cal, err := frame.Weekdays(d(2025, time.January, 2), d(2025, time.March, 31))
	require.NoError(t, err)

	s, err := store.New(cal, []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.NoError(t, s.RegisterField(store.FieldSpec{Name: "close", Frequency: store.Daily}))

	var obs []store.Observation
	aaa, bbb := 100.0, 50.0
	for _, day := range cal.Days() {
		obs = append(obs,
			store.Observation{Security: "AAA", PeriodEnd: day, Value: aaa},
			store.Observation{Security: "BBB", PeriodEnd: day, Value: bbb},
		)
		aaa *= 1.01
		bbb *= 0.999
	}
	require.NoError(t, s.Append("close", obs))
	s.Freeze()

	cfg := &config.Config{
		Port: "8086",
		Env:  "development",
		Backtest: config.BacktestConfig{
			InitialCapital: 1_000_000,
			RebalanceFreq:  "monthly",
			CostRate:       0,
			TopK:           2,
			Weighting:      "equal",
			RiskFreeRate:   0.02,
			PriceField:     "close",
		},
		Allocator: config.AllocatorConfig{
			Capital:      100_000,
			MaxPositions: 2,
			MaxWeight:    0.6,
		},
	}
	return NewResearchHandler(s, strategy.Builtins(), cfg, logger.NewNop())
}

func TestListFields(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ListFields(rec, httptest.NewRequest("GET", "/api/fields", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Fields []fieldInfo `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "close", body.Fields[0].Name)
	assert.Equal(t, "daily", body.Fields[0].Frequency)
}

func TestListStrategies(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.ListStrategies(rec, httptest.NewRequest("GET", "/api/strategies", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Strategies []string `json:"strategies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"low_volatility", "momentum"}, body.Strategies)
}

func TestRunBacktest(t *testing.T) {
	h := newTestHandler(t)
	body := `{"strategy":"momentum","params":{"lookback":5},"start":"2025-01-02","end":"2025-03-31"}`
	rec := httptest.NewRecorder()
	h.RunBacktest(rec, httptest.NewRequest("POST", "/api/backtest", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Strategy string `json:"strategy"`
		Records  []struct {
			Date string `json:"date"`
		} `json:"records"`
		Summary struct {
			TotalReturn float64 `json:"total_return"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "momentum", res.Strategy)
	assert.Len(t, res.Records, 3, "one record per month in Q1")
}

func TestRunBacktest_UnknownStrategy(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.RunBacktest(rec, httptest.NewRequest("POST", "/api/backtest", strings.NewReader(`{"strategy":"nope"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunBacktest_BadParams(t *testing.T) {
	h := newTestHandler(t)
	body := `{"strategy":"momentum","params":{"lookbak":5}}`
	rec := httptest.NewRecorder()
	h.RunBacktest(rec, httptest.NewRequest("POST", "/api/backtest", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunBacktest_BadDate(t *testing.T) {
	h := newTestHandler(t)
	body := `{"strategy":"momentum","start":"yesterday"}`
	rec := httptest.NewRecorder()
	h.RunBacktest(rec, httptest.NewRequest("POST", "/api/backtest", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllocate(t *testing.T) {
	h := newTestHandler(t)
	body := `{"strategy":"momentum","params":{"lookback":5}}`
	rec := httptest.NewRecorder()
	h.Allocate(rec, httptest.NewRequest("POST", "/api/allocate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		AsOf       string `json:"as_of"`
		Allocation struct {
			Positions []struct {
				Security string  `json:"security"`
				Shares   int64   `json:"shares"`
				Weight   float64 `json:"weight"`
			} `json:"positions"`
			Cash float64 `json:"cash"`
		} `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "2025-03-31", res.AsOf)
	require.Len(t, res.Allocation.Positions, 2)
	for _, p := range res.Allocation.Positions {
		assert.Positive(t, p.Shares)
		assert.LessOrEqual(t, p.Weight, 0.6)
	}
}

func TestAllocate_NoScoresYet(t *testing.T) {
	h := newTestHandler(t)
	// on the very first trading day the momentum lookback has no history
	body := `{"strategy":"momentum","params":{"lookback":5},"as_of":"2025-01-02"}`
	rec := httptest.NewRecorder()
	h.Allocate(rec, httptest.NewRequest("POST", "/api/allocate", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAllocate_UsesConfiguredPriceField(t *testing.T) {
	cal, err := frame.Weekdays(d(2025, time.January, 2), d(2025, time.March, 31))
	require.NoError(t, err)

	s, err := store.New(cal, []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.NoError(t, s.RegisterField(store.FieldSpec{Name: "close", Frequency: store.Daily}))
	require.NoError(t, s.RegisterField(store.FieldSpec{Name: "adj_close", Frequency: store.Daily}))

	// raw closes drift upward, adjusted closes are flat at 10, so shares
	// reveal which field priced the allocation
	var closes, adjusted []store.Observation
	aaa, bbb := 100.0, 50.0
	for _, day := range cal.Days() {
		closes = append(closes,
			store.Observation{Security: "AAA", PeriodEnd: day, Value: aaa},
			store.Observation{Security: "BBB", PeriodEnd: day, Value: bbb},
		)
		adjusted = append(adjusted,
			store.Observation{Security: "AAA", PeriodEnd: day, Value: 10},
			store.Observation{Security: "BBB", PeriodEnd: day, Value: 10},
		)
		aaa *= 1.01
		bbb *= 1.001
	}
	require.NoError(t, s.Append("close", closes))
	require.NoError(t, s.Append("adj_close", adjusted))
	s.Freeze()

	cfg := &config.Config{
		Port: "8086",
		Env:  "development",
		Backtest: config.BacktestConfig{
			InitialCapital: 1_000_000,
			RebalanceFreq:  "monthly",
			TopK:           2,
			Weighting:      "equal",
			RiskFreeRate:   0.02,
			PriceField:     "adj_close",
		},
		Allocator: config.AllocatorConfig{
			Capital:      100_000,
			MaxPositions: 2,
			MaxWeight:    0.6,
		},
	}
	h := NewResearchHandler(s, strategy.Builtins(), cfg, logger.NewNop())

	body := `{"strategy":"momentum","params":{"lookback":5}}`
	rec := httptest.NewRecorder()
	h.Allocate(rec, httptest.NewRequest("POST", "/api/allocate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Allocation struct {
			Positions []struct {
				Security string  `json:"security"`
				Price    float64 `json:"price"`
				Shares   int64   `json:"shares"`
			} `json:"positions"`
		} `json:"allocation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Allocation.Positions, 2)
	for _, p := range res.Allocation.Positions {
		assert.Equal(t, 10.0, p.Price, "priced from adj_close, not close")
		assert.Equal(t, int64(5000), p.Shares)
	}
}

func TestAllocate_BadConfigOverride(t *testing.T) {
	h := newTestHandler(t)
	body := `{"strategy":"momentum","params":{"lookback":5},"max_weight":2.0}`
	rec := httptest.NewRecorder()
	h.Allocate(rec, httptest.NewRequest("POST", "/api/allocate", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
