// Package handlers contains the HTTP handlers for the research API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/linchuan/factorhub/internal/allocator"
	"github.com/linchuan/factorhub/internal/backtest"
	"github.com/linchuan/factorhub/internal/store"
	"github.com/linchuan/factorhub/internal/strategy"
	"github.com/linchuan/factorhub/pkg/config"
	"github.com/linchuan/factorhub/pkg/logger"
)

const dateLayout = "2006-01-02"

// ResearchHandler serves field metadata, backtests, and allocations over a
// frozen data store.
type ResearchHandler struct {
	store    *store.Store
	registry *strategy.Registry
	config   *config.Config
	logger   *logger.Logger
}

// NewResearchHandler creates the handler.
func NewResearchHandler(st *store.Store, reg *strategy.Registry, cfg *config.Config, log *logger.Logger) *ResearchHandler {
	return &ResearchHandler{store: st, registry: reg, config: cfg, logger: log}
}

type fieldInfo struct {
	Name          string `json:"name"`
	Frequency     string `json:"frequency"`
	LagDays       int    `json:"lag_days"`
	StalenessDays int    `json:"staleness_days"`
}

// ListFields returns the registered field specs.
// GET /api/fields
func (h *ResearchHandler) ListFields(w http.ResponseWriter, r *http.Request) {
	fields := h.store.Fields()
	out := make([]fieldInfo, 0, len(fields))
	for _, name := range fields {
		spec, err := h.store.Spec(name)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read field spec")
			respondError(w, http.StatusInternalServerError, "Failed to read field specs")
			return
		}
		out = append(out, fieldInfo{
			Name:          spec.Name,
			Frequency:     string(spec.Frequency),
			LagDays:       spec.LagDays,
			StalenessDays: spec.StalenessDays,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fields": out})
}

// ListStrategies returns the registered strategy names.
// GET /api/strategies
func (h *ResearchHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"strategies": h.registry.Names()})
}

type backtestRequest struct {
	Strategy  string          `json:"strategy"`
	Params    strategy.Params `json:"params"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Capital   *float64        `json:"capital"`
	Rebalance string          `json:"rebalance"`
	CostRate  *float64        `json:"cost_rate"`
	TopK      *int            `json:"top_k"`
	Weighting string          `json:"weighting"`
	MaxWeight *float64        `json:"max_weight"`
}

// RunBacktest builds the named strategy and replays it over the window.
// POST /api/backtest
func (h *ResearchHandler) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.backtestConfig(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	strat, err := h.registry.New(req.Strategy, req.Params)
	if err != nil {
		respondStrategyError(w, err)
		return
	}

	engine, err := backtest.New(cfg, strat, h.store, h.logger)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := engine.Run(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Backtest run failed")
		status := http.StatusInternalServerError
		if errors.Is(err, backtest.ErrEmptyUniverse) {
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *ResearchHandler) backtestConfig(req backtestRequest) (backtest.Config, error) {
	cal := h.store.Calendar()
	start, end := cal.First(), cal.Last()
	var err error
	if req.Start != "" {
		if start, err = time.Parse(dateLayout, req.Start); err != nil {
			return backtest.Config{}, fmt.Errorf("invalid start date %q", req.Start)
		}
	}
	if req.End != "" {
		if end, err = time.Parse(dateLayout, req.End); err != nil {
			return backtest.Config{}, fmt.Errorf("invalid end date %q", req.End)
		}
	}

	cfg := backtest.DefaultConfig(start, end)
	cfg.InitialCapital = h.config.Backtest.InitialCapital
	cfg.RebalanceFreq = backtest.Frequency(h.config.Backtest.RebalanceFreq)
	cfg.CostRate = h.config.Backtest.CostRate
	cfg.TopK = h.config.Backtest.TopK
	cfg.Weighting = backtest.Weighting(h.config.Backtest.Weighting)
	cfg.RiskFreeRate = h.config.Backtest.RiskFreeRate
	cfg.PriceField = h.config.Backtest.PriceField

	if req.Capital != nil {
		cfg.InitialCapital = *req.Capital
	}
	if req.Rebalance != "" {
		cfg.RebalanceFreq = backtest.Frequency(req.Rebalance)
	}
	if req.CostRate != nil {
		cfg.CostRate = *req.CostRate
	}
	if req.TopK != nil {
		cfg.TopK = *req.TopK
	}
	if req.Weighting != "" {
		cfg.Weighting = backtest.Weighting(req.Weighting)
	}
	if req.MaxWeight != nil {
		cfg.MaxWeight = *req.MaxWeight
	}
	return cfg, nil
}

type allocateRequest struct {
	Strategy     string          `json:"strategy"`
	Params       strategy.Params `json:"params"`
	AsOf         string          `json:"as_of"`
	Capital      *float64        `json:"capital"`
	MaxPositions *int            `json:"max_positions"`
	MaxWeight    *float64        `json:"max_weight"`
}

// Allocate scores the universe as of a date and converts the cross-section
// into an integer position list.
// POST /api/allocate
func (h *ResearchHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cal := h.store.Calendar()
	asOf := cal.Last()
	if req.AsOf != "" {
		t, err := time.Parse(dateLayout, req.AsOf)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of date %q", req.AsOf))
			return
		}
		idx := cal.FloorIndex(t)
		if idx < 0 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("no trading day on or before %q", req.AsOf))
			return
		}
		asOf = cal.Days()[idx]
	}

	strat, err := h.registry.New(req.Strategy, req.Params)
	if err != nil {
		respondStrategyError(w, err)
		return
	}

	scores, prices, err := h.scoreCrossSection(strat, asOf)
	if err != nil {
		h.logger.WithError(err).Error("Scoring failed")
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cfg := allocator.Config{
		Capital:      h.config.Allocator.Capital,
		MaxPositions: h.config.Allocator.MaxPositions,
		MaxWeight:    h.config.Allocator.MaxWeight,
	}
	if req.Capital != nil {
		cfg.Capital = *req.Capital
	}
	if req.MaxPositions != nil {
		cfg.MaxPositions = *req.MaxPositions
	}
	if req.MaxWeight != nil {
		cfg.MaxWeight = *req.MaxWeight
	}

	alloc, err := allocator.Allocate(scores, prices, cfg)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, allocator.ErrBadConfig):
			status = http.StatusBadRequest
		case errors.Is(err, allocator.ErrInsufficientUniverse):
			status = http.StatusUnprocessableEntity
		}
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"as_of":      asOf.Format(dateLayout),
		"allocation": alloc,
	})
}

// scoreCrossSection computes the strategy's score row and price row on a
// date, honoring the strategy's universe filter when it has one.
func (h *ResearchHandler) scoreCrossSection(strat strategy.Strategy, asOf time.Time) (map[string]float64, map[string]float64, error) {
	scoreFrame, err := strat.Compute(h.store)
	if err != nil {
		return nil, nil, err
	}
	scores := scoreFrame.RowMap(asOf)
	if scores == nil {
		return nil, nil, fmt.Errorf("no scores available on %s", asOf.Format(dateLayout))
	}
	if uf, ok := strat.(strategy.UniverseFilter); ok {
		mask, err := uf.FilterUniverse(h.store)
		if err != nil {
			return nil, nil, err
		}
		eligible := mask.RowMap(asOf)
		for id := range scores {
			if _, ok := eligible[id]; !ok {
				delete(scores, id)
			}
		}
	}

	priceFrame, err := h.store.Get(h.config.Backtest.PriceField)
	if err != nil {
		return nil, nil, err
	}
	return scores, priceFrame.RowMap(asOf), nil
}

func respondStrategyError(w http.ResponseWriter, err error) {
	var perr *strategy.InvalidParameterError
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &perr):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
