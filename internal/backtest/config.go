package backtest

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadConfig wraps every configuration problem caught at construction.
var ErrBadConfig = errors.New("backtest: invalid configuration")

// Frequency is the rebalance cadence.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Weighting picks how target weights are assigned to the selected names.
type Weighting string

const (
	// EqualWeight gives every selected security the same weight.
	EqualWeight Weighting = "equal"
	// ScoreWeight weights proportionally to the min-max normalized scores.
	ScoreWeight Weighting = "score"
)

// Config holds everything a run needs. Every field has an explicit default
// so a run is reproducible from a strategy name alone.
type Config struct {
	Start          time.Time
	End            time.Time
	InitialCapital float64
	RebalanceFreq  Frequency
	CostRate       float64
	TopK           int
	Weighting      Weighting
	MaxWeight      float64
	RiskFreeRate   float64
	PriceField     string
}

// DefaultConfig returns the baseline parameters for a run over [start, end].
func DefaultConfig(start, end time.Time) Config {
	return Config{
		Start:          start,
		End:            end,
		InitialCapital: 1_000_000,
		RebalanceFreq:  Monthly,
		CostRate:       0.001425,
		TopK:           10,
		Weighting:      EqualWeight,
		MaxWeight:      1.0,
		RiskFreeRate:   0.02,
		PriceField:     "close",
	}
}

func (c *Config) validate() error {
	if c.Start.IsZero() || c.End.IsZero() || c.End.Before(c.Start) {
		return fmt.Errorf("%w: start/end range is empty", ErrBadConfig)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive", ErrBadConfig)
	}
	switch c.RebalanceFreq {
	case Daily, Weekly, Monthly:
	default:
		return fmt.Errorf("%w: unknown rebalance frequency %q", ErrBadConfig, c.RebalanceFreq)
	}
	if c.CostRate < 0 {
		return fmt.Errorf("%w: cost rate must not be negative", ErrBadConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top-k must be positive", ErrBadConfig)
	}
	switch c.Weighting {
	case EqualWeight, ScoreWeight:
	default:
		return fmt.Errorf("%w: unknown weighting %q", ErrBadConfig, c.Weighting)
	}
	if c.MaxWeight <= 0 || c.MaxWeight > 1 {
		return fmt.Errorf("%w: max weight must be in (0, 1]", ErrBadConfig)
	}
	if c.PriceField == "" {
		return fmt.Errorf("%w: price field is required", ErrBadConfig)
	}
	return nil
}

// periodsPerYear is the annualization factor for the cadence.
func (c *Config) periodsPerYear() float64 {
	switch c.RebalanceFreq {
	case Daily:
		return 252
	case Weekly:
		return 52
	default:
		return 12
	}
}
