package strategy

import (
	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/operators"
	"github.com/linchuan/factorhub/internal/store"
)

// LowVolatility scores securities by the negated trailing volatility of
// their returns, so calmer names rank higher.
type LowVolatility struct {
	window     int
	priceField string
}

// NewLowVolatility validates options and builds the strategy.
//
// Options: window (rows, default 60), price_field (default "close").
func NewLowVolatility(p Params) (Strategy, error) {
	if extra := p.UnknownKeys("window", "price_field"); len(extra) > 0 {
		return nil, &InvalidParameterError{Strategy: "low_volatility", Param: extra[0], Reason: "unknown parameter"}
	}
	window, err := p.Int("window", 60)
	if err != nil {
		return nil, &InvalidParameterError{Strategy: "low_volatility", Param: "window", Reason: err.Error()}
	}
	if window < 2 {
		return nil, &InvalidParameterError{Strategy: "low_volatility", Param: "window", Reason: "must be at least 2"}
	}
	field, err := p.String("price_field", defaultPriceField)
	if err != nil {
		return nil, &InvalidParameterError{Strategy: "low_volatility", Param: "price_field", Reason: err.Error()}
	}
	return &LowVolatility{window: window, priceField: field}, nil
}

func (l *LowVolatility) Name() string { return "low_volatility" }

func (l *LowVolatility) Compute(s *store.Store) (*frame.Frame, error) {
	prices, err := s.Get(l.priceField)
	if err != nil {
		return nil, err
	}
	vol := operators.Volatility(prices, l.window)
	score := vol.Empty()
	for i := 0; i < vol.NumRows(); i++ {
		for j := 0; j < vol.NumCols(); j++ {
			if v := vol.At(i, j); !frame.Missing(v) {
				score.Set(i, j, -v)
			}
		}
	}
	return score, nil
}
