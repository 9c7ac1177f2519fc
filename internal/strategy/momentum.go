package strategy

import (
	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/operators"
	"github.com/linchuan/factorhub/internal/store"
)

const defaultPriceField = "close"

// Momentum scores securities by their trailing price change and filters out
// anything trading below a minimum price.
type Momentum struct {
	lookback   int
	minPrice   float64
	priceField string
}

// NewMomentum validates options and builds the strategy.
//
// Options: lookback (rows, default 126), min_price (default 0, disables the
// filter), price_field (default "close").
func NewMomentum(p Params) (Strategy, error) {
	if extra := p.UnknownKeys("lookback", "min_price", "price_field"); len(extra) > 0 {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: extra[0], Reason: "unknown parameter"}
	}
	lookback, err := p.Int("lookback", 126)
	if err != nil {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: "lookback", Reason: err.Error()}
	}
	if lookback <= 0 {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: "lookback", Reason: "must be positive"}
	}
	minPrice, err := p.Float("min_price", 0)
	if err != nil {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: "min_price", Reason: err.Error()}
	}
	if minPrice < 0 {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: "min_price", Reason: "must not be negative"}
	}
	field, err := p.String("price_field", defaultPriceField)
	if err != nil {
		return nil, &InvalidParameterError{Strategy: "momentum", Param: "price_field", Reason: err.Error()}
	}
	return &Momentum{lookback: lookback, minPrice: minPrice, priceField: field}, nil
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Compute(s *store.Store) (*frame.Frame, error) {
	prices, err := s.Get(m.priceField)
	if err != nil {
		return nil, err
	}
	return operators.Momentum(prices, m.lookback), nil
}

// FilterUniverse marks securities trading at or above the minimum price as
// eligible. With no minimum configured, every priced security is eligible.
func (m *Momentum) FilterUniverse(s *store.Store) (*frame.Frame, error) {
	prices, err := s.Get(m.priceField)
	if err != nil {
		return nil, err
	}
	mask := prices.Empty()
	for i := 0; i < prices.NumRows(); i++ {
		for j := 0; j < prices.NumCols(); j++ {
			v := prices.At(i, j)
			if !frame.Missing(v) && v >= m.minPrice {
				mask.Set(i, j, 1)
			}
		}
	}
	return mask, nil
}
