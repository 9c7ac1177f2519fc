// Package allocator turns a cross-section of scores into an integer-share
// position list under capital and concentration constraints.
package allocator

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrBadConfig wraps configuration problems caught before any allocation.
var ErrBadConfig = errors.New("allocator: invalid configuration")

// ErrInsufficientUniverse means no eligible security was available at all.
// Having fewer eligible names than MaxPositions is not an error; the
// allocator spreads capital over what exists.
var ErrInsufficientUniverse = errors.New("allocator: no eligible securities")

// Config holds the allocation constraints.
type Config struct {
	Capital      float64
	MaxPositions int
	MaxWeight    float64
}

func (c *Config) validate() error {
	if c.Capital <= 0 {
		return fmt.Errorf("%w: capital must be positive", ErrBadConfig)
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("%w: max positions must be positive", ErrBadConfig)
	}
	if c.MaxWeight <= 0 || c.MaxWeight > 1 {
		return fmt.Errorf("%w: max weight must be in (0, 1]", ErrBadConfig)
	}
	return nil
}

// Position is one allocated holding. Weight is the constrained target;
// Value is what the whole-share count actually buys.
type Position struct {
	Security string  `json:"security"`
	Weight   float64 `json:"weight"`
	Price    float64 `json:"price"`
	Shares   int64   `json:"shares"`
	Value    float64 `json:"value"`
}

// Allocation is the result of one allocate call. Cash holds whatever the
// whole-share rounding and weight caps left unspent.
type Allocation struct {
	Positions []Position `json:"positions"`
	Cash      float64    `json:"cash"`
	Capital   float64    `json:"capital"`
}

// Allocate selects the top MaxPositions securities by score (ties broken by
// identifier), assigns equal weights, caps them at MaxWeight with
// proportional redistribution, and converts the result to whole shares at
// the given prices, rounding down.
//
// Securities without a usable price cannot be bought and are ineligible.
// When every selected position ends up capped the weights sum to less than
// one and the residual stays in cash.
func Allocate(scores, prices map[string]float64, cfg Config) (*Allocation, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	type candidate struct {
		id    string
		score float64
	}
	var cands []candidate
	for id, s := range scores {
		if math.IsNaN(s) {
			continue
		}
		if p, ok := prices[id]; !ok || math.IsNaN(p) || p <= 0 {
			continue
		}
		cands = append(cands, candidate{id, s})
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: %d scored, 0 priced and rankable", ErrInsufficientUniverse, len(scores))
	}

	sort.Slice(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		return cands[a].id < cands[b].id
	})
	if len(cands) > cfg.MaxPositions {
		cands = cands[:cfg.MaxPositions]
	}

	weights := make(map[string]float64, len(cands))
	for _, c := range cands {
		weights[c.id] = 1.0 / float64(len(cands))
	}
	weights = CapWeights(weights, cfg.MaxWeight)

	alloc := &Allocation{Capital: cfg.Capital}
	spent := 0.0
	for _, c := range cands {
		w := weights[c.id]
		price := prices[c.id]
		shares := int64(math.Floor(cfg.Capital * w / price))
		value := float64(shares) * price
		spent += value
		alloc.Positions = append(alloc.Positions, Position{
			Security: c.id,
			Weight:   w,
			Price:    price,
			Shares:   shares,
			Value:    value,
		})
	}
	alloc.Cash = cfg.Capital - spent
	return alloc, nil
}

// CapWeights clips every weight above max and redistributes the excess
// proportionally among the uncapped positions, iterating until nothing
// exceeds the cap. A single remaining uncapped position absorbs the whole
// excess even when that leaves it above max; if everything is capped the
// excess is dropped and the weights sum to less than their original total.
func CapWeights(weights map[string]float64, max float64) map[string]float64 {
	out := make(map[string]float64, len(weights))
	ids := make([]string, 0, len(weights))
	for id, w := range weights {
		out[id] = w
		ids = append(ids, id)
	}
	if max >= 1 {
		return out
	}
	// Every sum below walks ids in sorted order; the float accumulation
	// order is fixed, so repeated calls return bit-identical weights.
	sort.Strings(ids)

	capped := make(map[string]bool, len(out))
	for {
		excess := 0.0
		for _, id := range ids {
			if w := out[id]; !capped[id] && w > max {
				excess += w - max
				out[id] = max
				capped[id] = true
			}
		}
		if excess == 0 {
			return out
		}

		var pool []string
		poolSum := 0.0
		for _, id := range ids {
			if !capped[id] {
				pool = append(pool, id)
				poolSum += out[id]
			}
		}
		if len(pool) == 0 {
			return out
		}
		if len(pool) == 1 {
			out[pool[0]] += excess
			return out
		}
		if poolSum == 0 {
			for _, id := range pool {
				out[id] += excess / float64(len(pool))
			}
			continue
		}
		for _, id := range pool {
			out[id] += excess * out[id] / poolSum
		}
	}
}
