// Package strategy defines the contract between user-authored scoring logic
// and the backtest engine. A strategy turns a frozen data store into a score
// matrix; higher scores mean more attractive. It never sees portfolio state,
// execution, or costs.
package strategy

import (
	"errors"
	"fmt"

	"github.com/linchuan/factorhub/internal/frame"
	"github.com/linchuan/factorhub/internal/store"
)

// Strategy produces a score frame over the store's calendar and universe.
// Missing scores mean "not rankable on that date".
type Strategy interface {
	Name() string
	Compute(s *store.Store) (*frame.Frame, error)
}

// UniverseFilter is an optional capability. When a strategy implements it,
// the engine restricts each rebalance to securities whose mask cell is
// present; everything else is treated as ineligible that day.
type UniverseFilter interface {
	FilterUniverse(s *store.Store) (*frame.Frame, error)
}

// ErrUnknownStrategy is returned when a name has no registered constructor.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// InvalidParameterError reports a bad or unknown option at construction.
// Parameters are validated before any data is touched, never mid-run.
type InvalidParameterError struct {
	Strategy string
	Param    string
	Reason   string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("strategy %q: parameter %q: %s", e.Strategy, e.Param, e.Reason)
}
