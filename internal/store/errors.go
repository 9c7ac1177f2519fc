package store

import (
	"errors"
	"fmt"
	"time"
)

// Data-integrity errors: raised at the store boundary on first access,
// never deep inside operator code.
var (
	// ErrUnknownField is returned for a field name that was never registered.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownSecurity is returned for an identifier outside the active universe.
	ErrUnknownSecurity = errors.New("unknown security")

	// ErrFrozen is returned when data is appended after the store snapshot
	// was frozen for consumption.
	ErrFrozen = errors.New("store is frozen")
)

// LookaheadError reports that an alignment result would have exposed an
// observation before its visible date. It indicates a bug in the store and
// must abort the query; it is never silently corrected.
type LookaheadError struct {
	Field       string
	Security    string
	QueryDate   time.Time
	VisibleDate time.Time
}

func (e *LookaheadError) Error() string {
	return fmt.Sprintf("lookahead violation: field %q security %q: observation visible %s exposed at %s",
		e.Field, e.Security,
		e.VisibleDate.Format("2006-01-02"), e.QueryDate.Format("2006-01-02"))
}
