package store

import (
	"fmt"
	"time"
)

// Frequency is the native observation frequency of a field.
type Frequency string

const (
	Daily     Frequency = "daily"
	Monthly   Frequency = "monthly"
	Quarterly Frequency = "quarterly"
)

// Default staleness horizons per frequency class, in calendar days from the
// observation's visible date. Tight for daily series, generous for quarterly.
const (
	defaultDailyStalenessDays     = 7
	defaultMonthlyStalenessDays   = 45
	defaultQuarterlyStalenessDays = 120
)

// FieldSpec describes one registered field: a named quantity with a native
// frequency and a disclosure lag (calendar days between period end and the
// date the value became publicly knowable).
type FieldSpec struct {
	Name          string
	Frequency     Frequency
	LagDays       int
	StalenessDays int // 0 means the frequency-class default
}

// Validate checks the spec at registration time.
func (fs FieldSpec) Validate() error {
	if fs.Name == "" {
		return fmt.Errorf("field spec: empty name")
	}
	switch fs.Frequency {
	case Daily, Monthly, Quarterly:
	default:
		return fmt.Errorf("field spec %q: unknown frequency %q", fs.Name, fs.Frequency)
	}
	if fs.LagDays < 0 {
		return fmt.Errorf("field spec %q: disclosure lag must be >= 0", fs.Name)
	}
	if fs.StalenessDays < 0 {
		return fmt.Errorf("field spec %q: staleness horizon must be >= 0", fs.Name)
	}
	return nil
}

// staleness returns the effective staleness horizon in calendar days.
func (fs FieldSpec) staleness() int {
	if fs.StalenessDays > 0 {
		return fs.StalenessDays
	}
	switch fs.Frequency {
	case Monthly:
		return defaultMonthlyStalenessDays
	case Quarterly:
		return defaultQuarterlyStalenessDays
	default:
		return defaultDailyStalenessDays
	}
}

// Observation is one raw native-frequency row supplied by a loader:
// the value a security reported for the period ending at PeriodEnd.
// DisclosedOn, when set by the upstream adapter, overrides the derived
// visible date (PeriodEnd + LagDays).
type Observation struct {
	Security    string
	PeriodEnd   time.Time
	Value       float64
	DisclosedOn *time.Time
}

// visibleDate returns the first date the observation is legitimately knowable.
func (o Observation) visibleDate(spec FieldSpec) time.Time {
	if o.DisclosedOn != nil {
		return dateOnly(*o.DisclosedOn)
	}
	return dateOnly(o.PeriodEnd).AddDate(0, 0, spec.LagDays)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
