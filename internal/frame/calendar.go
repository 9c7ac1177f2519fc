package frame

import (
	"fmt"
	"sort"
	"time"
)

// Calendar is the registered trading-day calendar: a strictly increasing
// sequence of business dates. Alignment, rebalance scheduling and return
// accrual all index into it.
type Calendar struct {
	days []time.Time
	idx  map[int64]int
}

// NewCalendar builds a calendar from explicit trading days.
func NewCalendar(days []time.Time) (*Calendar, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("calendar: no trading days")
	}

	norm := make([]time.Time, len(days))
	for i, d := range days {
		norm[i] = DateOnly(d)
		if i > 0 && !norm[i].After(norm[i-1]) {
			return nil, fmt.Errorf("calendar: days must be strictly increasing at index %d", i)
		}
	}

	c := &Calendar{days: norm, idx: make(map[int64]int, len(norm))}
	for i, d := range norm {
		c.idx[d.Unix()] = i
	}
	return c, nil
}

// Weekdays builds a synthetic Monday-to-Friday calendar over [start, end].
// Used by tests and by fixtures without an exchange calendar.
func Weekdays(start, end time.Time) (*Calendar, error) {
	start, end = DateOnly(start), DateOnly(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return NewCalendar(days)
}

// Days returns a copy of all trading days.
func (c *Calendar) Days() []time.Time {
	out := make([]time.Time, len(c.days))
	copy(out, c.days)
	return out
}

// Len returns the number of trading days.
func (c *Calendar) Len() int { return len(c.days) }

// First returns the first trading day.
func (c *Calendar) First() time.Time { return c.days[0] }

// Last returns the last trading day.
func (c *Calendar) Last() time.Time { return c.days[len(c.days)-1] }

// Contains reports whether t is a trading day.
func (c *Calendar) Contains(t time.Time) bool {
	_, ok := c.idx[DateOnly(t).Unix()]
	return ok
}

// IndexOf returns the position of t, or -1 when t is not a trading day.
func (c *Calendar) IndexOf(t time.Time) int {
	if i, ok := c.idx[DateOnly(t).Unix()]; ok {
		return i
	}
	return -1
}

// FloorIndex returns the position of the latest trading day ≤ t, or -1
// when t precedes the calendar.
func (c *Calendar) FloorIndex(t time.Time) int {
	t = DateOnly(t)
	n := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(t) })
	return n - 1
}

// Between returns the trading days within [start, end].
func (c *Calendar) Between(start, end time.Time) []time.Time {
	start, end = DateOnly(start), DateOnly(end)
	var out []time.Time
	for _, d := range c.days {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out
}

// LastPerWeek returns the last trading day of each ISO week in [start, end].
func (c *Calendar) LastPerWeek(start, end time.Time) []time.Time {
	return c.lastPer(start, end, func(t time.Time) string {
		y, w := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", y, w)
	})
}

// LastPerMonth returns the last trading day of each month in [start, end].
func (c *Calendar) LastPerMonth(start, end time.Time) []time.Time {
	return c.lastPer(start, end, func(t time.Time) string {
		return t.Format("2006-01")
	})
}

func (c *Calendar) lastPer(start, end time.Time, key func(time.Time) string) []time.Time {
	days := c.Between(start, end)
	var out []time.Time
	for i, d := range days {
		if i == len(days)-1 || key(days[i+1]) != key(d) {
			out = append(out, d)
		}
	}
	return out
}
