package frame

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Frame is a dense date-by-security matrix of float64 values.
// Rows are ascending calendar dates, columns are security identifiers,
// and math.NaN() marks an explicitly missing cell. A Frame handed out
// by the store or an operator is treated as immutable by its consumers.
type Frame struct {
	dates []time.Time
	secs  []string
	data  [][]float64 // [row][col]

	dateIdx map[int64]int
	secIdx  map[string]int
}

// Missing reports whether v is the missing-value marker.
func Missing(v float64) bool {
	return math.IsNaN(v)
}

// NaN returns the missing-value marker.
func NaN() float64 {
	return math.NaN()
}

// DateOnly truncates t to a UTC calendar date. All Frame rows are keyed
// this way so that values loaded from different sources line up.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// New creates a Frame covering the given dates and securities with every
// cell missing. Dates must be strictly increasing; securities are sorted
// for deterministic column order.
func New(dates []time.Time, securities []string) (*Frame, error) {
	norm := make([]time.Time, len(dates))
	for i, d := range dates {
		norm[i] = DateOnly(d)
		if i > 0 && !norm[i].After(norm[i-1]) {
			return nil, fmt.Errorf("frame: dates must be strictly increasing at index %d", i)
		}
	}

	secs := make([]string, len(securities))
	copy(secs, securities)
	sort.Strings(secs)
	for i := 1; i < len(secs); i++ {
		if secs[i] == secs[i-1] {
			return nil, fmt.Errorf("frame: duplicate security %q", secs[i])
		}
	}

	f := &Frame{
		dates:   norm,
		secs:    secs,
		data:    make([][]float64, len(norm)),
		dateIdx: make(map[int64]int, len(norm)),
		secIdx:  make(map[string]int, len(secs)),
	}
	for i, d := range norm {
		f.dateIdx[d.Unix()] = i
		row := make([]float64, len(secs))
		for j := range row {
			row[j] = math.NaN()
		}
		f.data[i] = row
	}
	for j, s := range secs {
		f.secIdx[s] = j
	}

	return f, nil
}

// NumRows returns the number of dates.
func (f *Frame) NumRows() int { return len(f.dates) }

// NumCols returns the number of securities.
func (f *Frame) NumCols() int { return len(f.secs) }

// Dates returns a copy of the row index.
func (f *Frame) Dates() []time.Time {
	out := make([]time.Time, len(f.dates))
	copy(out, f.dates)
	return out
}

// Securities returns a copy of the column index.
func (f *Frame) Securities() []string {
	out := make([]string, len(f.secs))
	copy(out, f.secs)
	return out
}

// DateAt returns the date of row i.
func (f *Frame) DateAt(i int) time.Time { return f.dates[i] }

// SecurityAt returns the security of column j.
func (f *Frame) SecurityAt(j int) string { return f.secs[j] }

// HasSecurity reports whether the security is a column of the frame.
func (f *Frame) HasSecurity(security string) bool {
	_, ok := f.secIdx[security]
	return ok
}

// RowIndex returns the row for the given date, or -1.
func (f *Frame) RowIndex(date time.Time) int {
	if i, ok := f.dateIdx[DateOnly(date).Unix()]; ok {
		return i
	}
	return -1
}

// ColIndex returns the column for the given security, or -1.
func (f *Frame) ColIndex(security string) int {
	if j, ok := f.secIdx[security]; ok {
		return j
	}
	return -1
}

// At returns the cell value at row i, column j.
func (f *Frame) At(i, j int) float64 { return f.data[i][j] }

// Set assigns the cell value at row i, column j. Only builders (loaders,
// operators) call this before handing the frame out.
func (f *Frame) Set(i, j int, v float64) { f.data[i][j] = v }

// Value returns the cell for (date, security), or NaN when either index
// is absent.
func (f *Frame) Value(date time.Time, security string) float64 {
	i := f.RowIndex(date)
	j := f.ColIndex(security)
	if i < 0 || j < 0 {
		return math.NaN()
	}
	return f.data[i][j]
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []float64 {
	out := make([]float64, len(f.data[i]))
	copy(out, f.data[i])
	return out
}

// RowMap returns the non-missing cells of the row at date, keyed by
// security. Returns nil when the date is not a row of the frame.
func (f *Frame) RowMap(date time.Time) map[string]float64 {
	i := f.RowIndex(date)
	if i < 0 {
		return nil
	}
	out := make(map[string]float64)
	for j, v := range f.data[i] {
		if !Missing(v) {
			out[f.secs[j]] = v
		}
	}
	return out
}

// Column returns a copy of the column for the given security.
func (f *Frame) Column(security string) []float64 {
	j := f.ColIndex(security)
	out := make([]float64, len(f.dates))
	for i := range f.dates {
		if j < 0 {
			out[i] = math.NaN()
		} else {
			out[i] = f.data[i][j]
		}
	}
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c, _ := New(f.dates, f.secs)
	for i := range f.data {
		copy(c.data[i], f.data[i])
	}
	return c
}

// Empty returns a frame with the same shape and every cell missing.
func (f *Frame) Empty() *Frame {
	c, _ := New(f.dates, f.secs)
	return c
}

// Slice returns the sub-frame whose dates fall in [start, end].
func (f *Frame) Slice(start, end time.Time) *Frame {
	start, end = DateOnly(start), DateOnly(end)
	var dates []time.Time
	var rows []int
	for i, d := range f.dates {
		if !d.Before(start) && !d.After(end) {
			dates = append(dates, d)
			rows = append(rows, i)
		}
	}
	out, _ := New(dates, f.secs)
	for k, i := range rows {
		copy(out.data[k], f.data[i])
	}
	return out
}

// SelectSecurities returns the sub-frame restricted to the given columns.
// Unknown securities become all-missing columns.
func (f *Frame) SelectSecurities(securities []string) *Frame {
	out, _ := New(f.dates, securities)
	for _, s := range out.secs {
		j := f.ColIndex(s)
		if j < 0 {
			continue
		}
		oj := out.secIdx[s]
		for i := range f.data {
			out.data[i][oj] = f.data[i][j]
		}
	}
	return out
}

// SameShape reports whether two frames share dates and securities.
func (f *Frame) SameShape(other *Frame) bool {
	if f.NumRows() != other.NumRows() || f.NumCols() != other.NumCols() {
		return false
	}
	for i := range f.dates {
		if !f.dates[i].Equal(other.dates[i]) {
			return false
		}
	}
	for j := range f.secs {
		if f.secs[j] != other.secs[j] {
			return false
		}
	}
	return true
}
