package operators

import (
	"math"
	"sort"

	"github.com/linchuan/factorhub/internal/frame"
)

// rowApply evaluates fn on each date's present values and writes the results
// back to the same positions. Missing cells stay missing, so the relative
// ordering of securities never depends on which ones are absent that day.
func rowApply(f *frame.Frame, fn func(values []float64) []float64) *frame.Frame {
	out := f.Empty()
	cols := f.NumCols()
	for i := 0; i < f.NumRows(); i++ {
		idx := make([]int, 0, cols)
		vals := make([]float64, 0, cols)
		for j := 0; j < cols; j++ {
			if v := f.At(i, j); !frame.Missing(v) {
				idx = append(idx, j)
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		for k, v := range fn(vals) {
			out.Set(i, idx[k], v)
		}
	}
	return out
}

// CSRank replaces each present value with its percentile among the present
// values of the same date, in (0, 1]; ties take the average rank.
func CSRank(f *frame.Frame) *frame.Frame {
	return rowApply(f, func(vals []float64) []float64 {
		m := len(vals)
		order := make([]int, m)
		for k := range order {
			order[k] = k
		}
		sort.SliceStable(order, func(a, b int) bool { return vals[order[a]] < vals[order[b]] })
		ranks := make([]float64, m)
		for lo := 0; lo < m; {
			hi := lo
			for hi+1 < m && vals[order[hi+1]] == vals[order[lo]] {
				hi++
			}
			avg := float64(lo+hi)/2 + 1
			for k := lo; k <= hi; k++ {
				ranks[order[k]] = avg / float64(m)
			}
			lo = hi + 1
		}
		return ranks
	})
}

// CSZScore standardizes each date's present values to zero mean and unit
// sample standard deviation. A degenerate row (zero dispersion) becomes all
// zeros rather than blowing up downstream weights.
func CSZScore(f *frame.Frame) *frame.Frame {
	return rowApply(f, func(vals []float64) []float64 {
		mu := mean(vals)
		s := sampleStd(vals)
		out := make([]float64, len(vals))
		if s == 0 {
			return out
		}
		for k, v := range vals {
			out[k] = (v - mu) / s
		}
		return out
	})
}

// CSDemean subtracts each date's cross-sectional mean from its present
// values.
func CSDemean(f *frame.Frame) *frame.Frame {
	return rowApply(f, func(vals []float64) []float64 {
		mu := mean(vals)
		out := make([]float64, len(vals))
		for k, v := range vals {
			out[k] = v - mu
		}
		return out
	})
}

// CSWinsorize clips each date's present values to the empirical quantiles
// [lo, hi], with lo and hi in [0, 1].
func CSWinsorize(f *frame.Frame, lo, hi float64) *frame.Frame {
	return rowApply(f, func(vals []float64) []float64 {
		sorted := append([]float64(nil), vals...)
		sort.Float64s(sorted)
		lower := quantile(sorted, lo)
		upper := quantile(sorted, hi)
		out := make([]float64, len(vals))
		for k, v := range vals {
			out[k] = math.Min(math.Max(v, lower), upper)
		}
		return out
	})
}

// quantile interpolates linearly between the order statistics of a sorted,
// non-empty slice.
func quantile(sorted []float64, q float64) float64 {
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
