// Package operators is the factor operator library: pure, deterministic
// transforms over aligned matrices. Time-series operators act on each
// security's column across a trailing window; cross-sectional operators act
// on each date's row across securities.
//
// Every windowed operator emits missing for the first n-1 rows of a column
// (insufficient history) rather than a partial estimate, and missing inputs
// propagate as missing outputs unless documented otherwise.
package operators

import (
	"math"

	"github.com/linchuan/factorhub/internal/frame"
)

// rollApply evaluates fn on every full trailing window of length n, per
// column. Windows containing a missing value yield missing.
func rollApply(f *frame.Frame, n int, fn func(window []float64) float64) *frame.Frame {
	out := f.Empty()
	if n <= 0 {
		return out
	}
	rows, cols := f.NumRows(), f.NumCols()
	window := make([]float64, n)
	for j := 0; j < cols; j++ {
		for i := n - 1; i < rows; i++ {
			ok := true
			for k := 0; k < n; k++ {
				v := f.At(i-n+1+k, j)
				if frame.Missing(v) {
					ok = false
					break
				}
				window[k] = v
			}
			if ok {
				out.Set(i, j, fn(window))
			}
		}
	}
	return out
}

// Delay shifts each column down by n rows: the value observed n rows ago.
func Delay(f *frame.Frame, n int) *frame.Frame {
	out := f.Empty()
	if n < 0 {
		return out
	}
	for j := 0; j < f.NumCols(); j++ {
		for i := n; i < f.NumRows(); i++ {
			out.Set(i, j, f.At(i-n, j))
		}
	}
	return out
}

// Delta is the difference against the value n rows ago.
func Delta(f *frame.Frame, n int) *frame.Frame {
	out := f.Empty()
	if n < 0 {
		return out
	}
	for j := 0; j < f.NumCols(); j++ {
		for i := n; i < f.NumRows(); i++ {
			a, b := f.At(i, j), f.At(i-n, j)
			if frame.Missing(a) || frame.Missing(b) {
				continue
			}
			out.Set(i, j, a-b)
		}
	}
	return out
}

// PctChange is the fractional change against the value n rows ago.
// A zero base yields missing.
func PctChange(f *frame.Frame, n int) *frame.Frame {
	out := f.Empty()
	if n < 0 {
		return out
	}
	for j := 0; j < f.NumCols(); j++ {
		for i := n; i < f.NumRows(); i++ {
			a, b := f.At(i, j), f.At(i-n, j)
			if frame.Missing(a) || frame.Missing(b) || b == 0 {
				continue
			}
			out.Set(i, j, a/b-1)
		}
	}
	return out
}

// Mean is the trailing mean over a window of n rows.
func Mean(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, mean)
}

// Sum is the trailing sum over a window of n rows.
func Sum(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		s := 0.0
		for _, v := range w {
			s += v
		}
		return s
	})
}

// Std is the trailing sample standard deviation over a window of n rows.
func Std(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, sampleStd)
}

// Max is the trailing maximum over a window of n rows.
func Max(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v > m {
				m = v
			}
		}
		return m
	})
}

// Min is the trailing minimum over a window of n rows.
func Min(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		m := w[0]
		for _, v := range w[1:] {
			if v < m {
				m = v
			}
		}
		return m
	})
}

// ArgMax is the offset of the trailing-window maximum: 0 means today,
// n-1 means the oldest row. The earliest occurrence wins on ties.
func ArgMax(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		best := 0
		for k, v := range w {
			if v > w[best] {
				best = k
			}
		}
		return float64(len(w) - 1 - best)
	})
}

// ArgMin is the offset of the trailing-window minimum, as in ArgMax.
func ArgMin(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		best := 0
		for k, v := range w {
			if v < w[best] {
				best = k
			}
		}
		return float64(len(w) - 1 - best)
	})
}

// Rank is the current value's percentile within its own trailing window,
// in (0, 1]; ties take the average rank.
func Rank(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		cur := w[len(w)-1]
		less, equal := 0, 0
		for _, v := range w {
			switch {
			case v < cur:
				less++
			case v == cur:
				equal++
			}
		}
		avgRank := float64(less) + (float64(equal)+1)/2
		return avgRank / float64(len(w))
	})
}

// ZScore standardizes the current value against its trailing window's mean
// and sample standard deviation. Zero dispersion yields missing.
func ZScore(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		s := sampleStd(w)
		if s == 0 {
			return math.NaN()
		}
		return (w[len(w)-1] - mean(w)) / s
	})
}

// Skew is the trailing sample skewness (adjusted Fisher-Pearson).
// Windows shorter than 3 rows yield missing.
func Skew(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		m := float64(len(w))
		if m < 3 {
			return math.NaN()
		}
		s := sampleStd(w)
		if s == 0 {
			return math.NaN()
		}
		mu := mean(w)
		var sum float64
		for _, v := range w {
			d := (v - mu) / s
			sum += d * d * d
		}
		return m / ((m - 1) * (m - 2)) * sum
	})
}

// Kurt is the trailing sample excess kurtosis. Windows shorter than 4 rows
// yield missing.
func Kurt(f *frame.Frame, n int) *frame.Frame {
	return rollApply(f, n, func(w []float64) float64 {
		m := float64(len(w))
		if m < 4 {
			return math.NaN()
		}
		s := sampleStd(w)
		if s == 0 {
			return math.NaN()
		}
		mu := mean(w)
		var sum float64
		for _, v := range w {
			d := (v - mu) / s
			sum += d * d * d * d
		}
		return m*(m+1)/((m-1)*(m-2)*(m-3))*sum - 3*(m-1)*(m-1)/((m-2)*(m-3))
	})
}

// Corr is the trailing Pearson correlation between two frames of the same
// shape. Zero dispersion on either side yields missing.
func Corr(x, y *frame.Frame, n int) *frame.Frame {
	out := x.Empty()
	if n <= 0 || !x.SameShape(y) {
		return out
	}
	rows, cols := x.NumRows(), x.NumCols()
	for j := 0; j < cols; j++ {
		for i := n - 1; i < rows; i++ {
			var (
				xs, ys []float64
				ok     = true
			)
			for k := i - n + 1; k <= i; k++ {
				a, b := x.At(k, j), y.At(k, j)
				if frame.Missing(a) || frame.Missing(b) {
					ok = false
					break
				}
				xs = append(xs, a)
				ys = append(ys, b)
			}
			if !ok {
				continue
			}
			if c := pearson(xs, ys); !math.IsNaN(c) {
				out.Set(i, j, c)
			}
		}
	}
	return out
}

// DecayLinear is a trailing weighted mean with linearly decaying weights,
// most recent row heaviest.
func DecayLinear(f *frame.Frame, n int) *frame.Frame {
	if n <= 0 {
		return f.Empty()
	}
	weights := make([]float64, n)
	for k := range weights {
		weights[k] = float64(k + 1)
	}
	return decay(f, n, weights)
}

// DecayExp is a trailing weighted mean with exponentially decaying weights
// using alpha = 2/(n+1), most recent row heaviest.
func DecayExp(f *frame.Frame, n int) *frame.Frame {
	if n <= 0 {
		return f.Empty()
	}
	alpha := 2.0 / (float64(n) + 1)
	weights := make([]float64, n)
	for k := range weights {
		weights[k] = math.Pow(1-alpha, float64(n-1-k))
	}
	return decay(f, n, weights)
}

// DecayPower is a trailing weighted mean with power-law decaying weights.
func DecayPower(f *frame.Frame, n int, power float64) *frame.Frame {
	if n <= 0 {
		return f.Empty()
	}
	weights := make([]float64, n)
	for k := range weights {
		weights[k] = math.Pow(float64(k+1), power)
	}
	return decay(f, n, weights)
}

func decay(f *frame.Frame, n int, weights []float64) *frame.Frame {
	var total float64
	for _, w := range weights {
		total += w
	}
	return rollApply(f, n, func(w []float64) float64 {
		var s float64
		for k, v := range w {
			s += v * weights[k]
		}
		return s / total
	})
}

func mean(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s / float64(len(w))
}

func sampleStd(w []float64) float64 {
	if len(w) < 2 {
		return 0
	}
	mu := mean(w)
	var ss float64
	for _, v := range w {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(w)-1))
}

func pearson(xs, ys []float64) float64 {
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for k := range xs {
		dx, dy := xs[k]-mx, ys[k]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}
