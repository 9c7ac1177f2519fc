package operators

import (
	"math"

	"github.com/linchuan/factorhub/internal/frame"
)

// Momentum is the fractional price change over a lookback of n rows.
func Momentum(prices *frame.Frame, n int) *frame.Frame {
	return PctChange(prices, n)
}

// Volatility is the trailing sample standard deviation of one-period
// returns over a window of n rows.
func Volatility(prices *frame.Frame, n int) *frame.Frame {
	return Std(PctChange(prices, 1), n)
}

// RSI is the relative strength index over a window of n rows, computed from
// exponentially weighted average gains and losses. Output is in [0, 100].
func RSI(prices *frame.Frame, n int) *frame.Frame {
	delta := Delta(prices, 1)
	gains := delta.Clone()
	losses := delta.Clone()
	for j := 0; j < delta.NumCols(); j++ {
		for i := 0; i < delta.NumRows(); i++ {
			v := delta.At(i, j)
			if frame.Missing(v) {
				continue
			}
			gains.Set(i, j, math.Max(v, 0))
			losses.Set(i, j, math.Max(-v, 0))
		}
	}
	avgGain := DecayExp(gains, n)
	avgLoss := DecayExp(losses, n)

	out := prices.Empty()
	for j := 0; j < out.NumCols(); j++ {
		for i := 0; i < out.NumRows(); i++ {
			g, l := avgGain.At(i, j), avgLoss.At(i, j)
			if frame.Missing(g) || frame.Missing(l) {
				continue
			}
			if l == 0 {
				out.Set(i, j, 100)
				continue
			}
			rs := g / l
			out.Set(i, j, 100-100/(1+rs))
		}
	}
	return out
}

// BollingerPosition locates the price within its trailing Bollinger band:
// 0 at the lower band, 1 at the upper band, outside [0, 1] beyond them.
// A flat window (zero width) yields missing.
func BollingerPosition(prices *frame.Frame, n int, width float64) *frame.Frame {
	mid := Mean(prices, n)
	sd := Std(prices, n)

	out := prices.Empty()
	for j := 0; j < out.NumCols(); j++ {
		for i := 0; i < out.NumRows(); i++ {
			p, m, s := prices.At(i, j), mid.At(i, j), sd.At(i, j)
			if frame.Missing(p) || frame.Missing(m) || frame.Missing(s) || s == 0 {
				continue
			}
			lower := m - width*s
			out.Set(i, j, (p-lower)/(2*width*s))
		}
	}
	return out
}

// MACD returns the moving average convergence divergence line, its signal
// line, and the histogram (line minus signal).
func MACD(prices *frame.Frame, fast, slow, signal int) (line, sig, hist *frame.Frame) {
	fastEMA := DecayExp(prices, fast)
	slowEMA := DecayExp(prices, slow)

	line = prices.Empty()
	for j := 0; j < line.NumCols(); j++ {
		for i := 0; i < line.NumRows(); i++ {
			a, b := fastEMA.At(i, j), slowEMA.At(i, j)
			if frame.Missing(a) || frame.Missing(b) {
				continue
			}
			line.Set(i, j, a-b)
		}
	}
	sig = DecayExp(line, signal)

	hist = prices.Empty()
	for j := 0; j < hist.NumCols(); j++ {
		for i := 0; i < hist.NumRows(); i++ {
			a, b := line.At(i, j), sig.At(i, j)
			if frame.Missing(a) || frame.Missing(b) {
				continue
			}
			hist.Set(i, j, a-b)
		}
	}
	return line, sig, hist
}
