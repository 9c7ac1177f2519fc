package operators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linchuan/factorhub/internal/frame"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// newTestFrame builds a frame from row-major values; NaN marks missing.
func newTestFrame(t *testing.T, rows [][]float64, secs ...string) *frame.Frame {
	t.Helper()
	dates := make([]time.Time, len(rows))
	for i := range dates {
		dates[i] = d(2025, time.March, 3).AddDate(0, 0, i)
	}
	f, err := frame.New(dates, secs)
	require.NoError(t, err)
	for i, row := range rows {
		require.Len(t, row, len(secs))
		for j, v := range row {
			f.Set(i, f.ColIndex(secs[j]), v)
		}
	}
	return f
}

func col(rows ...float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, v := range rows {
		out[i] = []float64{v}
	}
	return out
}

func TestDelay(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3, 4), "AAA")
	out := Delay(f, 2)

	assert.True(t, frame.Missing(out.At(0, 0)))
	assert.True(t, frame.Missing(out.At(1, 0)))
	assert.Equal(t, 1.0, out.At(2, 0))
	assert.Equal(t, 2.0, out.At(3, 0))
}

func TestDeltaAndPctChange(t *testing.T) {
	f := newTestFrame(t, col(100, 110, 99), "AAA")

	delta := Delta(f, 1)
	assert.True(t, frame.Missing(delta.At(0, 0)))
	assert.InDelta(t, 10.0, delta.At(1, 0), 1e-12)
	assert.InDelta(t, -11.0, delta.At(2, 0), 1e-12)

	pct := PctChange(f, 1)
	assert.InDelta(t, 0.10, pct.At(1, 0), 1e-12)
	assert.InDelta(t, -0.10, pct.At(2, 0), 1e-12)
}

func TestPctChange_ZeroBase(t *testing.T) {
	f := newTestFrame(t, col(0, 5), "AAA")
	out := PctChange(f, 1)
	assert.True(t, frame.Missing(out.At(1, 0)))
}

func TestWindowedAggregates(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3, 4), "AAA")

	tests := []struct {
		name string
		out  *frame.Frame
		row2 float64
		row3 float64
	}{
		{"mean", Mean(f, 3), 2.0, 3.0},
		{"sum", Sum(f, 3), 6.0, 9.0},
		{"std", Std(f, 3), 1.0, 1.0},
		{"max", Max(f, 3), 3.0, 4.0},
		{"min", Min(f, 3), 1.0, 2.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, frame.Missing(tc.out.At(0, 0)), "row 0 lacks history")
			assert.True(t, frame.Missing(tc.out.At(1, 0)), "row 1 lacks history")
			assert.InDelta(t, tc.row2, tc.out.At(2, 0), 1e-12)
			assert.InDelta(t, tc.row3, tc.out.At(3, 0), 1e-12)
		})
	}
}

func TestWindow_MissingInputPropagates(t *testing.T) {
	f := newTestFrame(t, col(1, frame.NaN(), 3, 4), "AAA")
	out := Mean(f, 2)

	assert.True(t, frame.Missing(out.At(1, 0)))
	assert.True(t, frame.Missing(out.At(2, 0)))
	assert.InDelta(t, 3.5, out.At(3, 0), 1e-12)
}

func TestArgMaxArgMin(t *testing.T) {
	f := newTestFrame(t, col(1, 3, 2), "AAA")

	assert.InDelta(t, 1.0, ArgMax(f, 3).At(2, 0), 1e-12)
	assert.InDelta(t, 2.0, ArgMin(f, 3).At(2, 0), 1e-12)
}

func TestRank_TrailingWindow(t *testing.T) {
	f := newTestFrame(t, col(3, 1, 2), "AAA")
	out := Rank(f, 3)

	// current value 2 beats one of {3,1,2} in the window
	assert.InDelta(t, 2.0/3.0, out.At(2, 0), 1e-12)
}

func TestZScore_TrailingWindow(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3), "AAA")
	out := ZScore(f, 3)
	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)

	flat := newTestFrame(t, col(5, 5, 5), "AAA")
	assert.True(t, frame.Missing(ZScore(flat, 3).At(2, 0)))
}

func TestCorr(t *testing.T) {
	x := newTestFrame(t, col(1, 2, 3), "AAA")
	up := newTestFrame(t, col(2, 4, 6), "AAA")
	down := newTestFrame(t, col(3, 2, 1), "AAA")

	assert.InDelta(t, 1.0, Corr(x, up, 3).At(2, 0), 1e-12)
	assert.InDelta(t, -1.0, Corr(x, down, 3).At(2, 0), 1e-12)

	flat := newTestFrame(t, col(5, 5, 5), "AAA")
	assert.True(t, frame.Missing(Corr(x, flat, 3).At(2, 0)))
}

func TestDecayLinear(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3), "AAA")
	out := DecayLinear(f, 3)

	// weights 1,2,3 over values 1,2,3
	assert.InDelta(t, 14.0/6.0, out.At(2, 0), 1e-12)
}

func TestDecayExp_WeightsRecentHeaviest(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3), "AAA")
	decayed := DecayExp(f, 3).At(2, 0)
	flat := Mean(f, 3).At(2, 0)

	assert.Greater(t, decayed, flat)
}

func TestCSRank(t *testing.T) {
	f := newTestFrame(t, [][]float64{{3, 1, 2, frame.NaN()}}, "AAA", "BBB", "CCC", "DDD")
	out := CSRank(f)

	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0/3.0, out.At(0, 1), 1e-12)
	assert.InDelta(t, 2.0/3.0, out.At(0, 2), 1e-12)
	assert.True(t, frame.Missing(out.At(0, 3)))
}

func TestCSRank_TiesAverage(t *testing.T) {
	f := newTestFrame(t, [][]float64{{1, 1, 2}}, "AAA", "BBB", "CCC")
	out := CSRank(f)

	assert.InDelta(t, 0.5, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, out.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0, out.At(0, 2), 1e-12)
}

func TestCSZScore(t *testing.T) {
	f := newTestFrame(t, [][]float64{{1, 2, 3}}, "AAA", "BBB", "CCC")
	out := CSZScore(f)

	assert.InDelta(t, -1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0, out.At(0, 2), 1e-12)
}

func TestCSZScore_DegenerateRowIsZero(t *testing.T) {
	f := newTestFrame(t, [][]float64{{5, 5, 5}}, "AAA", "BBB", "CCC")
	out := CSZScore(f)

	for j := 0; j < 3; j++ {
		assert.Zero(t, out.At(0, j))
	}
}

func TestCSDemean(t *testing.T) {
	f := newTestFrame(t, [][]float64{{1, 2, 6}}, "AAA", "BBB", "CCC")
	out := CSDemean(f)

	assert.InDelta(t, -2.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, -1.0, out.At(0, 1), 1e-12)
	assert.InDelta(t, 3.0, out.At(0, 2), 1e-12)
}

func TestCSWinsorize(t *testing.T) {
	f := newTestFrame(t, [][]float64{{1, 2, 3, 4, 100}}, "AAA", "BBB", "CCC", "DDD", "EEE")
	out := CSWinsorize(f, 0, 0.5)

	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, out.At(0, 2), 1e-12)
	assert.InDelta(t, 3.0, out.At(0, 3), 1e-12)
	assert.InDelta(t, 3.0, out.At(0, 4), 1e-12)
}

func TestMomentum(t *testing.T) {
	f := newTestFrame(t, col(100, 110), "AAA")
	out := Momentum(f, 1)
	assert.InDelta(t, 0.10, out.At(1, 0), 1e-12)
}

func TestVolatility(t *testing.T) {
	f := newTestFrame(t, col(100, 110, 121, 133.1), "AAA")
	out := Volatility(f, 3)

	// returns are a constant 10%, so dispersion is zero
	assert.True(t, frame.Missing(out.At(0, 0)))
	assert.True(t, frame.Missing(out.At(2, 0)))
	assert.InDelta(t, 0.0, out.At(3, 0), 1e-9)
}

func TestRSI_AllGains(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3, 4, 5), "AAA")
	out := RSI(f, 3)

	assert.True(t, frame.Missing(out.At(0, 0)))
	assert.InDelta(t, 100.0, out.At(3, 0), 1e-12)
	assert.InDelta(t, 100.0, out.At(4, 0), 1e-12)
}

func TestRSI_Bounded(t *testing.T) {
	f := newTestFrame(t, col(10, 12, 9, 14, 8, 13, 11), "AAA")
	out := RSI(f, 3)

	for i := 3; i < out.NumRows(); i++ {
		v := out.At(i, 0)
		require.False(t, frame.Missing(v))
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestBollingerPosition(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3), "AAA")
	out := BollingerPosition(f, 3, 2)

	// price 3 sits 1 std above a mid of 2, bands span 2 stds each side
	assert.InDelta(t, 0.75, out.At(2, 0), 1e-12)
}

func TestMACD_Shapes(t *testing.T) {
	f := newTestFrame(t, col(10, 11, 13, 12, 15, 16, 18, 17, 19, 21), "AAA")
	line, sig, hist := MACD(f, 3, 5, 3)

	require.True(t, line.SameShape(f))
	require.True(t, sig.SameShape(f))
	require.True(t, hist.SameShape(f))

	i := f.NumRows() - 1
	require.False(t, frame.Missing(line.At(i, 0)))
	require.False(t, frame.Missing(sig.At(i, 0)))
	assert.InDelta(t, line.At(i, 0)-sig.At(i, 0), hist.At(i, 0), 1e-12)
}

func TestRollApply_RejectsBadWindow(t *testing.T) {
	f := newTestFrame(t, col(1, 2, 3), "AAA")
	out := Mean(f, 0)

	for i := 0; i < 3; i++ {
		assert.True(t, frame.Missing(out.At(i, 0)))
	}
}

func TestSampleStd(t *testing.T) {
	assert.Zero(t, sampleStd([]float64{7}))
	assert.InDelta(t, math.Sqrt(2.5), sampleStd([]float64{1, 2, 3, 4, 5}), 1e-12)
}
