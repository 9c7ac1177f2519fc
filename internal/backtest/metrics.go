package backtest

import "math"

// summarize derives the performance statistics from the completed period
// records. rf is the annual risk-free rate; periodsPerYear matches the
// rebalance cadence.
func summarize(records []PeriodRecord, periodsPerYear, rf float64) Summary {
	var s Summary
	if len(records) == 0 {
		return s
	}

	n := float64(len(records))
	cumulative := 1.0
	wins := 0
	sumTurnover := 0.0
	sumPositions := 0
	for _, r := range records {
		cumulative *= 1 + r.Return
		if r.Return > 0 {
			wins++
		}
		sumTurnover += r.Turnover
		sumPositions += len(r.Holdings)
	}
	s.TotalReturn = cumulative - 1
	s.WinRate = float64(wins) / n
	s.AvgPositions = float64(sumPositions) / n
	s.AnnualTurnover = sumTurnover / n * periodsPerYear

	if cumulative > 0 {
		s.AnnualizedReturn = math.Pow(cumulative, periodsPerYear/n) - 1
	} else {
		s.AnnualizedReturn = -1
	}

	if len(records) > 1 {
		mu := 0.0
		for _, r := range records {
			mu += r.Return
		}
		mu /= n
		ss := 0.0
		for _, r := range records {
			d := r.Return - mu
			ss += d * d
		}
		s.Volatility = math.Sqrt(ss/(n-1)) * math.Sqrt(periodsPerYear)
	}

	if s.Volatility > 0 {
		s.Sharpe = (s.AnnualizedReturn - rf) / s.Volatility
	}

	rfPeriod := rf / periodsPerYear
	downside := 0.0
	for _, r := range records {
		if d := r.Return - rfPeriod; d < 0 {
			downside += d * d
		}
	}
	if downside > 0 {
		dd := math.Sqrt(downside/n) * math.Sqrt(periodsPerYear)
		s.Sortino = (s.AnnualizedReturn - rf) / dd
	}

	s.MaxDrawdown, s.MaxDrawdownDays = maxDrawdown(records)
	if s.MaxDrawdown > 0 {
		s.Calmar = s.AnnualizedReturn / s.MaxDrawdown
	}
	return s
}

// maxDrawdown walks the cumulative return curve and reports the deepest
// peak-to-trough decline and its length in calendar days.
func maxDrawdown(records []PeriodRecord) (float64, int) {
	cumulative := 1.0
	peak := 1.0
	peakIdx := 0
	worst := 0.0
	worstDays := 0
	for i, r := range records {
		cumulative *= 1 + r.Return
		if cumulative > peak {
			peak = cumulative
			peakIdx = i
			continue
		}
		dd := 1 - cumulative/peak
		if dd > worst {
			worst = dd
			worstDays = int(records[i].Date.Sub(records[peakIdx].Date).Hours() / 24)
		}
	}
	return worst, worstDays
}
