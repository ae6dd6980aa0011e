package strategy

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	riskFreeRate = 0.02
	tradingDays  = 252
)

// pctChange returns the bar-over-bar fractional change of the series, with
// NaN and ±Inf samples dropped before any aggregation.
func pctChange(series []float64) []float64 {
	out := make([]float64, 0, len(series))
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		r := series[i]/series[i-1] - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// sampleStd is the sample standard deviation, zero-guarded: fewer than two
// samples yield 0 rather than NaN.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// drawdownCurve computes D[i] = (E[i] - max(E[0..i])) / max(E[0..i]).
func drawdownCurve(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, e := range equity {
		if e > peak {
			peak = e
		}
		if peak != 0 {
			out[i] = (e - peak) / peak
		}
	}
	return out
}

func sharpeRatio(returns []float64) float64 {
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate/tradingDays
	}
	if len(excess) == 0 {
		return 0
	}
	sd := sampleStd(excess)
	if sd == 0 {
		return 0
	}
	return math.Sqrt(tradingDays) * stat.Mean(excess, nil) / sd
}

func sortinoRatio(returns []float64) Metric {
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreeRate/tradingDays
	}
	if len(excess) == 0 {
		return Num(0)
	}
	var downside []float64
	for _, e := range excess {
		if e < 0 {
			downside = append(downside, e)
		}
	}
	mean := stat.Mean(excess, nil)
	if len(downside) == 0 {
		if mean > 0 {
			return Inf()
		}
		return Num(0)
	}
	sd := sampleStd(downside)
	if sd == 0 {
		return Num(0)
	}
	return Num(math.Sqrt(tradingDays) * mean / sd)
}

func buildReport(dates []string, equity []float64, trades []*Trade, p Params) *Report {
	finalCapital := equity[len(equity)-1]
	returns := pctChange(equity)
	dd := drawdownCurve(equity)

	minDD := 0.0
	for _, d := range dd {
		if d < minDD {
			minDD = d
		}
	}

	totalReturnPct := (finalCapital/p.InitialCapital - 1) * 100
	maxDrawdownPct := minDD * 100

	r := &Report{
		InitialCapital:       p.InitialCapital,
		FinalCapital:         finalCapital,
		TotalReturn:          finalCapital - p.InitialCapital,
		TotalReturnPct:       totalReturnPct,
		SharpeRatio:          sharpeRatio(returns),
		SortinoRatio:         sortinoRatio(returns),
		MaxDrawdown:          minDD * p.InitialCapital,
		MaxDrawdownPct:       maxDrawdownPct,
		AnnualizedVolatility: sampleStd(returns) * math.Sqrt(tradingDays) * 100,
		NumTrades:            len(trades),
		EquityCurve:          curve(dates, equity),
		DrawdownCurve:        curve(dates, dd),
		Trades:               dereference(trades),
	}

	switch {
	case maxDrawdownPct == 0 && r.TotalReturn > 0:
		r.CalmarRatio = Inf()
	case maxDrawdownPct == 0:
		r.CalmarRatio = Num(0)
	default:
		r.CalmarRatio = Num(totalReturnPct / math.Abs(maxDrawdownPct))
	}

	var winners, losers int
	var grossProfit, grossLoss, totalPnl float64
	var winnerPnl, loserPnl float64
	for _, t := range trades {
		totalPnl += t.Pnl
		switch {
		case t.Pnl > 0:
			winners++
			grossProfit += t.Pnl
			winnerPnl += t.Pnl
		case t.Pnl < 0:
			losers++
			grossLoss += -t.Pnl
			loserPnl += t.Pnl
		}
	}

	if len(trades) > 0 {
		r.WinRate = 100 * float64(winners) / float64(len(trades))
		r.AvgTradePnl = Num(totalPnl / float64(len(trades)))
	} else {
		r.AvgTradePnl = Num(0)
	}

	switch {
	case grossLoss == 0 && grossProfit > 0:
		r.ProfitFactor = Inf()
	case grossLoss == 0:
		r.ProfitFactor = Num(0)
	default:
		r.ProfitFactor = Num(grossProfit / grossLoss)
	}

	if winners > 0 {
		r.AvgWinnerPnl = Num(winnerPnl / float64(winners))
	} else {
		r.AvgWinnerPnl = NA()
	}
	if losers > 0 {
		r.AvgLoserPnl = Num(loserPnl / float64(losers))
	} else {
		r.AvgLoserPnl = NA()
	}

	return r
}

func curve(dates []string, values []float64) []Point {
	pts := make([]Point, len(values))
	for i := range values {
		v := values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		pts[i] = Point{Date: dates[i], Value: v}
	}
	return pts
}

func dereference(trades []*Trade) []Trade {
	out := make([]Trade, len(trades))
	for i, t := range trades {
		out[i] = *t
	}
	return out
}
