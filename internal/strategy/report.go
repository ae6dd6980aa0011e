// Package strategy implements the fixed backtest harness: the trading loop
// driven by a user-supplied signal column and the risk statistics computed
// from the resulting equity curve and trade log.
package strategy

import (
	"encoding/json"
	"fmt"
	"math"
)

// Trade records one round trip. All trades in a finished report are closed:
// any position still open at the end of the series is closed at the last
// price.
type Trade struct {
	EntryDate  string  `json:"entryDate"`
	ExitDate   string  `json:"exitDate"`
	EntryPrice float64 `json:"entryPrice"`
	ExitPrice  float64 `json:"exitPrice"`
	Quantity   int     `json:"quantity"`
	Side       string  `json:"side"`
	Pnl        float64 `json:"pnl"`
	ExitReason string  `json:"exitReason"`
}

// Point is one sample of a dated curve.
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Metric is a statistic that may degrade to a sentinel: "∞" for ratios with
// a zero divisor and positive numerator, "N/A" for means over an empty
// subset. It serialises as a JSON number otherwise.
type Metric struct {
	Value    float64
	Sentinel string
}

// Num wraps a plain numeric metric.
func Num(v float64) Metric { return Metric{Value: v} }

// Inf is the "∞" sentinel.
func Inf() Metric { return Metric{Sentinel: "∞"} }

// NA is the "N/A" sentinel.
func NA() Metric { return Metric{Sentinel: "N/A"} }

// MarshalJSON implements json.Marshaler.
func (m Metric) MarshalJSON() ([]byte, error) {
	if m.Sentinel != "" {
		return json.Marshal(m.Sentinel)
	}
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		return json.Marshal(0.0)
	}
	return json.Marshal(m.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metric) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Metric{Sentinel: s}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("metric is neither number nor sentinel: %s", data)
	}
	*m = Metric{Value: v}
	return nil
}

// Report is the full backtest result serialised for the caller.
type Report struct {
	InitialCapital       float64 `json:"initialCapital"`
	FinalCapital         float64 `json:"finalCapital"`
	TotalReturn          float64 `json:"totalReturn"`
	TotalReturnPct       float64 `json:"totalReturnPct"`
	SharpeRatio          float64 `json:"sharpeRatio"`
	SortinoRatio         Metric  `json:"sortinoRatio"`
	CalmarRatio          Metric  `json:"calmarRatio"`
	MaxDrawdown          float64 `json:"maxDrawdown"`
	MaxDrawdownPct       float64 `json:"maxDrawdownPct"`
	AnnualizedVolatility float64 `json:"annualizedVolatility"`
	WinRate              float64 `json:"winRate"`
	ProfitFactor         Metric  `json:"profitFactor"`
	NumTrades            int     `json:"numTrades"`
	AvgTradePnl          Metric  `json:"avgTradePnl"`
	AvgWinnerPnl         Metric  `json:"avgWinnerPnl"`
	AvgLoserPnl          Metric  `json:"avgLoserPnl"`
	EquityCurve          []Point `json:"equityCurve"`
	DrawdownCurve        []Point `json:"drawdownCurve"`
	Trades               []Trade `json:"trades"`
}
