package strategy

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/tradeforge/engine/internal/marketdata"
)

// Trading methods: which open trade a close signal hits first.
const (
	// MethodLossCutting closes the worst-performing open trade first.
	MethodLossCutting = 0
	// MethodProfitTaking closes the best-performing open trade first.
	MethodProfitTaking = 1
)

// Params configures one harness run.
type Params struct {
	InitialCapital     float64
	InvestmentPerTrade float64
	TradingMethod      int
}

// Signal values instruct the harness per bar.
const (
	SignalClose = -1
	SignalHold  = 0
	SignalOpen  = 1
)

// openBook is the priority set of open trades, keyed by running pnl. Keys
// go stale every mark-to-market step, so the loop reheaps after each one.
type openBook struct {
	trades []*Trade
	method int
}

func (b *openBook) key(t *Trade) float64 {
	if b.method == MethodProfitTaking {
		return -t.Pnl
	}
	return t.Pnl
}

func (b *openBook) Len() int           { return len(b.trades) }
func (b *openBook) Less(i, j int) bool { return b.key(b.trades[i]) < b.key(b.trades[j]) }
func (b *openBook) Swap(i, j int)      { b.trades[i], b.trades[j] = b.trades[j], b.trades[i] }
func (b *openBook) Push(x interface{}) { b.trades = append(b.trades, x.(*Trade)) }
func (b *openBook) Pop() interface{} {
	n := len(b.trades)
	t := b.trades[n-1]
	b.trades = b.trades[:n-1]
	return t
}

// Run executes the backtest loop over the frame with the given signal
// column and returns the full report.
//
// Per bar, mark-to-market runs before the signal is applied: a trade closed
// this bar still collects the final price move, and a trade opened this bar
// collects its first move on the next one. Equity therefore tracks cash
// plus position value exactly, and finalCapital equals initialCapital plus
// the sum of realised pnl once the end-of-series close has run.
func Run(frame *marketdata.Frame, signals []int, p Params) (*Report, error) {
	n := frame.Len()
	if n == 0 {
		return nil, fmt.Errorf("empty price frame")
	}
	if len(signals) != n {
		return nil, fmt.Errorf("signal column length %d does not match frame length %d", len(signals), n)
	}
	closes, err := frame.Close()
	if err != nil {
		return nil, err
	}
	if err := frame.CheckClose(); err != nil {
		return nil, err
	}
	if p.InitialCapital <= 0 {
		return nil, fmt.Errorf("initialCapital must be positive")
	}

	equity := make([]float64, n)
	equity[0] = p.InitialCapital
	available := p.InitialCapital

	book := &openBook{method: p.TradingMethod}
	var trades []*Trade

	for i := 1; i < n; i++ {
		price := closes[i]

		// Mark-to-market every open trade, then reheap: the keys changed.
		delta := closes[i] - closes[i-1]
		equity[i] = equity[i-1]
		for _, t := range book.trades {
			move := delta * float64(t.Quantity)
			equity[i] += move
			t.Pnl += move
		}
		heap.Init(book)

		switch signals[i] {
		case SignalOpen:
			quantity := int(math.Floor(p.InvestmentPerTrade / price))
			cost := float64(quantity) * price
			if quantity > 0 && cost <= available {
				t := &Trade{
					EntryDate:  frame.Dates[i],
					EntryPrice: price,
					Quantity:   quantity,
					Side:       "LONG",
					ExitReason: "signal",
				}
				available -= cost
				heap.Push(book, t)
				trades = append(trades, t)
			}
		case SignalClose:
			if book.Len() > 0 {
				t := heap.Pop(book).(*Trade)
				t.ExitDate = frame.Dates[i]
				t.ExitPrice = price
				t.Pnl = (price - t.EntryPrice) * float64(t.Quantity)
				available += float64(t.Quantity) * price
			}
		}
	}

	// Close whatever is still open at the last price.
	lastPrice := closes[n-1]
	lastDate := frame.Dates[n-1]
	for book.Len() > 0 {
		t := heap.Pop(book).(*Trade)
		t.ExitDate = lastDate
		t.ExitPrice = lastPrice
		t.Pnl = (lastPrice - t.EntryPrice) * float64(t.Quantity)
		available += float64(t.Quantity) * lastPrice
	}

	return buildReport(frame.Dates, equity, trades, p), nil
}
