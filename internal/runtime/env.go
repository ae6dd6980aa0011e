package runtime

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"

	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/strategy"
)

// frameValue exposes the price frame to user code. Columns are readable as
// attributes (data.close, data.dates); rows are indexable and len() works.
// The value is frozen by construction: user code can only read it.
type frameValue struct {
	frame *marketdata.Frame
}

var (
	_ starlark.Value     = (*frameValue)(nil)
	_ starlark.HasAttrs  = (*frameValue)(nil)
	_ starlark.Indexable = (*frameValue)(nil)
)

func (f *frameValue) String() string        { return fmt.Sprintf("frame(%d rows)", f.frame.Len()) }
func (f *frameValue) Type() string          { return "frame" }
func (f *frameValue) Freeze()               {}
func (f *frameValue) Truth() starlark.Bool  { return starlark.Bool(f.frame.Len() > 0) }
func (f *frameValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: frame") }
func (f *frameValue) Len() int              { return f.frame.Len() }

// Index returns row i as a dict of column name to value, date included.
func (f *frameValue) Index(i int) starlark.Value {
	row := starlark.NewDict(len(f.frame.Columns) + 1)
	_ = row.SetKey(starlark.String("date"), starlark.String(f.frame.Dates[i]))
	for name, col := range f.frame.Columns {
		_ = row.SetKey(starlark.String(name), starlark.Float(col[i]))
	}
	row.Freeze()
	return row
}

func (f *frameValue) Attr(name string) (starlark.Value, error) {
	if name == "dates" {
		out := make([]starlark.Value, f.frame.Len())
		for i, d := range f.frame.Dates {
			out[i] = starlark.String(d)
		}
		l := starlark.NewList(out)
		l.Freeze()
		return l, nil
	}
	if col := f.frame.Column(name); col != nil {
		out := make([]starlark.Value, len(col))
		for i, v := range col {
			out[i] = starlark.Float(v)
		}
		l := starlark.NewList(out)
		l.Freeze()
		return l, nil
	}
	return nil, nil // no such attribute
}

func (f *frameValue) AttrNames() []string {
	names := make([]string, 0, len(f.frame.Columns)+1)
	names = append(names, "dates")
	for name := range f.frame.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// signalsFromValue converts the return value of generate_signals into the
// harness signal column: a sequence of ints in {-1, 0, +1} matching the
// frame length. Integral floats are accepted.
func signalsFromValue(v starlark.Value, want int) ([]int, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("generate_signals returned %s, want a list of signals", v.Type())
	}

	var signals []int
	iter := iterable.Iterate()
	defer iter.Done()

	var x starlark.Value
	for iter.Next(&x) {
		var s int
		switch t := x.(type) {
		case starlark.Int:
			i64, ok := t.Int64()
			if !ok {
				return nil, fmt.Errorf("signal out of range: %s", t)
			}
			s = int(i64)
		case starlark.Float:
			s = int(t)
			if float64(s) != float64(t) {
				return nil, fmt.Errorf("signal must be an integer, got %s", t)
			}
		default:
			return nil, fmt.Errorf("signal must be an integer, got %s", x.Type())
		}
		if s < strategy.SignalClose || s > strategy.SignalOpen {
			return nil, fmt.Errorf("signal value %d outside {-1, 0, 1}", s)
		}
		signals = append(signals, s)
	}

	if len(signals) != want {
		return nil, fmt.Errorf("signal column length %d does not match frame length %d", len(signals), want)
	}
	return signals, nil
}
