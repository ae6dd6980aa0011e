package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Frame is an ordered, date-keyed price table. Dates use YYYY-MM-DD notation
// and sort lexicographically in chronological order; numeric columns are
// stored under case-folded names. Cached frames are treated as immutable:
// every transformation returns fresh storage.
type Frame struct {
	Dates   []string             `msgpack:"dates" json:"dates"`
	Columns map[string][]float64 `msgpack:"columns" json:"columns"`
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Dates) }

// Column returns the named column (case-insensitive) or nil.
func (f *Frame) Column(name string) []float64 {
	return f.Columns[strings.ToLower(name)]
}

// Close returns the close-price column, which every frame in the pipeline
// must carry.
func (f *Frame) Close() ([]float64, error) {
	c := f.Column("close")
	if c == nil {
		return nil, fmt.Errorf("frame has no close column")
	}
	return c, nil
}

// CheckClose verifies that every close price is a finite number. Origin
// CSVs turn unparsable cells into NaN, and a single bad close would poison
// every mark-to-market step after it, so frames are rejected before a
// backtest ever sees them.
func (f *Frame) CheckClose() error {
	closes, err := f.Close()
	if err != nil {
		return err
	}
	for i, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("close price at %s is not a finite number", f.Dates[i])
		}
	}
	return nil
}

// dateLayouts accepted from origin CSVs, normalised to YYYY-MM-DD.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006", "02-01-2006"}

func normalizeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognised date %q", s)
}

// ParseCSV reads a CSV price series with a Date column (case-insensitive)
// and numeric value columns. Rows keep file order; cells that fail to parse
// as numbers become NaN.
func ParseCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	dateIdx := -1
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
		if names[i] == "date" {
			dateIdx = i
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("csv has no Date column")
	}

	frame := &Frame{Columns: make(map[string][]float64)}
	for i, n := range names {
		if i != dateIdx {
			frame.Columns[n] = nil
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		date, err := normalizeDate(rec[dateIdx])
		if err != nil {
			return nil, err
		}
		frame.Dates = append(frame.Dates, date)
		for i, n := range names {
			if i == dateIdx {
				continue
			}
			v, perr := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if perr != nil {
				v = math.NaN()
			}
			frame.Columns[n] = append(frame.Columns[n], v)
		}
	}
	return frame, nil
}

// Filter returns the rows whose date lies within [from, to], both endpoints
// inclusive, preserving row order. Missing dates are simply absent rows. The
// receiver is never mutated.
func (f *Frame) Filter(from, to string) *Frame {
	out := &Frame{Columns: make(map[string][]float64, len(f.Columns))}
	for i, d := range f.Dates {
		if (from != "" && d < from) || (to != "" && d > to) {
			continue
		}
		out.Dates = append(out.Dates, d)
		for name, col := range f.Columns {
			out.Columns[name] = append(out.Columns[name], col[i])
		}
	}
	for name := range f.Columns {
		if out.Columns[name] == nil {
			out.Columns[name] = []float64{}
		}
	}
	return out
}
