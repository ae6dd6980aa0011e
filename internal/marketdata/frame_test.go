package marketdata

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,100.0,101.5,99.0,100.0,1000
2024-01-03,100.5,103.0,100.0,102.0,1100
2024-01-04,102.0,102.5,100.5,101.0,900
2024-01-05,101.0,104.0,101.0,103.0,1200
2024-01-08,103.5,105.5,103.0,105.0,1500
`

func TestParseCSV(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, frame.Len())
	assert.Equal(t, []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05", "2024-01-08"}, frame.Dates)

	closeCol, err := frame.Close()
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 102, 101, 103, 105}, closeCol)

	// column lookup is case-insensitive
	assert.Equal(t, closeCol, frame.Column("Close"))
	assert.Equal(t, []float64{1000, 1100, 900, 1200, 1500}, frame.Column("volume"))
}

func TestParseCSVNormalisesDates(t *testing.T) {
	csv := "Date,Close\n2024/01/02,100\n01/03/2024,101\n"
	frame, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, frame.Dates)
}

func TestParseCSVBadCellBecomesNaN(t *testing.T) {
	csv := "Date,Close\n2024-01-02,100\n2024-01-03,n/a\n"
	frame, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)
	closeCol := frame.Column("close")
	require.Len(t, closeCol, 2)
	assert.Equal(t, 100.0, closeCol[0])
	assert.True(t, math.IsNaN(closeCol[1]))
}

func TestParseCSVRejectsMissingDateColumn(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Open,Close\n100,101\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Date")
}

func TestParseCSVRejectsBadDate(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Date,Close\nnot-a-date,100\n"))
	require.Error(t, err)
}

func TestFilterInclusiveEndpoints(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	got := frame.Filter("2024-01-03", "2024-01-05")
	assert.Equal(t, []string{"2024-01-03", "2024-01-04", "2024-01-05"}, got.Dates)
	assert.Equal(t, []float64{102, 101, 103}, got.Column("close"))
}

func TestFilterOpenEnds(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, frame.Filter("", "").Len())
	assert.Equal(t, []string{"2024-01-05", "2024-01-08"}, frame.Filter("2024-01-05", "").Dates)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, frame.Filter("", "2024-01-03").Dates)
}

func TestFilterEmptyWindow(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	got := frame.Filter("2030-01-01", "2030-12-31")
	assert.Equal(t, 0, got.Len())
	// empty windows still carry all column names
	require.NotNil(t, got.Columns["close"])
	assert.Empty(t, got.Columns["close"])
}

func TestFilterDoesNotMutateReceiver(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	got := frame.Filter("2024-01-03", "2024-01-04")
	got.Dates[0] = "mutated"
	got.Columns["close"][0] = -1

	assert.Equal(t, "2024-01-03", frame.Dates[1])
	assert.Equal(t, 102.0, frame.Columns["close"][1])
}

func TestCheckClose(t *testing.T) {
	frame, err := ParseCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, frame.CheckClose())

	bad := &Frame{
		Dates:   []string{"2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"},
		Columns: map[string][]float64{"close": {100, 102, math.NaN(), 104}},
	}
	err = bad.CheckClose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-01-04")

	inf := &Frame{
		Dates:   []string{"2024-01-02"},
		Columns: map[string][]float64{"close": {math.Inf(1)}},
	}
	require.Error(t, inf.CheckClose())

	noClose := &Frame{Dates: []string{"2024-01-02"}, Columns: map[string][]float64{"open": {1}}}
	require.Error(t, noClose.CheckClose())
}

func TestCloseMissing(t *testing.T) {
	frame := &Frame{Dates: []string{"2024-01-02"}, Columns: map[string][]float64{"open": {1}}}
	_, err := frame.Close()
	require.Error(t, err)
}
