package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/engine/internal/model"
)

func TestFetcherParsesOriginCSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/AAPL", r.URL.Path)
		_, _ = w.Write([]byte("Date,Close\n2024-01-02,100\n2024-01-03,102\n"))
	}))
	defer srv.Close()

	frame, err := NewFetcher(srv.URL).Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-03"}, frame.Dates)
	assert.Equal(t, []float64{100, 102}, frame.Column("close"))
}

func TestFetcherMapsFailuresToDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL).Fetch(context.Background(), "MISSING")
	require.ErrorIs(t, err, model.ErrDataUnavailable)

	srv.Close()
	_, err = NewFetcher(srv.URL).Fetch(context.Background(), "AAPL")
	require.ErrorIs(t, err, model.ErrDataUnavailable)
}

func TestFetcherMapsBadBodyToDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Open,Close\n100,101\n"))
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL).Fetch(context.Background(), "AAPL")
	require.ErrorIs(t, err, model.ErrDataUnavailable)
}
