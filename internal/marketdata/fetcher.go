package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tradeforge/engine/internal/model"
)

// Origin produces a parsed price frame for a symbol.
type Origin interface {
	Fetch(ctx context.Context, symbol string) (*Frame, error)
}

// Fetcher retrieves CSV price series from the configured origin: the symbol
// is appended to the base URL.
type Fetcher struct {
	client *resty.Client
}

// NewFetcher creates a Fetcher for the given base URL.
func NewFetcher(baseURL string) *Fetcher {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second)
	return &Fetcher{client: c}
}

// Fetch downloads and parses the series for symbol. Any transport failure or
// non-2xx status maps to ErrDataUnavailable.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (*Frame, error) {
	resp, err := f.client.R().SetContext(ctx).Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", model.ErrDataUnavailable, symbol, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: fetch %s: status %d", model.ErrDataUnavailable, symbol, resp.StatusCode())
	}
	frame, err := ParseCSV(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrDataUnavailable, symbol, err)
	}
	return frame, nil
}
