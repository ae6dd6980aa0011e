package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Blobs is the shared key-value store backing the cache (Redis in
// production). SetNX semantics keep concurrent writers from tearing an
// entry; values are opaque byte blobs.
type Blobs interface {
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	SetBlobNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// Cache memoises parsed price frames under data_<symbol> keys with a bounded
// TTL. Entries are immutable once written; fetch failures never poison a key.
type Cache struct {
	blobs  Blobs
	origin Origin
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCache wires a cache over the given blob store and origin.
func NewCache(blobs Blobs, origin Origin, ttl time.Duration, log zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{blobs: blobs, origin: origin, ttl: ttl, log: log}
}

func cacheKey(symbol string) string { return "data_" + symbol }

// Get returns the price frame for symbol, fetching and caching on miss.
func (c *Cache) Get(ctx context.Context, symbol string) (*Frame, error) {
	key := cacheKey(symbol)

	blob, ok, err := c.blobs.GetBlob(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cache read failed, falling through to origin")
	}
	if ok {
		var frame Frame
		if err := msgpack.Unmarshal(blob, &frame); err != nil {
			return nil, fmt.Errorf("decode cached frame %s: %w", symbol, err)
		}
		return &frame, nil
	}

	frame, err := c.origin.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}

	enc, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame %s: %w", symbol, err)
	}
	won, err := c.blobs.SetBlobNX(ctx, key, enc, c.ttl)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cache write failed")
	} else if !won {
		c.log.Debug().Str("symbol", symbol).Msg("lost cache write race, reusing local parse")
	}
	return frame, nil
}
