package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMalformedBrokerURL(t *testing.T) {
	_, err := New("not-a-url", "", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse broker url")
}

func TestNewRejectsMalformedResultBackendURL(t *testing.T) {
	_, err := New("redis://localhost:6379/0", "not-a-url", time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse result backend url")
}

func TestNewBrokerDoublesAsResultBackend(t *testing.T) {
	s, err := New("redis://localhost:6379/0", "", time.Hour)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Same(t, s.broker, s.kv)

	s2, err := New("redis://localhost:6379/0", "redis://localhost:6379/0", time.Hour)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()
	assert.Same(t, s2.broker, s2.kv)
}

func TestNewSeparateResultBackend(t *testing.T) {
	s, err := New("redis://broker:6379/0", "redis://results:6379/1", time.Hour)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.NotSame(t, s.broker, s.kv)
	assert.Equal(t, "results:6379", s.kv.Options().Addr)
	assert.Equal(t, 1, s.kv.Options().DB)
}

func TestNewDefaultsResultTTL(t *testing.T) {
	s, err := New("redis://localhost:6379/0", "", 0)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, time.Hour, s.resultTTL)
}
