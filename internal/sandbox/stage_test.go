package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/model"
)

func TestStageWritesAllThreeInputs(t *testing.T) {
	pool := newTestPool(t, newFakeRunner(), 1)
	lease, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer pool.Release(lease)

	frame := &marketdata.Frame{
		Dates:   []string{"2024-01-02", "2024-01-03"},
		Columns: map[string][]float64{"close": {100, 102}},
	}
	code := "def generate_signals(data):\n    return [0, 0]\n"
	params := map[string]float64{
		model.ParamInitialCapital:     100000,
		model.ParamInvestmentPerTrade: 10000,
	}

	require.NoError(t, Stage(lease, code, frame, params))

	gotCode, err := os.ReadFile(filepath.Join(lease.Scratch(), model.StagedCode))
	require.NoError(t, err)
	assert.Equal(t, code, string(gotCode))

	raw, err := os.ReadFile(filepath.Join(lease.Scratch(), model.StagedData))
	require.NoError(t, err)
	var decoded marketdata.Frame
	require.NoError(t, msgpack.Unmarshal(raw, &decoded))
	assert.Equal(t, frame.Dates, decoded.Dates)
	assert.Equal(t, frame.Columns["close"], decoded.Columns["close"])

	gotCfg, err := os.ReadFile(filepath.Join(lease.Scratch(), model.StagedConfig))
	require.NoError(t, err)
	assert.Equal(t, "initialCapital=100000\ninvestmentPerTrade=10000\n", string(gotCfg))
}

func TestEncodeParamsSortedAndDecimal(t *testing.T) {
	got := EncodeParams(map[string]float64{
		"trading_method":     1,
		"initialCapital":     100000.5,
		"investmentPerTrade": 10000,
	})
	assert.Equal(t, "initialCapital=100000.5\ninvestmentPerTrade=10000\ntrading_method=1\n", got)
}

func TestEncodeParamsEmpty(t *testing.T) {
	assert.Equal(t, "", EncodeParams(nil))
}

func TestStageErrorWrapsStaging(t *testing.T) {
	pool := newTestPool(t, newFakeRunner(), 1)
	lease, err := pool.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer pool.Release(lease)

	// remove the scratch dir so the code write fails
	require.NoError(t, os.RemoveAll(lease.Scratch()))

	err = Stage(lease, "code", &marketdata.Frame{}, nil)
	require.ErrorIs(t, err, model.ErrStaging)
}
