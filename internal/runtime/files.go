// Package runtime is the single entry point inside the sandbox image: it
// loads the staged inputs, statically vets the user code, evaluates it in a
// hermetic Starlark environment, runs the backtest harness, and writes the
// report JSON to stdout.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/model"
	"github.com/tradeforge/engine/internal/strategy"
)

// Process exit codes reserved by the runtime contract.
const (
	ExitOK       = 0
	ExitUserCode = 1
	ExitInputs   = 2
)

// Inputs are the three staged files, decoded.
type Inputs struct {
	Code   string
	Frame  *marketdata.Frame
	Params map[string]float64
}

// Load reads code.py, data.pkl and config.txt from dir. Any missing or
// unreadable file is fatal with the distinguished inputs exit code.
func Load(dir string) (*Inputs, error) {
	code, err := os.ReadFile(filepath.Join(dir, model.StagedCode))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", model.StagedCode, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, model.StagedData))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", model.StagedData, err)
	}
	var frame marketdata.Frame
	if err := msgpack.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode %s: %w", model.StagedData, err)
	}

	cfg, err := os.ReadFile(filepath.Join(dir, model.StagedConfig))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", model.StagedConfig, err)
	}
	params, err := ParseConfig(string(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", model.StagedConfig, err)
	}

	return &Inputs{Code: string(code), Frame: &frame, Params: params}, nil
}

// ParseConfig decodes the key=value parameter file.
func ParseConfig(text string) (map[string]float64, error) {
	params := make(map[string]float64)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, val, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", key, err)
		}
		params[strings.TrimSpace(key)] = f
	}
	return params, nil
}

// HarnessParams extracts the three harness parameters, applying the
// defaults for anything the submission omitted.
func HarnessParams(params map[string]float64) strategy.Params {
	p := strategy.Params{
		InitialCapital:     100000,
		InvestmentPerTrade: 10000,
		TradingMethod:      strategy.MethodLossCutting,
	}
	if v, ok := params[model.ParamInitialCapital]; ok {
		p.InitialCapital = v
	}
	if v, ok := params[model.ParamInvestmentPerTrade]; ok {
		p.InvestmentPerTrade = v
	}
	if v, ok := params[model.ParamTradingMethod]; ok && int(v) == strategy.MethodProfitTaking {
		p.TradingMethod = strategy.MethodProfitTaking
	}
	return p
}
