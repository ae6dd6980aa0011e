package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateRange bounds a backtest window. Both endpoints are inclusive and use
// YYYY-MM-DD notation.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

const dateLayout = "2006-01-02"

// Validate rejects endpoints that do not parse as YYYY-MM-DD dates and
// windows that end before they start. Empty endpoints are open ends.
func (r DateRange) Validate() error {
	if r.From != "" {
		if _, err := time.Parse(dateLayout, r.From); err != nil {
			return fmt.Errorf("malformed from date %q, want YYYY-MM-DD", r.From)
		}
	}
	if r.To != "" {
		if _, err := time.Parse(dateLayout, r.To); err != nil {
			return fmt.Errorf("malformed to date %q, want YYYY-MM-DD", r.To)
		}
	}
	if r.From != "" && r.To != "" && r.From > r.To {
		return fmt.Errorf("window ends %s before it starts %s", r.To, r.From)
	}
	return nil
}

// BacktestRequest is the immutable submission payload: which symbol to load,
// the user's strategy code, and the parameter map fed to the harness.
type BacktestRequest struct {
	Symbol string             `json:"symbol"`
	Code   string             `json:"code"`
	Params map[string]float64 `json:"params,omitempty"`
	Range  DateRange          `json:"range"`
}

// Job carries one backtest request through the execution queue.
type Job struct {
	TaskID  string          `json:"taskId"`
	Request BacktestRequest `json:"request"`
}

// Task states as stored in the result store.
const (
	StateCompleted = "completed"
	StateError     = "error"
	StatePending   = "pending"
)

// TaskResult is the task-id-addressed record written exactly once per job.
// For completed runs Stdout holds the strategy report JSON.
type TaskResult struct {
	State    string `json:"state"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	Error    string `json:"error,omitempty"`
}

// TaskState is the polling view returned to callers.
type TaskState struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Staged input file names; the contract between the scratch stager and the
// sandbox runtime.
const (
	StagedCode   = "code.py"
	StagedData   = "data.pkl"
	StagedConfig = "config.txt"
)

// Harness parameter keys recognised in config.txt.
const (
	ParamInitialCapital     = "initialCapital"
	ParamInvestmentPerTrade = "investmentPerTrade"
	ParamTradingMethod      = "trading_method"
)
