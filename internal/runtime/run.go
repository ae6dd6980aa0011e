package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"

	"github.com/tradeforge/engine/internal/strategy"
)

// entryPoint is the callable every strategy must define.
const entryPoint = "generate_signals"

// maxExecutionSteps bounds the Starlark interpreter; runaway user loops die
// inside the sandbox instead of hanging the worker.
const maxExecutionSteps = 50_000_000

// Run drives one sandbox execution over the staged directory and returns
// the process exit code. The report JSON goes to stdout; diagnostics go to
// stderr only.
func Run(dir string, stdout, stderr io.Writer) int {
	inputs, err := Load(dir)
	if err != nil {
		fmt.Fprintf(stderr, "input error: %v\n", err)
		return ExitInputs
	}
	if err := inputs.Frame.CheckClose(); err != nil {
		fmt.Fprintf(stderr, "input error: %v\n", err)
		return ExitInputs
	}

	if err := Vet(inputs.Code); err != nil {
		fmt.Fprintf(stderr, "invalid user code: %v\n", err)
		return ExitUserCode
	}

	signals, err := evaluate(inputs, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return ExitUserCode
	}

	report, err := strategy.Run(inputs.Frame, signals, HarnessParams(inputs.Params))
	if err != nil {
		fmt.Fprintf(stderr, "backtest error: %v\n", err)
		return ExitUserCode
	}

	enc := json.NewEncoder(stdout)
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(stderr, "encode report: %v\n", err)
		return ExitUserCode
	}
	return ExitOK
}

// evaluate runs the vetted code in a fresh environment pre-populated with
// the numeric module, then calls generate_signals with the frame.
func evaluate(inputs *Inputs, stderr io.Writer) ([]int, error) {
	thread := &starlark.Thread{
		Name: "strategy",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(stderr, msg)
		},
	}
	thread.SetMaxExecutionSteps(maxExecutionSteps)

	predeclared := starlark.StringDict{
		"math": starlarkmath.Module,
	}

	globals, err := starlark.ExecFile(thread, "code.py", inputs.Code, predeclared)
	if err != nil {
		return nil, evalError("user code failed", err)
	}

	fn, ok := globals[entryPoint].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("no valid %q function defined", entryPoint)
	}

	frame := &frameValue{frame: inputs.Frame}
	result, err := starlark.Call(thread, fn, starlark.Tuple{frame}, nil)
	if err != nil {
		return nil, evalError(entryPoint+" failed", err)
	}

	return signalsFromValue(result, inputs.Frame.Len())
}

// evalError keeps the Starlark backtrace when one is available.
func evalError(prefix string, err error) error {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("%s: %s", prefix, evalErr.Backtrace())
	}
	return fmt.Errorf("%s: %v", prefix, err)
}
