package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradeforge/engine/internal/marketdata"
	"github.com/tradeforge/engine/internal/model"
)

// Stage writes the three execution inputs into the lease's scratch path:
// the user code verbatim, the filtered frame in its binary form, and the
// parameter file. All three must exist before the runtime is invoked.
// Partial state on error is tolerated because the pool empties the scratch
// path on release.
func Stage(lease *Lease, code string, frame *marketdata.Frame, params map[string]float64) error {
	dir := lease.Scratch()

	if err := os.WriteFile(filepath.Join(dir, model.StagedCode), []byte(code), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStaging, model.StagedCode, err)
	}

	enc, err := msgpack.Marshal(frame)
	if err != nil {
		return fmt.Errorf("%w: encode frame: %v", model.ErrStaging, err)
	}
	if err := os.WriteFile(filepath.Join(dir, model.StagedData), enc, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStaging, model.StagedData, err)
	}

	if err := os.WriteFile(filepath.Join(dir, model.StagedConfig), []byte(EncodeParams(params)), 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStaging, model.StagedConfig, err)
	}
	return nil
}

// EncodeParams renders the parameter map as one key=value line per entry,
// keys sorted, floats in locale-independent decimal notation.
func EncodeParams(params map[string]float64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(params[k], 'f', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}
