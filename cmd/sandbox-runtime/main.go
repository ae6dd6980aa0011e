// The sandbox runtime is the entry point inside the code-sandbox image.
// It reads the staged inputs from the scratch bind point, vets and runs the
// user strategy, and writes the report JSON to stdout. All diagnostics go
// to stderr.
package main

import (
	"os"

	"github.com/tradeforge/engine/internal/logger"
	"github.com/tradeforge/engine/internal/runtime"
)

func main() {
	log := logger.NewWithWriter("sandbox-runtime", os.Stderr)

	dir := os.Getenv("HOST_TMPFS_BIND")
	if dir == "" {
		dir = "/host_tmpfs"
	}

	code := runtime.Run(dir, os.Stdout, os.Stderr)
	if code != runtime.ExitOK {
		log.Error().Int("exit_code", code).Msg("execution failed")
	}
	os.Exit(code)
}
