package model

import "errors"

// Error taxonomy for the execution pipeline. Submission-time failures
// (validation, service availability) surface on the HTTP response; everything
// else becomes a task result with state "error".
var (
	// ErrValidation flags a missing or malformed request field.
	ErrValidation = errors.New("validation error")

	// ErrServiceUnavailable means the execution backend or result store is
	// unreachable at submission time.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrDataUnavailable means the market-data origin fetch failed.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrPoolExhausted means no sandbox worker became free within the
	// acquire deadline.
	ErrPoolExhausted = errors.New("sandbox pool exhausted")

	// ErrStaging means writing the execution inputs into the scratch
	// directory failed.
	ErrStaging = errors.New("staging failed")

	// ErrSandboxTransient marks a container-API failure that is worth
	// retrying.
	ErrSandboxTransient = errors.New("transient sandbox error")

	// ErrSandboxFatal marks a sandbox crash or non-zero exit; never retried.
	ErrSandboxFatal = errors.New("sandbox execution failed")
)
