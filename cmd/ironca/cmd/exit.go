package cmd

import (
	"errors"

	"github.com/jmcleod/ironca/ca"
	"github.com/jmcleod/ironca/config"
)

// Exit codes.
const (
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

// ExitCode maps err to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ca.ErrPolicyViolation),
		errors.Is(err, ca.ErrInvalidOperation),
		errors.Is(err, ca.ErrAborted),
		errors.Is(err, ca.ErrInterface),
		errors.Is(err, config.ErrInvalidConfig):
		return exitUsage
	case errors.Is(err, ca.ErrNotFound):
		return exitNotFound
	default:
		return exitFailure
	}
}
