package ca

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// ErrPolicyViolation is returned when an operation is refused before any
	// side effect, e.g. a destructive method applied to every certificate.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrInvalidOperation is returned for bulk requests that make no sense
	// for an inherently per-host operation.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound is returned when a host has neither a certificate nor a
	// request where one was required, or a serial is not revocable.
	ErrNotFound = errors.New("not found")

	// ErrServiceFailure wraps failures of the underlying certificate
	// machinery: storage I/O, key access, signing, corrupt records.
	ErrServiceFailure = errors.New("certificate service failure")

	// ErrAborted is returned when the operator declines an interactive
	// confirmation.
	ErrAborted = errors.New("aborted")

	// ErrInterface is returned when an operation resolves to nothing to do,
	// e.g. signing with no waiting requests.
	ErrInterface = errors.New("interface error")

	// ErrNotInitialized is returned when the CA has no state record yet.
	ErrNotInitialized = errors.New("certificate authority is not initialized")

	// ErrAlreadyInitialized is returned by Init on a CA that already exists.
	ErrAlreadyInitialized = errors.New("certificate authority is already initialized")
)

// VerificationError reports a certificate that failed chain or revocation
// checks. It is not fatal for listing: the host is reported Invalid.
type VerificationError struct {
	Host   string
	Reason string
}

func (e *VerificationError) Error() string {
	return e.Reason
}

func verificationError(host, format string, args ...any) *VerificationError {
	return &VerificationError{Host: host, Reason: fmt.Sprintf(format, args...)}
}

// serviceError wraps err as an ErrServiceFailure unless it already carries
// one of the distinguished kinds.
func serviceError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrPolicyViolation, ErrInvalidOperation, ErrNotFound, ErrServiceFailure,
		ErrAborted, ErrInterface, ErrNotInitialized, ErrAlreadyInitialized,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	var verr *VerificationError
	if errors.As(err, &verr) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrServiceFailure, op, err)
}
