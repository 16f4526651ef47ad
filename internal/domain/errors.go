package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for federation failures.
// Use with errors.Is() for checking and fmt.Errorf("%w", ...) for wrapping with context.

var (
	// ErrMalformedStatement indicates a statement could not be parsed or
	// fails its structural invariants (e.g. iss != sub on a configuration).
	ErrMalformedStatement = errors.New("malformed entity statement")

	// ErrSignatureInvalid indicates no candidate key verified the signature.
	ErrSignatureInvalid = errors.New("statement signature invalid")

	// ErrExpired indicates a statement is outside its iat/exp validity window.
	ErrExpired = errors.New("statement expired or not yet valid")

	// ErrUnreachableEntity indicates an entity's federation endpoint could not
	// be reached after bounded retries.
	ErrUnreachableEntity = errors.New("entity unreachable")

	// ErrNotFound indicates an endpoint answered but has no statement for the
	// requested subject.
	ErrNotFound = errors.New("statement not found")

	// ErrBrokenChainLink indicates adjacent statements do not connect: issuer
	// mismatch, subject mismatch, or a signing key the superior does not vouch.
	ErrBrokenChainLink = errors.New("broken trust chain link")

	// ErrChainTooLong indicates the configured maximum chain depth was exceeded.
	ErrChainTooLong = errors.New("trust chain exceeds maximum depth")

	// ErrPolicyViolation indicates metadata policy folding produced an empty
	// or forbidden result, or a chain constraint was not met.
	ErrPolicyViolation = errors.New("metadata policy violation")

	// ErrRequiredTrustMarkMissing indicates a caller-required trust mark type
	// did not survive validation.
	ErrRequiredTrustMarkMissing = errors.New("required trust mark missing")

	// ErrResolutionTimeout indicates the overall resolution deadline elapsed.
	ErrResolutionTimeout = errors.New("trust chain resolution timed out")

	// ErrNoValidPath indicates every authority hint path was exhausted without
	// reaching a trusted anchor.
	ErrNoValidPath = errors.New("no valid trust path to any anchor")
)

// ResolutionError is the terminal error of a resolve call. It names the
// entity and hop depth where the most advanced hint path failed, wrapping
// the sentinel that classifies the failure.
type ResolutionError struct {
	// Entity is the frontier entity at which the path failed.
	Entity EntityID
	// Depth is the hop count from the leaf when the failure occurred.
	Depth int
	// Err is the underlying cause, classified by one of the sentinels above.
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolution failed at %q (depth %d): %v", e.Entity, e.Depth, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
