package services

import "errors"

// Business-rule failures callers can branch on with errors.Is.
var (
	// ErrNotFound: an escrow or milestone id does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict: the operation's precondition on current status does
	// not hold; the caller must re-read state before retrying.
	ErrStateConflict = errors.New("state conflict")
	// ErrInvariantViolation: the request breaks a creation-time invariant,
	// e.g. milestone percentages not summing to 100.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrSettlement: the settlement adapter failed or timed out; nothing was
	// persisted and the whole operation may be retried.
	ErrSettlement = errors.New("settlement failure")
)
