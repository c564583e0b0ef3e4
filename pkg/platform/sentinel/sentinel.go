package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (wrapped with
// %w) so services can translate them into coded domain errors without string
// matching.
//
// These represent factual states about stored resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a uniqueness or compare-and-set condition failed
// - ErrExpired: one-time code or verified session past its validity window
// - ErrAlreadyUsed: single-use resource (OTP, verified session) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
