package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency. The API layer maps
// these onto HTTP statuses; the stores translate driver errors into them so
// callers never need storage-specific knowledge.

var (
	// Identity errors
	ErrUnauthenticated = errors.New("no authenticated employee identity")

	// Validation errors — detected before any storage mutation
	ErrRecipientNotFound = errors.New("recipient not found in employee directory")
	ErrSelfRecognition   = errors.New("cannot give a star to yourself")
	ErrInvalidReason     = errors.New("unknown reason code")
	ErrEmptyMessage      = errors.New("message must not be empty")

	// Quota and concurrency errors — detected at the storage boundary
	ErrQuotaExhausted = errors.New("monthly star quota exhausted")
	ErrConflict       = errors.New("concurrent grant raced the quota check")

	// Storage errors
	ErrStorageUnavailable = errors.New("ledger store unavailable")
)
