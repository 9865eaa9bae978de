// Package storage persists the portfolio snapshot in a key-value backend and
// shields the engine from every storage failure.
package storage

import "errors"

// Sentinel errors shared across all backend implementations.
var (
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	ErrAccessDenied  = errors.New("storage access denied")
)

// KeyValueStore is the storage backend contract. Values are opaque strings;
// Get reports presence separately from failure.
type KeyValueStore interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// FailureKind buckets a backend error for metrics and user-facing messages.
type FailureKind string

const (
	FailureQuota   FailureKind = "quota"
	FailureAccess  FailureKind = "access"
	FailureUnknown FailureKind = "unknown"
)

// ClassifyFailure maps a backend error onto its failure kind.
func ClassifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return FailureQuota
	case errors.Is(err, ErrAccessDenied):
		return FailureAccess
	default:
		return FailureUnknown
	}
}
