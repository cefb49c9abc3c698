// Package domain holds the sentinel errors shared by the credential domain
// packages. Adapters wrap them; the HTTP layer maps them to status codes.
package domain

import "errors"

var (
	// ErrNotFound: no such tenant, provider, record or model.
	ErrNotFound = errors.New("not found")

	// ErrConflict: a write lost an optimistic-locking race or hit a unique
	// constraint. The caller should reload and retry.
	ErrConflict = errors.New("conflict: resource was modified by another request")

	// ErrValidation: the submitted credentials or parameters are unacceptable.
	// The message after the prefix is safe to show to the caller.
	ErrValidation = errors.New("validation failed")
)
