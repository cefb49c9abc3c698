package service

import (
	"errors"
	"fmt"

	"github.com/Strob0t/CredForge/internal/domain"
)

var (
	// ErrRecordNotCreated means an insert returned no persisted identity. It
	// aborts the surrounding transaction and is never retried.
	ErrRecordNotCreated = errors.New("credential record not created")

	// ErrCacheUnavailable wraps cache failures. It is logged, never returned
	// to callers.
	ErrCacheUnavailable = errors.New("credentials cache unavailable")

	// ErrUnknownProvider means no schema is registered for the provider.
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", domain.ErrNotFound)
)
