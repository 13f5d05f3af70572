// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinels across portal/repo/service layers.
var (
	// ErrPortalUnavailable indicates a transport failure or timeout talking
	// to the upstream portal. Recoverable by a later attempt.
	ErrPortalUnavailable = errors.New("portal unavailable")

	// ErrInvalidCredentials indicates the portal rejected the login.
	// Terminal for the current sync.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates no account matches the supplied identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrMissingCredential indicates the account has no stored credential
	// usable for an unattended sync.
	ErrMissingCredential = errors.New("missing stored credential")

	// ErrRateLimited indicates the per-user sync cooldown denied the attempt.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitedError carries the remaining wait until the next allowed sync.
// It unwraps to ErrRateLimited.
type RateLimitedError struct {
	NextAllowedAt time.Time
	Wait          time.Duration
}

func (e *RateLimitedError) Error() string {
	h := int(e.Wait.Hours())
	m := int(e.Wait.Minutes()) % 60
	return fmt.Sprintf("sync allowed again in %dh %dm", h, m)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }
