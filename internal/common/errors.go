// Package common defines shared constants and sentinel errors used across
// client and server layers of vaultsync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("invalid username or password")

	// Account state, disclosed only after a valid password proof.
	ErrAccountLocked  = errors.New("account locked")
	ErrAccountBlocked = errors.New("account blocked")

	// Second factor gate: the SRP proof was valid but a TOTP or recovery
	// code must still be supplied before tokens are issued.
	ErrTwoFactorRequired = errors.New("two-factor authentication required")

	// Vault submission outcomes. These are control flow, not user errors.
	ErrClientOutdated = errors.New("client outdated")

	// Token lifecycle errors.
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
