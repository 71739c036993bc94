// Package common contains shared constants and sentinel errors used across
// vaultsync components.
package common

// AuthorizationHeaderName carries the bearer access token on API requests.
const AuthorizationHeaderName = "Authorization"

// UserAgentHeaderName and LocaleHeaderName are the stable client headers the
// server hashes into a device identifier. Refresh tokens are scoped to that
// identifier, so revocation covers the whole logical device.
const (
	UserAgentHeaderName = "User-Agent"
	LocaleHeaderName    = "Accept-Language"
)
