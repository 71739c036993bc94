package models

import "time"

// RefreshToken is a persisted, device-scoped refresh token. PreviousToken
// records the token this one rotated out of; the refresh engine uses it to
// detect a legitimate double-submission inside the reuse window and hand the
// same pair back instead of forcing a re-login. AccessToken holds the access
// half of that pair for exactly that replay; it is never consulted for
// authentication.
type RefreshToken struct {
	Token            string
	AccountID        string
	DeviceIdentifier string
	PreviousToken    string
	AccessToken      string
	Expires          time.Time
	CreatedAt        time.Time
}
