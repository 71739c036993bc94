package models

import "time"

// Account is one registered user. Salt, verifier, and the encryption
// parameters mirror the account's latest vault revision; the copy here lets
// the SRP engine run before any vault data is read.
type Account struct {
	ID                 string
	Username           string
	Salt               []byte
	Verifier           []byte
	EncryptionType     string
	EncryptionSettings []byte
	FailedAccessCount  int
	LockoutUntil       *time.Time
	Blocked            bool
	TwoFactorEnabled   bool
	TwoFactorSecret    string
	CreatedAt          time.Time
}

// LockedAt reports whether the account is inside a lockout window at now.
func (a *Account) LockedAt(now time.Time) bool {
	return a.LockoutUntil != nil && a.LockoutUntil.After(now)
}
