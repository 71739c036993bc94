package models

import "time"

// VaultRevision is one immutable snapshot of an account's encrypted vault.
// Revision numbers are strictly increasing per account starting at 0; a
// write never mutates an existing revision. Only the retention engine
// deletes revisions, and never the latest one.
type VaultRevision struct {
	ID                 string
	AccountID          string
	RevisionNumber     int64
	Blob               []byte
	Salt               []byte
	Verifier           []byte
	EncryptionType     string
	EncryptionSettings []byte
	CredentialCount    int
	EmailClaimCount    int
	FileSizeKb         int
	ClientVersion      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RevisionInfo is the lightweight projection the retention engine operates
// on. It deliberately excludes the blob.
type RevisionInfo struct {
	ID              string
	RevisionNumber  int64
	ClientVersion   string
	CredentialCount int
	CreatedAt       time.Time
}
