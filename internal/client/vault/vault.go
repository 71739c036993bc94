// Package vault defines the client-side plaintext vault model and its
// encrypted wire form. A vault is a set of records keyed by id; each record
// is a set of named fields carrying their own modification timestamps, which
// the merge engine relies on to resolve concurrent edits.
package vault

import (
	"encoding/json"
	"time"

	"github.com/dzaharov/vaultsync/internal/cryptox"
)

// Well-known field names. Records may carry arbitrary additional fields.
const (
	FieldUsername = "username"
	FieldPassword = "password"
	FieldEmail    = "email"
	FieldURL      = "url"
	FieldNotes    = "notes"
)

// Field is a single named value inside a record. UpdatedAt is set by the
// client on every edit and drives last-writer-wins conflict resolution.
type Field struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Record is one stored credential. A record that is removed from the vault
// simply disappears from Records; there are no tombstones.
type Record struct {
	ID     string           `json:"id"`
	Fields map[string]Field `json:"fields"`
}

// Vault is the full plaintext content of an account's vault.
type Vault struct {
	Records map[string]Record `json:"records"`
}

// New returns an empty vault.
func New() *Vault {
	return &Vault{Records: make(map[string]Record)}
}

// Clone returns a deep copy.
func (v *Vault) Clone() *Vault {
	out := New()
	for id, rec := range v.Records {
		fields := make(map[string]Field, len(rec.Fields))
		for name, f := range rec.Fields {
			fields[name] = f
		}
		out.Records[id] = Record{ID: rec.ID, Fields: fields}
	}
	return out
}

// SetField writes one field of a record, creating the record if needed.
func (v *Vault) SetField(recordID, name, value string, at time.Time) {
	rec, ok := v.Records[recordID]
	if !ok {
		rec = Record{ID: recordID, Fields: make(map[string]Field)}
	}
	rec.Fields[name] = Field{Value: value, UpdatedAt: at}
	v.Records[recordID] = rec
}

// DeleteField removes one field of a record.
func (v *Vault) DeleteField(recordID, name string) {
	rec, ok := v.Records[recordID]
	if !ok {
		return
	}
	delete(rec.Fields, name)
}

// DeleteRecord removes a record entirely.
func (v *Vault) DeleteRecord(recordID string) {
	delete(v.Records, recordID)
}

// CredentialCount is the number of records, reported to the server as
// plaintext metadata alongside each submission.
func (v *Vault) CredentialCount() int {
	return len(v.Records)
}

// EmailClaimCount is the number of records carrying a non-empty email field.
func (v *Vault) EmailClaimCount() int {
	n := 0
	for _, rec := range v.Records {
		if f, ok := rec.Fields[FieldEmail]; ok && f.Value != "" {
			n++
		}
	}
	return n
}

// Encrypt serializes the vault and seals it with the given key.
func (v *Vault) Encrypt(key []byte) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return cryptox.EncryptBlob(plaintext, key)
}

// Decrypt opens an encrypted blob and deserializes the vault.
func Decrypt(blob, key []byte) (*Vault, error) {
	plaintext, err := cryptox.DecryptBlob(blob, key)
	if err != nil {
		return nil, err
	}
	v := New()
	if err := json.Unmarshal(plaintext, v); err != nil {
		return nil, err
	}
	if v.Records == nil {
		v.Records = make(map[string]Record)
	}
	return v, nil
}
