// Package sync drives the client's submit/merge/resubmit loop against the
// server's optimistic-concurrency contract.
package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/dzaharov/vaultsync/internal/client/api"
	"github.com/dzaharov/vaultsync/internal/client/merge"
	"github.com/dzaharov/vaultsync/internal/client/vault"
	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/cryptox"
)

// State is the engine's position in the sync cycle. It is observable via
// State() so a UI can surface progress; transitions happen only inside Sync.
type State int

const (
	StateSynced State = iota
	StateSubmitting
	StateConflictDetected
	StateMerging
	StateResubmitting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateSubmitting:
		return "submitting"
	case StateConflictDetected:
		return "conflict detected"
	case StateMerging:
		return "merging"
	case StateResubmitting:
		return "resubmitting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrFullResyncRequired means a merge was needed but the common ancestor
// revision is not available locally, so the caller must discard local
// changes or reconcile manually after fetching the server state.
var ErrFullResyncRequired = errors.New("common ancestor unavailable, full resync required")

// ErrTooManyConflicts means the server kept advancing faster than the
// engine could merge and resubmit.
var ErrTooManyConflicts = errors.New("too many merge rounds, giving up")

// ErrRotationConflict means a password change raced a concurrent vault
// write; the caller must sync first and retry the rotation.
var ErrRotationConflict = errors.New("vault changed concurrently, sync and retry")

// maxMergeRounds bounds the merge/resubmit loop when other devices keep
// writing concurrently.
const maxMergeRounds = 5

// Engine synchronizes one local vault with the server.
type Engine struct {
	client        *api.Client
	key           []byte
	clientVersion string
	state         State
}

// NewEngine binds a sync engine to an authenticated API client and the
// session's vault encryption key.
func NewEngine(client *api.Client, key []byte, clientVersion string) *Engine {
	return &Engine{client: client, key: key, clientVersion: clientVersion, state: StateSynced}
}

// State reports the engine's current position in the sync cycle.
func (e *Engine) State() State {
	return e.state
}

// Result is a completed sync: the vault content the server now holds as its
// latest revision, and that revision's number. The caller should adopt both
// as its new ancestor.
type Result struct {
	Vault          *vault.Vault
	RevisionNumber int64
	Merged         bool
}

func (e *Engine) submit(ctx context.Context, v *vault.Vault, baseRevision int64) (*api.SubmitResult, error) {
	blob, err := v.Encrypt(e.key)
	if err != nil {
		return nil, fmt.Errorf("vault encryption error: %w", err)
	}
	return e.client.SubmitVault(ctx, api.Submission{
		Blob:               blob,
		BaseRevisionNumber: baseRevision,
		CredentialCount:    v.CredentialCount(),
		EmailClaimCount:    v.EmailClaimCount(),
		ClientVersion:      e.clientVersion,
	})
}

// Sync pushes local to the server. ancestor is the vault content of
// baseRevision, the last revision this device knows the server accepted; it
// may be nil when no ancestor is cached, in which case any conflict fails
// with ErrFullResyncRequired.
//
// On conflict the engine fetches the server's latest revision, three-way
// merges it with local against ancestor, and resubmits the merged vault
// against the fetched revision number, repeating while other writers race
// it. Cancellation is honored between rounds: once a submission has been
// sent it is allowed to finish, so the server never holds a half-applied
// write.
func (e *Engine) Sync(ctx context.Context, local, ancestor *vault.Vault, baseRevision int64) (*Result, error) {
	e.state = StateSubmitting

	current := local
	base := baseRevision
	merged := false

	for round := 0; ; round++ {
		if round > maxMergeRounds {
			e.state = StateFailed
			return nil, ErrTooManyConflicts
		}
		if err := ctx.Err(); err != nil {
			e.state = StateFailed
			return nil, err
		}

		result, err := e.submit(ctx, current, base)
		if err != nil {
			e.state = StateFailed
			return nil, err
		}

		switch result.Status {
		case api.SubmitAccepted:
			e.state = StateSynced
			return &Result{Vault: current, RevisionNumber: *result.NewRevisionNumber, Merged: merged}, nil

		case api.SubmitOutdated:
			e.state = StateFailed
			return nil, common.ErrClientOutdated

		case api.SubmitMergeRequired:
			e.state = StateConflictDetected
			if ancestor == nil {
				e.state = StateFailed
				return nil, ErrFullResyncRequired
			}

			latest, err := e.client.GetVault(ctx)
			if err != nil {
				e.state = StateFailed
				return nil, err
			}
			remote, err := decryptBlob(latest.Blob, e.key)
			if err != nil {
				e.state = StateFailed
				return nil, fmt.Errorf("remote vault decryption error: %w", err)
			}

			e.state = StateMerging
			current = merge.Merge(ancestor, current, remote)
			base = latest.RevisionNumber
			merged = true
			e.state = StateResubmitting

		default:
			e.state = StateFailed
			return nil, fmt.Errorf("unexpected submit status %d", result.Status)
		}
	}
}

// CredentialRotation is the material for a password change: a fresh proof
// of the current password and the newly derived salt, verifier, settings
// and vault key.
type CredentialRotation struct {
	Username              string
	ClientEphemeralPublic []byte
	ClientSessionProof    []byte
	NewSalt               []byte
	NewVerifier           []byte
	EncryptionSettings    []byte
	NewKey                []byte
}

// ChangePassword re-encrypts the vault under the new key and submits it
// together with the rotated credentials in one atomic request. A conflicting
// concurrent write fails the rotation; the caller should Sync first and
// retry, so the re-encrypted blob never loses another device's changes.
func (e *Engine) ChangePassword(ctx context.Context, v *vault.Vault, baseRevision int64, rot CredentialRotation) (*Result, error) {
	blob, err := v.Encrypt(rot.NewKey)
	if err != nil {
		return nil, fmt.Errorf("vault encryption error: %w", err)
	}

	result, err := e.client.ChangePassword(ctx, api.PasswordChange{
		Submission: api.Submission{
			Blob:               blob,
			BaseRevisionNumber: baseRevision,
			CredentialCount:    v.CredentialCount(),
			EmailClaimCount:    v.EmailClaimCount(),
			ClientVersion:      e.clientVersion,
		},
		Username:              rot.Username,
		ClientEphemeralPublic: rot.ClientEphemeralPublic,
		ClientSessionProof:    rot.ClientSessionProof,
		NewSalt:               rot.NewSalt,
		NewVerifier:           rot.NewVerifier,
		EncryptionType:        cryptox.EncryptionTypeArgon2id,
		EncryptionSettings:    rot.EncryptionSettings,
	})
	if err != nil {
		return nil, err
	}
	if result.Status != api.SubmitAccepted {
		return nil, ErrRotationConflict
	}
	return &Result{Vault: v, RevisionNumber: *result.NewRevisionNumber}, nil
}

// Pull fetches and decrypts the server's latest revision, for adopting as a
// fresh ancestor after ErrFullResyncRequired or on first sync of a device.
func (e *Engine) Pull(ctx context.Context) (*Result, error) {
	latest, err := e.client.GetVault(ctx)
	if err != nil {
		return nil, err
	}
	v, err := decryptBlob(latest.Blob, e.key)
	if err != nil {
		return nil, fmt.Errorf("vault decryption error: %w", err)
	}
	return &Result{Vault: v, RevisionNumber: latest.RevisionNumber}, nil
}

// decryptBlob opens a revision blob. Revision 0 is created at registration
// with an empty blob, which decodes to an empty vault.
func decryptBlob(blob, key []byte) (*vault.Vault, error) {
	if len(blob) == 0 {
		return vault.New(), nil
	}
	return vault.Decrypt(blob, key)
}
