// Package revisions declares the repository contract for the append-only
// vault revision sequence.
package revisions

import (
	"context"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

// Repository defines persistence operations for vault revisions.
type Repository interface {
	// Create appends a new revision. The (account, revision number) pair is
	// unique; violating it yields common.ErrorAlreadyExists.
	Create(ctx context.Context, revision *models.VaultRevision) (*models.VaultRevision, error)

	// LatestByAccount returns the revision with the highest number for the
	// account, or common.ErrorNotFound if the account has none.
	LatestByAccount(ctx context.Context, accountID string) (*models.VaultRevision, error)

	// LatestNumber returns the highest revision number for the account,
	// or -1 if the account has no revisions.
	LatestNumber(ctx context.Context, accountID string) (int64, error)

	// ListInfoByAccount returns the retention projection of the account's
	// full history, newest first. Blobs are never loaded.
	ListInfoByAccount(ctx context.Context, accountID string) ([]*models.RevisionInfo, error)

	// Delete removes one revision by ID.
	Delete(ctx context.Context, accountID, revisionID string) error
}
