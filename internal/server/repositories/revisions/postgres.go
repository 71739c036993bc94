package revisions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements revision storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends a new revision row. The ID is generated here.
func (r *PostgresRepository) Create(ctx context.Context, revision *models.VaultRevision) (*models.VaultRevision, error) {
	query := `
		INSERT INTO vault_revisions
			(id, account_id, revision_number, blob, salt, verifier,
			 encryption_type, encryption_settings, credential_count,
			 email_claim_count, file_size_kb, client_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	revision.ID = uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query,
		revision.ID, revision.AccountID, revision.RevisionNumber, revision.Blob,
		revision.Salt, revision.Verifier, revision.EncryptionType, revision.EncryptionSettings,
		revision.CredentialCount, revision.EmailClaimCount, revision.FileSizeKb,
		revision.ClientVersion); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return revision, nil
}

// LatestByAccount returns the account's current revision.
func (r *PostgresRepository) LatestByAccount(ctx context.Context, accountID string) (*models.VaultRevision, error) {
	query := `
		SELECT id, account_id, revision_number, blob, salt, verifier,
		       encryption_type, encryption_settings, credential_count,
		       email_claim_count, file_size_kb, client_version, created_at, updated_at
		FROM vault_revisions
		WHERE account_id = $1
		ORDER BY revision_number DESC
		LIMIT 1
	`
	revision := &models.VaultRevision{}
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&revision.ID, &revision.AccountID, &revision.RevisionNumber, &revision.Blob,
		&revision.Salt, &revision.Verifier, &revision.EncryptionType, &revision.EncryptionSettings,
		&revision.CredentialCount, &revision.EmailClaimCount, &revision.FileSizeKb,
		&revision.ClientVersion, &revision.CreatedAt, &revision.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return revision, nil
}

// LatestNumber returns the highest revision number, or -1 for an empty history.
func (r *PostgresRepository) LatestNumber(ctx context.Context, accountID string) (int64, error) {
	query := `SELECT coalesce(max(revision_number), -1) FROM vault_revisions WHERE account_id = $1`
	var n int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ListInfoByAccount returns the lightweight retention projection, newest first.
func (r *PostgresRepository) ListInfoByAccount(ctx context.Context, accountID string) ([]*models.RevisionInfo, error) {
	query := `
		SELECT id, revision_number, client_version, credential_count, created_at
		FROM vault_revisions
		WHERE account_id = $1
		ORDER BY revision_number DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to select revisions: %w", err)
	}
	defer rows.Close()

	var result []*models.RevisionInfo
	for rows.Next() {
		var info models.RevisionInfo
		if err := rows.Scan(&info.ID, &info.RevisionNumber, &info.ClientVersion,
			&info.CredentialCount, &info.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a single revision. The account filter keeps a misdirected
// ID from touching another account's history.
func (r *PostgresRepository) Delete(ctx context.Context, accountID, revisionID string) error {
	query := `DELETE FROM vault_revisions WHERE account_id = $1 AND id = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, revisionID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
