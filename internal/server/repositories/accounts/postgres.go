package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements account storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account row. The ID is generated here.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, username, salt, verifier, encryption_type, encryption_settings)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	account.ID = uuid.NewString()
	if _, err := r.db.ExecContext(ctx, query,
		account.ID, account.Username, account.Salt, account.Verifier,
		account.EncryptionType, account.EncryptionSettings); err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

const accountColumns = `id, username, salt, verifier, encryption_type, encryption_settings,
		failed_access_count, lockout_until, blocked, twofactor_enabled, twofactor_secret, created_at`

func (r *PostgresRepository) scanAccount(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	var lockout sql.NullTime
	if err := row.Scan(
		&account.ID, &account.Username, &account.Salt, &account.Verifier,
		&account.EncryptionType, &account.EncryptionSettings,
		&account.FailedAccessCount, &lockout, &account.Blocked,
		&account.TwoFactorEnabled, &account.TwoFactorSecret, &account.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if lockout.Valid {
		account.LockoutUntil = &lockout.Time
	}
	return account, nil
}

// GetByUsername returns the account with the given normalized username,
// or common.ErrorNotFound.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, username))
}

// GetByID returns the account with the given ID, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// LockForUpdate takes a FOR UPDATE row lock on the account. Must run inside
// a transaction; the lock is the per-account serialization point for vault
// submissions.
func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) error {
	query := `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`
	var got string
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&got); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateAuthState persists the failed-access counter and lockout window.
func (r *PostgresRepository) UpdateAuthState(ctx context.Context, id string, failedCount int, lockoutUntil *time.Time) error {
	query := `UPDATE accounts SET failed_access_count = $2, lockout_until = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, failedCount, lockoutUntil); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateCredentials replaces the account's credential-derivation parameters.
func (r *PostgresRepository) UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) error {
	query := `
		UPDATE accounts
		SET salt = $2, verifier = $3, encryption_type = $4, encryption_settings = $5
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, salt, verifier, encryptionType, encryptionSettings); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// EnableTwoFactor stores the TOTP secret and enables the second factor.
func (r *PostgresRepository) EnableTwoFactor(ctx context.Context, id string, secret string) error {
	query := `UPDATE accounts SET twofactor_enabled = true, twofactor_secret = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, secret); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// AddRecoveryCodes stores hashed recovery codes for the account.
func (r *PostgresRepository) AddRecoveryCodes(ctx context.Context, id string, codeHashes []string) error {
	query := `INSERT INTO recovery_codes (account_id, code_hash) VALUES ($1, $2)`
	for _, h := range codeHashes {
		if _, err := r.db.ExecContext(ctx, query, id, h); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// ConsumeRecoveryCode marks a matching unused recovery code as used.
// Returns common.ErrorNotFound when no unused code matches, which callers
// treat as a failed authentication attempt.
func (r *PostgresRepository) ConsumeRecoveryCode(ctx context.Context, id string, codeHash string) error {
	query := `
		UPDATE recovery_codes SET used = true
		WHERE account_id = $1 AND code_hash = $2 AND NOT used
	`
	res, err := r.db.ExecContext(ctx, query, id, codeHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
