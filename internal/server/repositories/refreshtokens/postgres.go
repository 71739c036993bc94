package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/server/models"
)

// PostgresRepository implements refresh token storage over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new refresh token row.
func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens
			(token, account_id, device_identifier, previous_token, access_token, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		token.Token, token.AccountID, token.DeviceIdentifier,
		token.PreviousToken, token.AccessToken, token.Expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const tokenColumns = `token, account_id, device_identifier, previous_token, access_token, expires_at, created_at`

func (r *PostgresRepository) scanToken(row *sql.Row) (*models.RefreshToken, error) {
	token := &models.RefreshToken{}
	if err := row.Scan(&token.Token, &token.AccountID, &token.DeviceIdentifier,
		&token.PreviousToken, &token.AccessToken, &token.Expires, &token.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

// Find returns the refresh token row for the given token string.
func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token = $1`
	return r.scanToken(r.db.QueryRowContext(ctx, query, token))
}

// FindByPrevious returns the token rotated out of previousToken, if any.
// Fresh login tokens carry an empty previous_token, so an empty argument
// never matches.
func (r *PostgresRepository) FindByPrevious(ctx context.Context, previousToken string) (*models.RefreshToken, error) {
	if previousToken == "" {
		return nil, common.ErrorNotFound
	}
	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE previous_token = $1`
	return r.scanToken(r.db.QueryRowContext(ctx, query, previousToken))
}

// Delete removes a refresh token by its token string.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	query := `DELETE FROM refresh_tokens WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteByDevice removes all of the account's tokens for one device identifier.
func (r *PostgresRepository) DeleteByDevice(ctx context.Context, accountID, deviceIdentifier string) error {
	query := `DELETE FROM refresh_tokens WHERE account_id = $1 AND device_identifier = $2`
	if _, err := r.db.ExecContext(ctx, query, accountID, deviceIdentifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
