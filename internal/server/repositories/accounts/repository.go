// Package accounts declares the server-side repository contract for account
// rows, including the lockout counters and recovery codes that live with them.
package accounts

import (
	"context"
	"time"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	// Create inserts a new account and returns it with its generated ID.
	// A username collision yields common.ErrorAlreadyExists.
	Create(ctx context.Context, account *models.Account) (*models.Account, error)

	// GetByUsername looks an account up by its normalized username.
	GetByUsername(ctx context.Context, username string) (*models.Account, error)

	// GetByID looks an account up by ID.
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// LockForUpdate takes a row lock on the account, serializing concurrent
	// vault submissions for it until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, id string) error

	// UpdateAuthState persists the failed-access counter and lockout window.
	UpdateAuthState(ctx context.Context, id string, failedCount int, lockoutUntil *time.Time) error

	// UpdateCredentials replaces the account's salt, verifier, and
	// encryption parameters after a password change.
	UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) error

	// EnableTwoFactor stores the TOTP secret and flips the 2FA flag.
	EnableTwoFactor(ctx context.Context, id string, secret string) error

	// AddRecoveryCodes stores hashed single-use recovery codes.
	AddRecoveryCodes(ctx context.Context, id string, codeHashes []string) error

	// ConsumeRecoveryCode marks an unused recovery code as used. If no
	// unused code matches, it returns common.ErrorNotFound.
	ConsumeRecoveryCode(ctx context.Context, id string, codeHash string) error
}
