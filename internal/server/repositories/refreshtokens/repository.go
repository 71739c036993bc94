// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh tokens.
type Repository interface {
	// Create stores a new refresh token row.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks a refresh token up by its opaque token string.
	// Returns common.ErrorNotFound when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// FindByPrevious returns the token that rotated out of the given token
	// value, if any. The refresh engine uses it to detect double-submission
	// inside the reuse window.
	FindByPrevious(ctx context.Context, previousToken string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a
	// non-existent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByDevice removes every refresh token of the account that shares
	// the given device identifier. This is "log out this device".
	DeleteByDevice(ctx context.Context, accountID, deviceIdentifier string) error
}
