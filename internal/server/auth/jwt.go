// Package auth issues and validates the stateless, signed access tokens.
// Access tokens are short-lived and never persisted; revocation happens at
// the refresh-token layer.
package auth

import (
	"errors"
	"time"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carries the registered claims plus the account identifier.
// The JTI (RegisteredClaims.ID) makes every issued token unique.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string `json:"accountId"`
}

// GenerateToken mints an HS256 access token for accountID.
func GenerateToken(accountID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		AccountID: accountID,
	})
	return token.SignedString(secretKey)
}

// GetAccountIDFromToken validates the token (including its lifetime) and
// returns the account ID claim.
func GetAccountIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}
	if !token.Valid {
		return "", common.ErrInvalidToken
	}
	return claims.AccountID, nil
}

// GetAccountIDFromExpiredToken verifies the token signature but tolerates an
// elapsed lifetime. The refresh path uses it to recover the account identity
// from the possibly-expired access half of a token pair.
func GetAccountIDFromExpiredToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}); err != nil {
		return "", common.ErrInvalidToken
	}
	if claims.AccountID == "" {
		return "", common.ErrInvalidToken
	}
	return claims.AccountID, nil
}
