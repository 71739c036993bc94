// Package httpapi exposes the versioned REST surface of the vaultsync
// server: the SRP authentication endpoints and the vault read/write
// endpoints.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/logging"
	"github.com/dzaharov/vaultsync/internal/server/auth"
)

type ctxKey string

const (
	accountIDKey ctxKey = "accountID"
	deviceIDKey  ctxKey = "deviceID"
)

// GetAccountIDFromContext returns the authenticated account ID, or "".
func GetAccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey).(string)
	return id
}

// GetDeviceIDFromContext returns the request's device identifier, or "".
func GetDeviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey).(string)
	return id
}

// DeviceIdentifier derives a deterministic device fingerprint from the
// stable client headers. Tokens issued to the same logical device collide
// on it, which is what makes "log out this device" revoke all of them.
func DeviceIdentifier(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.Header.Get(common.UserAgentHeaderName) + "|" + r.Header.Get(common.LocaleHeaderName)))
	return hex.EncodeToString(sum[:])[:32]
}

// withDevice attaches the device identifier to every request context.
func withDevice(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), deviceIDKey, DeviceIdentifier(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerAuth enforces a valid access token and stores the account ID in the
// request context.
func bearerAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(common.AuthorizationHeaderName)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}
			accountID, err := auth.GetAccountIDFromToken(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), accountIDKey, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withRequestLogging logs each request with its method and path.
func withRequestLogging(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Info(r.Context(), "request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
