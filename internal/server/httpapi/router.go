package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dzaharov/vaultsync/internal/logging"
)

// NewRouter assembles the HTTP surface. Auth endpoints are public; the vault
// endpoints require a bearer access token.
func NewRouter(auth *AuthHandler, vault *VaultHandler, secret []byte, logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.AllowContentType("application/json"))
	r.Use(withRequestLogging(logger))
	r.Use(withDevice)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", auth.Register)
			r.Post("/login", auth.Login)
			r.Post("/validate", auth.Validate)
			r.Post("/validate-2fa", auth.ValidateTwoFactor)
			r.Post("/validate-recovery-code", auth.ValidateRecoveryCode)
			r.Post("/refresh", auth.Refresh)
			r.Post("/revoke", auth.Revoke)
		})

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(secret))
			r.Get("/status", vault.Status)
			r.Get("/vault", vault.Get)
			r.Post("/vault", vault.Submit)
			r.Post("/vault/change-password", vault.ChangePassword)
			r.Post("/auth/enroll-2fa", auth.EnrollTwoFactor)
		})
	})

	return r
}
