package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/dzaharov/vaultsync/internal/server/services"
)

// AuthProvider is the slice of the auth service the handlers need.
type AuthProvider interface {
	Register(ctx context.Context, username string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) (*models.Account, error)
	Login(ctx context.Context, username string) (*services.LoginChallenge, error)
	Validate(ctx context.Context, creds services.Credentials, rememberMe bool, device string) (*services.AuthResult, error)
	ValidateTwoFactor(ctx context.Context, creds services.Credentials, code string, rememberMe bool, device string) (*services.AuthResult, error)
	ValidateRecoveryCode(ctx context.Context, creds services.Credentials, code string, rememberMe bool, device string) (*services.AuthResult, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*services.TokenPair, error)
	Revoke(ctx context.Context, accessToken, refreshToken string) error
	EnrollTwoFactor(ctx context.Context, accountID string) (*services.TwoFactorEnrollment, error)
}

// AuthHandler serves the SRP authentication endpoints.
type AuthHandler struct {
	Auth AuthProvider
}

type registerRequest struct {
	Username           string          `json:"username"`
	Salt               []byte          `json:"salt"`
	Verifier           []byte          `json:"verifier"`
	EncryptionType     string          `json:"encryptionType"`
	EncryptionSettings json.RawMessage `json:"encryptionSettings"`
}

type loginRequest struct {
	Username string `json:"username"`
}

type loginResponse struct {
	Salt                  []byte          `json:"salt"`
	ServerEphemeralPublic []byte          `json:"serverEphemeralPublic"`
	EncryptionType        string          `json:"encryptionType"`
	EncryptionSettings    json.RawMessage `json:"encryptionSettings"`
}

type validateRequest struct {
	Username              string `json:"username"`
	ClientEphemeralPublic []byte `json:"clientEphemeralPublic"`
	ClientSessionProof    []byte `json:"clientSessionProof"`
	RememberMe            bool   `json:"rememberMe"`
	Code                  string `json:"code,omitempty"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type validateResponse struct {
	RequiresTwoFactor  bool               `json:"requiresTwoFactor"`
	ServerSessionProof []byte             `json:"serverSessionProof"`
	Tokens             *tokenPairResponse `json:"tokens,omitempty"`
}

type tokenRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type enrollmentResponse struct {
	Secret        string   `json:"secret"`
	AuthURL       string   `json:"authUrl"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeAuthError maps the service error taxonomy onto HTTP statuses. Every
// authentication failure is reported with the same uniform message; only
// locked and blocked accounts are distinguishable, and the service already
// guarantees that happens strictly after a valid proof.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrAccountLocked):
		http.Error(w, "account locked", http.StatusLocked)
	case errors.Is(err, common.ErrAccountBlocked):
		http.Error(w, "account blocked", http.StatusForbidden)
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
	case errors.Is(err, common.ErrorAlreadyExists):
		http.Error(w, "already exists", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if _, err := h.Auth.Register(r.Context(), req.Username, req.Salt, req.Verifier,
		req.EncryptionType, req.EncryptionSettings); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Login handles POST /auth/login: the SRP initiation.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	challenge, err := h.Auth.Login(r.Context(), req.Username)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, loginResponse{
		Salt:                  challenge.Salt,
		ServerEphemeralPublic: challenge.ServerEphemeralPublic,
		EncryptionType:        challenge.EncryptionType,
		EncryptionSettings:    challenge.EncryptionSettings,
	})
}

func decodeValidate(r *http.Request) (services.Credentials, *validateRequest, error) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return services.Credentials{}, nil, err
	}
	return services.Credentials{
		Username:              req.Username,
		ClientEphemeralPublic: req.ClientEphemeralPublic,
		ClientSessionProof:    req.ClientSessionProof,
	}, &req, nil
}

func writeAuthResult(w http.ResponseWriter, result *services.AuthResult) {
	resp := validateResponse{
		RequiresTwoFactor:  result.RequiresTwoFactor,
		ServerSessionProof: result.ServerProof,
	}
	if result.Tokens != nil {
		resp.Tokens = &tokenPairResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		}
	}
	writeJSON(w, resp)
}

// Validate handles POST /auth/validate: the SRP proof check.
func (h *AuthHandler) Validate(w http.ResponseWriter, r *http.Request) {
	creds, req, err := decodeValidate(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.Auth.Validate(r.Context(), creds, req.RememberMe, GetDeviceIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeAuthResult(w, result)
}

// ValidateTwoFactor handles POST /auth/validate-2fa.
func (h *AuthHandler) ValidateTwoFactor(w http.ResponseWriter, r *http.Request) {
	creds, req, err := decodeValidate(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.Auth.ValidateTwoFactor(r.Context(), creds, req.Code, req.RememberMe, GetDeviceIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeAuthResult(w, result)
}

// ValidateRecoveryCode handles POST /auth/validate-recovery-code.
func (h *AuthHandler) ValidateRecoveryCode(w http.ResponseWriter, r *http.Request) {
	creds, req, err := decodeValidate(r)
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.Auth.ValidateRecoveryCode(r.Context(), creds, req.Code, req.RememberMe, GetDeviceIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeAuthResult(w, result)
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	pair, err := h.Auth.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, tokenPairResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Revoke handles POST /auth/revoke.
func (h *AuthHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := h.Auth.Revoke(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// EnrollTwoFactor handles POST /auth/enroll-2fa (authenticated).
func (h *AuthHandler) EnrollTwoFactor(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.Auth.EnrollTwoFactor(r.Context(), GetAccountIDFromContext(r.Context()))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, enrollmentResponse{
		Secret:        enrollment.Secret,
		AuthURL:       enrollment.AuthURL,
		RecoveryCodes: enrollment.RecoveryCodes,
	})
}
