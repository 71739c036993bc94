package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/dzaharov/vaultsync/internal/server/services"
)

// VaultProvider is the slice of the vault service the handlers need.
type VaultProvider interface {
	Read(ctx context.Context, accountID string) (*models.VaultRevision, error)
	Submit(ctx context.Context, accountID string, sub *services.Submission) (*services.SubmitResult, error)
	ChangePassword(ctx context.Context, accountID string, sub *services.Submission, change *services.CredentialChange) (*services.SubmitResult, error)
	LatestRevisionNumber(ctx context.Context, accountID string) (int64, error)
}

// PasswordVerifier is the slice of the auth service the change-password
// endpoint needs to demand a fresh proof of the current password.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, creds services.Credentials) (*models.Account, []byte, error)
}

// VaultHandler serves the vault read/write endpoints.
type VaultHandler struct {
	Vault         VaultProvider
	Verifier      PasswordVerifier
	ServerVersion string
}

type vaultResponse struct {
	Blob               []byte          `json:"blob"`
	RevisionNumber     int64           `json:"revisionNumber"`
	Salt               []byte          `json:"salt"`
	EncryptionType     string          `json:"encryptionType"`
	EncryptionSettings json.RawMessage `json:"encryptionSettings"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

type submitRequest struct {
	Blob               []byte `json:"blob"`
	BaseRevisionNumber int64  `json:"baseRevisionNumber"`
	CredentialCount    int    `json:"credentialCount"`
	EmailClaimCount    int    `json:"emailClaimCount"`
	ClientVersion      string `json:"clientVersion"`
}

type submitResponse struct {
	Status            int    `json:"status"`
	NewRevisionNumber *int64 `json:"newRevisionNumber,omitempty"`
}

type changePasswordRequest struct {
	submitRequest
	Username              string          `json:"username"`
	ClientEphemeralPublic []byte          `json:"clientEphemeralPublic"`
	ClientSessionProof    []byte          `json:"clientSessionProof"`
	NewSalt               []byte          `json:"newSalt"`
	NewVerifier           []byte          `json:"newVerifier"`
	EncryptionType        string          `json:"encryptionType"`
	EncryptionSettings    json.RawMessage `json:"encryptionSettings"`
}

type statusResponse struct {
	RevisionNumber int64  `json:"revisionNumber"`
	ServerVersion  string `json:"serverVersion"`
}

// Get handles GET /vault: the latest revision.
func (h *VaultHandler) Get(w http.ResponseWriter, r *http.Request) {
	revision, err := h.Vault.Read(r.Context(), GetAccountIDFromContext(r.Context()))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, vaultResponse{
		Blob:               revision.Blob,
		RevisionNumber:     revision.RevisionNumber,
		Salt:               revision.Salt,
		EncryptionType:     revision.EncryptionType,
		EncryptionSettings: revision.EncryptionSettings,
		CreatedAt:          revision.CreatedAt,
		UpdatedAt:          revision.UpdatedAt,
	})
}

func writeSubmitResult(w http.ResponseWriter, result *services.SubmitResult) {
	resp := submitResponse{Status: int(result.Status)}
	if result.Status == services.SubmitAccepted {
		n := result.NewRevisionNumber
		resp.NewRevisionNumber = &n
	}
	writeJSON(w, resp)
}

// Submit handles POST /vault: the optimistic-concurrency write.
func (h *VaultHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	result, err := h.Vault.Submit(r.Context(), GetAccountIDFromContext(r.Context()), &services.Submission{
		Blob:               req.Blob,
		BaseRevisionNumber: req.BaseRevisionNumber,
		CredentialCount:    req.CredentialCount,
		EmailClaimCount:    req.EmailClaimCount,
		ClientVersion:      req.ClientVersion,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeSubmitResult(w, result)
}

// ChangePassword handles POST /vault/change-password. It re-validates the
// current password with a fresh SRP proof before accepting the new
// credential-derivation parameters, then applies the write under the same
// optimistic-concurrency contract as Submit.
func (h *VaultHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	account, _, err := h.Verifier.VerifyPassword(r.Context(), services.Credentials{
		Username:              req.Username,
		ClientEphemeralPublic: req.ClientEphemeralPublic,
		ClientSessionProof:    req.ClientSessionProof,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if account.ID != GetAccountIDFromContext(r.Context()) {
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
		return
	}

	result, err := h.Vault.ChangePassword(r.Context(), account.ID, &services.Submission{
		Blob:               req.Blob,
		BaseRevisionNumber: req.BaseRevisionNumber,
		CredentialCount:    req.CredentialCount,
		EmailClaimCount:    req.EmailClaimCount,
		ClientVersion:      req.ClientVersion,
	}, &services.CredentialChange{
		Salt:               req.NewSalt,
		Verifier:           req.NewVerifier,
		EncryptionType:     req.EncryptionType,
		EncryptionSettings: req.EncryptionSettings,
	})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeSubmitResult(w, result)
}

// Status handles GET /status: the sync probe.
func (h *VaultHandler) Status(w http.ResponseWriter, r *http.Request) {
	n, err := h.Vault.LatestRevisionNumber(r.Context(), GetAccountIDFromContext(r.Context()))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusResponse{RevisionNumber: n, ServerVersion: h.ServerVersion})
}
