// Package api implements the HTTP client for the vault server. It mirrors
// the server's JSON surface one method per endpoint and maps HTTP statuses
// onto the shared error taxonomy so callers can branch with errors.Is.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dzaharov/vaultsync/internal/common"
)

// ErrConflict is returned when the server rejects a request because the
// resource already exists.
var ErrConflict = errors.New("already exists")

const requestTimeout = 30 * time.Second

// Client talks to one vault server. Access and refresh tokens are held on
// the client and attached to authenticated requests; SetTokens must be
// called after login or refresh.
type Client struct {
	baseURL      string
	http         *http.Client
	accessToken  string
	refreshToken string
}

// New returns a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetTokens installs the token pair used for authenticated requests.
func (c *Client) SetTokens(access, refresh string) {
	c.accessToken = access
	c.refreshToken = refresh
}

// Tokens returns the currently installed token pair.
func (c *Client) Tokens() (access, refresh string) {
	return c.accessToken, c.refreshToken
}

func statusError(code int, body []byte) error {
	switch code {
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusLocked:
		return common.ErrAccountLocked
	case http.StatusForbidden:
		return common.ErrAccountBlocked
	case http.StatusConflict:
		return ErrConflict
	default:
		return fmt.Errorf("server returned %d: %s", code, bytes.TrimSpace(body))
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authenticated bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, data)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("response decode error: %w", err)
		}
	}
	return nil
}

type registerRequest struct {
	Username           string          `json:"username"`
	Salt               []byte          `json:"salt"`
	Verifier           []byte          `json:"verifier"`
	EncryptionType     string          `json:"encryptionType"`
	EncryptionSettings json.RawMessage `json:"encryptionSettings"`
}

// Register creates an account from client-computed SRP material.
func (c *Client) Register(ctx context.Context, username string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) error {
	return c.do(ctx, http.MethodPost, "/api/v1/auth/register", registerRequest{
		Username:           username,
		Salt:               salt,
		Verifier:           verifier,
		EncryptionType:     encryptionType,
		EncryptionSettings: encryptionSettings,
	}, nil, false)
}

// LoginChallenge is the server's response to a login initiation.
type LoginChallenge struct {
	Salt                  []byte          `json:"salt"`
	ServerEphemeralPublic []byte          `json:"serverEphemeralPublic"`
	EncryptionType        string          `json:"encryptionType"`
	EncryptionSettings    json.RawMessage `json:"encryptionSettings"`
}

// Login initiates the SRP exchange for username.
func (c *Client) Login(ctx context.Context, username string) (*LoginChallenge, error) {
	var challenge LoginChallenge
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{"username": username}, &challenge, false)
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

type validateRequest struct {
	Username              string `json:"username"`
	ClientEphemeralPublic []byte `json:"clientEphemeralPublic"`
	ClientSessionProof    []byte `json:"clientSessionProof"`
	RememberMe            bool   `json:"rememberMe"`
	Code                  string `json:"code,omitempty"`
}

// TokenPair is an access/refresh token pair issued by the server.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ValidateResult is the outcome of a proof validation. When
// RequiresTwoFactor is set, Tokens is nil and the exchange must be completed
// with ValidateTwoFactor or ValidateRecoveryCode.
type ValidateResult struct {
	RequiresTwoFactor  bool       `json:"requiresTwoFactor"`
	ServerSessionProof []byte     `json:"serverSessionProof"`
	Tokens             *TokenPair `json:"tokens,omitempty"`
}

// Attempt is one SRP validation attempt.
type Attempt struct {
	Username              string
	ClientEphemeralPublic []byte
	ClientSessionProof    []byte
	RememberMe            bool
	Code                  string
}

func (c *Client) validate(ctx context.Context, path string, attempt Attempt) (*ValidateResult, error) {
	var result ValidateResult
	err := c.do(ctx, http.MethodPost, path, validateRequest{
		Username:              attempt.Username,
		ClientEphemeralPublic: attempt.ClientEphemeralPublic,
		ClientSessionProof:    attempt.ClientSessionProof,
		RememberMe:            attempt.RememberMe,
		Code:                  attempt.Code,
	}, &result, false)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Validate submits the SRP client proof.
func (c *Client) Validate(ctx context.Context, attempt Attempt) (*ValidateResult, error) {
	return c.validate(ctx, "/api/v1/auth/validate", attempt)
}

// ValidateTwoFactor completes a pending exchange with a TOTP code.
func (c *Client) ValidateTwoFactor(ctx context.Context, attempt Attempt) (*ValidateResult, error) {
	return c.validate(ctx, "/api/v1/auth/validate-2fa", attempt)
}

// ValidateRecoveryCode completes a pending exchange with a recovery code.
func (c *Client) ValidateRecoveryCode(ctx context.Context, attempt Attempt) (*ValidateResult, error) {
	return c.validate(ctx, "/api/v1/auth/validate-recovery-code", attempt)
}

type tokenRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the refresh token and installs the new pair.
func (c *Client) Refresh(ctx context.Context) (*TokenPair, error) {
	var pair TokenPair
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", tokenRequest{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
	}, &pair, false)
	if err != nil {
		return nil, err
	}
	c.SetTokens(pair.AccessToken, pair.RefreshToken)
	return &pair, nil
}

// Revoke invalidates every refresh token the server holds for this device
// and clears the installed pair.
func (c *Client) Revoke(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/revoke", tokenRequest{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
	}, nil, false)
	if err != nil {
		return err
	}
	c.SetTokens("", "")
	return nil
}

// Enrollment is the material returned when enabling two-factor auth.
type Enrollment struct {
	Secret        string   `json:"secret"`
	AuthURL       string   `json:"authUrl"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

// EnrollTwoFactor enables TOTP on the authenticated account.
func (c *Client) EnrollTwoFactor(ctx context.Context) (*Enrollment, error) {
	var enrollment Enrollment
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/enroll-2fa", nil, &enrollment, true); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Status is the cheap sync probe.
type Status struct {
	RevisionNumber int64  `json:"revisionNumber"`
	ServerVersion  string `json:"serverVersion"`
}

// GetStatus fetches the account's latest revision number.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &status, true); err != nil {
		return nil, err
	}
	return &status, nil
}

// VaultRevision is the latest server-side revision as returned by GET /vault.
type VaultRevision struct {
	Blob               []byte          `json:"blob"`
	RevisionNumber     int64           `json:"revisionNumber"`
	Salt               []byte          `json:"salt"`
	EncryptionType     string          `json:"encryptionType"`
	EncryptionSettings json.RawMessage `json:"encryptionSettings"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// GetVault fetches the latest revision.
func (c *Client) GetVault(ctx context.Context) (*VaultRevision, error) {
	var revision VaultRevision
	if err := c.do(ctx, http.MethodGet, "/api/v1/vault", nil, &revision, true); err != nil {
		return nil, err
	}
	return &revision, nil
}

// Submission statuses mirrored from the server.
const (
	SubmitAccepted      = 0
	SubmitMergeRequired = 1
	SubmitOutdated      = 2
)

// Submission is one optimistic-concurrency vault write.
type Submission struct {
	Blob               []byte `json:"blob"`
	BaseRevisionNumber int64  `json:"baseRevisionNumber"`
	CredentialCount    int    `json:"credentialCount"`
	EmailClaimCount    int    `json:"emailClaimCount"`
	ClientVersion      string `json:"clientVersion"`
}

// SubmitResult reports the outcome of a submission. NewRevisionNumber is
// set only when Status is SubmitAccepted.
type SubmitResult struct {
	Status            int    `json:"status"`
	NewRevisionNumber *int64 `json:"newRevisionNumber,omitempty"`
}

// SubmitVault submits a new vault revision against a base revision.
func (c *Client) SubmitVault(ctx context.Context, sub Submission) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/vault", sub, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}

// PasswordChange carries a change-password submission: a fresh SRP proof of
// the current password plus the new derivation material, alongside the vault
// blob re-encrypted under the new key.
type PasswordChange struct {
	Submission
	Username              string          `json:"username"`
	ClientEphemeralPublic []byte          `json:"clientEphemeralPublic"`
	ClientSessionProof    []byte          `json:"clientSessionProof"`
	NewSalt               []byte          `json:"newSalt"`
	NewVerifier           []byte          `json:"newVerifier"`
	EncryptionType        string          `json:"encryptionType"`
	EncryptionSettings    json.RawMessage `json:"encryptionSettings"`
}

// ChangePassword atomically rotates credentials and writes the re-encrypted
// vault.
func (c *Client) ChangePassword(ctx context.Context, change PasswordChange) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/vault/change-password", change, &result, true); err != nil {
		return nil, err
	}
	return &result, nil
}
