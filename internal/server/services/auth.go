// Package services contains server-side business logic. This file implements
// AuthService: the SRP login exchange, account lockout, two-factor
// completion, and the issuing/refreshing/revoking of token pairs.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/cryptox"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/logging"
	"github.com/dzaharov/vaultsync/internal/otp"
	"github.com/dzaharov/vaultsync/internal/server/auth"
	"github.com/dzaharov/vaultsync/internal/server/config"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/dzaharov/vaultsync/internal/server/repositories/repomanager"
	"github.com/dzaharov/vaultsync/internal/server/sessions"
	"github.com/dzaharov/vaultsync/internal/srp"
)

// refreshReuseWindow bounds how long an already-rotated refresh token keeps
// answering with the pair it rotated into. Two tabs refreshing concurrently
// both get the same pair; anything older is invalid.
const refreshReuseWindow = 30 * time.Second

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginChallenge is the response to a login initiation: everything a client
// needs to derive its key and run its half of the SRP exchange.
type LoginChallenge struct {
	Salt                  []byte
	ServerEphemeralPublic []byte
	EncryptionType        string
	EncryptionSettings    []byte
}

// Credentials carries one SRP validation attempt.
type Credentials struct {
	Username              string
	ClientEphemeralPublic []byte
	ClientSessionProof    []byte
}

// AuthResult is the outcome of a successful proof. When RequiresTwoFactor is
// set, no tokens are issued yet; the client must complete with a TOTP or
// recovery code. ServerProof is the mutual-authentication value the client
// must verify before trusting the session.
type AuthResult struct {
	ServerProof       []byte
	RequiresTwoFactor bool
	Tokens            *TokenPair
}

// TwoFactorEnrollment is the material handed to a client enabling 2FA.
type TwoFactorEnrollment struct {
	Secret        string
	AuthURL       string
	RecoveryCodes []string
}

// AuthService implements the SRP authentication engine.
type AuthService struct {
	db        *sql.DB
	repos     repomanager.RepositoryManager
	cfg       *config.Config
	logger    logging.Logger
	sessions  *sessions.Cache
	group     *srp.Group
	refreshMu sync.Mutex
	now       func() time.Time
}

// NewAuthService constructs an AuthService using repositories and server config.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:       db,
		repos:    m,
		cfg:      cfg,
		logger:   logger.With("module", "auth_service"),
		sessions: sessions.NewCache(sessions.DefaultTTL),
		group:    srp.DefaultGroup,
		now:      time.Now,
	}
}

// NormalizeUsername maps a user-entered username to its canonical form.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Register creates a new account from client-supplied salt, verifier, and
// public encryption settings, together with vault revision 0 (an empty
// blob). The server never sees the password these were derived from.
func (s *AuthService) Register(ctx context.Context, username string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) (*models.Account, error) {
	username = NormalizeUsername(username)
	if username == "" || len(salt) == 0 || len(verifier) == 0 {
		return nil, common.ErrorUnauthorized
	}
	if encryptionType == "" {
		encryptionType = cryptox.EncryptionTypeArgon2id
	}

	account := &models.Account{
		Username:           username,
		Salt:               salt,
		Verifier:           verifier,
		EncryptionType:     encryptionType,
		EncryptionSettings: encryptionSettings,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repos.Accounts(tx).Create(ctx, account)
		if err != nil {
			return err
		}
		_, err = s.repos.Revisions(tx).Create(ctx, &models.VaultRevision{
			AccountID:          created.ID,
			RevisionNumber:     0,
			Blob:               []byte{},
			Salt:               salt,
			Verifier:           verifier,
			EncryptionType:     encryptionType,
			EncryptionSettings: encryptionSettings,
		})
		return err
	}); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, nil
}

// Login initiates an SRP exchange: it generates a server ephemeral pair
// against the stored verifier, caches the secret half for the validation
// call, and returns the public challenge. Unknown usernames receive a decoy
// challenge derived from random data, so account existence does not leak
// through this path; blocked and locked accounts also get a real challenge
// and are only told apart after a valid proof.
func (s *AuthService) Login(ctx context.Context, username string) (*LoginChallenge, error) {
	username = NormalizeUsername(username)

	account, err := s.repos.Accounts(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return s.decoyChallenge(username)
		}
		return nil, common.ErrorInternal
	}

	session, err := srp.NewServerSession(s.group, username, account.Salt, account.Verifier)
	if err != nil {
		return nil, common.ErrorInternal
	}
	s.sessions.Put(username, session.Secret())

	return &LoginChallenge{
		Salt:                  account.Salt,
		ServerEphemeralPublic: session.PublicEphemeral(),
		EncryptionType:        account.EncryptionType,
		EncryptionSettings:    account.EncryptionSettings,
	}, nil
}

// decoyChallenge mimics a real challenge for a nonexistent account. The
// random verifier guarantees every proof against it fails.
func (s *AuthService) decoyChallenge(username string) (*LoginChallenge, error) {
	salt := common.GenerateRandByteArray(cryptox.SaltSize)
	verifier := common.GenerateRandByteArray(32)
	session, err := srp.NewServerSession(s.group, username, salt, verifier)
	if err != nil {
		return nil, common.ErrorInternal
	}
	s.sessions.Put(username, session.Secret())

	settings, _ := cryptox.DefaultKDFParams().Encode()
	return &LoginChallenge{
		Salt:                  salt,
		ServerEphemeralPublic: session.PublicEphemeral(),
		EncryptionType:        cryptox.EncryptionTypeArgon2id,
		EncryptionSettings:    settings,
	}, nil
}

// Validate checks the client's SRP proof. On success it either issues a
// token pair or, for 2FA-enabled accounts, reports that a second factor is
// still required. Every failure path is uniform toward the caller.
func (s *AuthService) Validate(ctx context.Context, creds Credentials, rememberMe bool, device string) (*AuthResult, error) {
	account, serverProof, err := s.verifyProof(ctx, creds)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		// The ephemeral stays cached: the completion call re-runs the
		// proof against it.
		return &AuthResult{ServerProof: serverProof, RequiresTwoFactor: true}, nil
	}
	tokens, err := s.finalize(ctx, account, rememberMe, device)
	if err != nil {
		return nil, err
	}
	return &AuthResult{ServerProof: serverProof, Tokens: tokens}, nil
}

// ValidateTwoFactor completes a 2FA login. The SRP proof is re-checked in
// full; the second factor is additive, never a replacement. A bad code
// counts toward lockout exactly like a bad password.
func (s *AuthService) ValidateTwoFactor(ctx context.Context, creds Credentials, code string, rememberMe bool, device string) (*AuthResult, error) {
	account, serverProof, err := s.verifyProof(ctx, creds)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled || !otp.VerifyCode(account.TwoFactorSecret, code, s.now()) {
		s.recordFailure(ctx, account)
		return nil, common.ErrorUnauthorized
	}
	tokens, err := s.finalize(ctx, account, rememberMe, device)
	if err != nil {
		return nil, err
	}
	return &AuthResult{ServerProof: serverProof, Tokens: tokens}, nil
}

// ValidateRecoveryCode completes a 2FA login by consuming a single-use
// recovery code.
func (s *AuthService) ValidateRecoveryCode(ctx context.Context, creds Credentials, code string, rememberMe bool, device string) (*AuthResult, error) {
	account, serverProof, err := s.verifyProof(ctx, creds)
	if err != nil {
		return nil, err
	}
	if !account.TwoFactorEnabled {
		s.recordFailure(ctx, account)
		return nil, common.ErrorUnauthorized
	}
	if err := s.repos.Accounts(s.db).ConsumeRecoveryCode(ctx, account.ID, otp.HashRecoveryCode(code)); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.recordFailure(ctx, account)
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	tokens, err := s.finalize(ctx, account, rememberMe, device)
	if err != nil {
		return nil, err
	}
	return &AuthResult{ServerProof: serverProof, Tokens: tokens}, nil
}

// VerifyPassword runs a full SRP validation without issuing tokens. The
// change-password flow uses it to demand a fresh proof of the current
// password before accepting new credential-derivation parameters.
func (s *AuthService) VerifyPassword(ctx context.Context, creds Credentials) (*models.Account, []byte, error) {
	account, serverProof, err := s.verifyProof(ctx, creds)
	if err != nil {
		return nil, nil, err
	}
	s.sessions.Delete(account.Username)
	s.resetFailures(ctx, account)
	return account, serverProof, nil
}

// verifyProof is the shared SRP core: it re-derives the server session from
// the cached ephemeral and checks the client's proof. A missing/expired
// ephemeral and a wrong proof fail identically. Blocked and locked states
// are only disclosed after the proof verifies.
func (s *AuthService) verifyProof(ctx context.Context, creds Credentials) (*models.Account, []byte, error) {
	username := NormalizeUsername(creds.Username)

	account, err := s.repos.Accounts(s.db).GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Burn the decoy session so this path costs the same as a
			// real failed proof.
			if secret, ok := s.sessions.Get(username); ok {
				session := srp.RestoreServerSession(s.group, username, nil, secret, secret)
				_, _ = session.VerifyClientProof(creds.ClientEphemeralPublic, creds.ClientSessionProof)
			}
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	secret, ok := s.sessions.Get(username)
	if !ok {
		s.recordFailure(ctx, account)
		return nil, nil, common.ErrorUnauthorized
	}

	session := srp.RestoreServerSession(s.group, username, account.Salt, account.Verifier, secret)
	serverProof, err := session.VerifyClientProof(creds.ClientEphemeralPublic, creds.ClientSessionProof)
	if err != nil {
		s.recordFailure(ctx, account)
		return nil, nil, common.ErrorUnauthorized
	}

	if account.Blocked {
		return nil, nil, common.ErrAccountBlocked
	}
	if account.LockedAt(s.now()) {
		return nil, nil, common.ErrAccountLocked
	}
	return account, serverProof, nil
}

// recordFailure bumps the failed-access counter and, once it crosses the
// threshold, opens the lockout window. Persistence failures are logged but
// never override the authentication outcome.
func (s *AuthService) recordFailure(ctx context.Context, account *models.Account) {
	failed := account.FailedAccessCount + 1
	lockout := account.LockoutUntil
	if failed >= s.cfg.LockoutThreshold {
		until := s.now().Add(s.cfg.LockoutDuration)
		lockout = &until
		failed = 0
	}
	if err := s.repos.Accounts(s.db).UpdateAuthState(ctx, account.ID, failed, lockout); err != nil {
		s.logger.Error(ctx, "failed to persist auth state", "account", account.ID, "error", err.Error())
	}
}

func (s *AuthService) resetFailures(ctx context.Context, account *models.Account) {
	if account.FailedAccessCount == 0 && account.LockoutUntil == nil {
		return
	}
	if err := s.repos.Accounts(s.db).UpdateAuthState(ctx, account.ID, 0, nil); err != nil {
		s.logger.Error(ctx, "failed to reset auth state", "account", account.ID, "error", err.Error())
	}
}

// finalize completes a fully proven authentication: the ephemeral is
// consumed, the failure counter reset, and a token pair issued.
func (s *AuthService) finalize(ctx context.Context, account *models.Account, rememberMe bool, device string) (*TokenPair, error) {
	s.sessions.Delete(account.Username)
	s.resetFailures(ctx, account)

	validity := s.cfg.RefreshTokenValidityDuration
	if rememberMe {
		validity = s.cfg.RefreshTokenRememberMeDuration
	}
	return s.generateTokenPair(ctx, s.db, account.ID, device, validity, "")
}

func (s *AuthService) generateTokenPair(ctx context.Context, tx dbx.DBTX, accountID, device string, validity time.Duration, previousToken string) (*TokenPair, error) {
	access, err := auth.GenerateToken(accountID, []byte(s.cfg.SecretKey), s.cfg.AccessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repos.RefreshTokens(tx).Create(ctx, &models.RefreshToken{
		Token:            refresh,
		AccountID:        accountID,
		DeviceIdentifier: device,
		PreviousToken:    previousToken,
		AccessToken:      access,
		Expires:          s.now().Add(validity),
	}); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh rotates a refresh token and mints a new pair. The account is
// recovered from the access token with its lifetime ignored; only the
// signature must hold. A token already rotated within the reuse window
// answers with the pair it rotated into, so concurrent refreshes from the
// same client do not force a re-login. The critical section makes the
// reuse check and the delete-and-insert atomic per process.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// An empty token would match the empty previous_token of every freshly
	// issued pair in the reuse-window lookup below.
	if refreshToken == "" {
		return nil, common.ErrInvalidToken
	}

	accountID, err := auth.GetAccountIDFromExpiredToken(accessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	repo := s.repos.RefreshTokens(s.db)
	old, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("error searching refresh token: %w", err)
		}
		successor, ferr := repo.FindByPrevious(ctx, refreshToken)
		if ferr == nil && successor.AccountID == accountID &&
			s.now().Sub(successor.CreatedAt) <= refreshReuseWindow {
			return &TokenPair{AccessToken: successor.AccessToken, RefreshToken: successor.Token}, nil
		}
		return nil, common.ErrInvalidToken
	}
	if old.AccountID != accountID {
		return nil, common.ErrInvalidToken
	}
	if old.Expires.Before(s.now()) {
		_ = repo.Delete(ctx, refreshToken)
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, tx, accountID, old.DeviceIdentifier,
			old.Expires.Sub(old.CreatedAt), refreshToken)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// Revoke deletes the named refresh token and every other token sharing its
// device identifier: a full logout for the device, not just this session.
func (s *AuthService) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	accountID, err := auth.GetAccountIDFromExpiredToken(accessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return common.ErrInvalidToken
	}

	repo := s.repos.RefreshTokens(s.db)
	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.AccountID != accountID {
		return common.ErrInvalidToken
	}
	if err := repo.DeleteByDevice(ctx, accountID, token.DeviceIdentifier); err != nil {
		return fmt.Errorf("error revoking device tokens: %w", err)
	}
	return nil
}

// EnrollTwoFactor generates a TOTP secret and recovery codes for the
// account, enables the second factor, and returns the provisioning material.
func (s *AuthService) EnrollTwoFactor(ctx context.Context, accountID string) (*TwoFactorEnrollment, error) {
	account, err := s.repos.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	secret, err := otp.GenerateSecret()
	if err != nil {
		return nil, common.ErrorInternal
	}
	codes, err := otp.GenerateRecoveryCodes(otp.RecoveryCodeCount)
	if err != nil {
		return nil, common.ErrorInternal
	}
	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = otp.HashRecoveryCode(c)
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Accounts(tx)
		if err := repo.EnableTwoFactor(ctx, accountID, secret); err != nil {
			return err
		}
		return repo.AddRecoveryCodes(ctx, accountID, hashes)
	}); err != nil {
		return nil, fmt.Errorf("error enabling two-factor: %w", err)
	}

	return &TwoFactorEnrollment{
		Secret:        secret,
		AuthURL:       otp.AuthURL(secret, account.Username),
		RecoveryCodes: codes,
	}, nil
}
