// Package services contains the application services of the vault client:
// the authentication flow over SRP and vault session management.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dzaharov/vaultsync/internal/client/api"
	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/cryptox"
	"github.com/dzaharov/vaultsync/internal/srp"
)

// ErrServerProofMismatch means the server failed its half of the mutual
// authentication. The client must treat the session as untrusted.
var ErrServerProofMismatch = errors.New("server proof verification failed")

// Session is an authenticated client session: the installed tokens live on
// the API client; the session holds the derived vault encryption key.
type Session struct {
	Username      string
	EncryptionKey []byte
}

// Close wipes the encryption key.
func (s *Session) Close() {
	common.WipeByteArray(s.EncryptionKey)
}

// AuthService drives registration and the SRP login flow.
type AuthService struct {
	client *api.Client
	group  *srp.Group
}

// NewAuthService binds an auth service to the given API client.
func NewAuthService(client *api.Client) *AuthService {
	return &AuthService{client: client, group: srp.DefaultGroup}
}

// Register creates an account. The password never leaves the client: a
// random salt is generated, the master key is derived with argon2id and the
// SRP verifier is computed from that key, so only salt, verifier and the
// key-derivation settings are sent.
func (a *AuthService) Register(ctx context.Context, username string, password []byte) error {
	salt, verifier, settings, key, err := a.NewCredentials(username, password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	return a.client.Register(ctx, username, salt, verifier, cryptox.EncryptionTypeArgon2id, settings)
}

// pending carries the state needed to complete a two-factor exchange: the
// same proof is resubmitted together with the code.
type pending struct {
	username string
	attempt  api.Attempt
	session  *srp.ClientSession
	key      []byte
}

// PendingLogin is a login waiting for its second factor.
type PendingLogin struct {
	p pending
}

// Login runs the full SRP exchange. On success it verifies the server's
// proof, installs the token pair and returns a session holding the vault
// encryption key. If the account has two-factor enabled, it returns a
// PendingLogin instead; complete it with CompleteTwoFactor or
// CompleteWithRecoveryCode.
func (a *AuthService) Login(ctx context.Context, username string, password []byte, rememberMe bool) (*Session, *PendingLogin, error) {
	challenge, err := a.client.Login(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("login initiation error: %w", err)
	}

	key, err := deriveKey(password, challenge.Salt, challenge.EncryptionSettings)
	if err != nil {
		return nil, nil, err
	}

	cs, err := srp.NewClientSession(a.group)
	if err != nil {
		return nil, nil, err
	}
	proof, err := cs.ComputeProof(username, key, challenge.Salt, challenge.ServerEphemeralPublic)
	if err != nil {
		return nil, nil, fmt.Errorf("proof computation error: %w", err)
	}

	attempt := api.Attempt{
		Username:              username,
		ClientEphemeralPublic: cs.PublicEphemeral(),
		ClientSessionProof:    proof,
		RememberMe:            rememberMe,
	}

	result, err := a.client.Validate(ctx, attempt)
	if err != nil {
		return nil, nil, err
	}

	if result.RequiresTwoFactor {
		return nil, &PendingLogin{p: pending{
			username: username,
			attempt:  attempt,
			session:  cs,
			key:      key,
		}}, nil
	}

	session, err := a.finishLogin(cs, username, key, result)
	if err != nil {
		return nil, nil, err
	}
	return session, nil, nil
}

// deriveKey computes the master key from the password and the
// server-advertised derivation settings. It is both the vault encryption key
// and the secret the SRP proof is computed from.
func deriveKey(password, salt, settings []byte) ([]byte, error) {
	params, err := cryptox.DecodeKDFParams(settings)
	if err != nil {
		return nil, fmt.Errorf("key derivation settings error: %w", err)
	}
	return cryptox.DeriveKey(password, salt, params), nil
}

// CompleteTwoFactor finishes a pending login with a TOTP code.
func (a *AuthService) CompleteTwoFactor(ctx context.Context, pl *PendingLogin, code string) (*Session, error) {
	attempt := pl.p.attempt
	attempt.Code = code
	result, err := a.client.ValidateTwoFactor(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return a.finishLogin(pl.p.session, pl.p.username, pl.p.key, result)
}

// CompleteWithRecoveryCode finishes a pending login with a recovery code.
func (a *AuthService) CompleteWithRecoveryCode(ctx context.Context, pl *PendingLogin, code string) (*Session, error) {
	attempt := pl.p.attempt
	attempt.Code = code
	result, err := a.client.ValidateRecoveryCode(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return a.finishLogin(pl.p.session, pl.p.username, pl.p.key, result)
}

// finishLogin verifies the server's proof and installs the tokens. Server
// proof verification is not optional: a session without it could be talking
// to an impostor that accepted any password.
func (a *AuthService) finishLogin(cs *srp.ClientSession, username string, key []byte, result *api.ValidateResult) (*Session, error) {
	if !cs.VerifyServerProof(result.ServerSessionProof) {
		return nil, ErrServerProofMismatch
	}
	if result.Tokens == nil {
		return nil, common.ErrTwoFactorRequired
	}
	a.client.SetTokens(result.Tokens.AccessToken, result.Tokens.RefreshToken)

	return &Session{Username: username, EncryptionKey: key}, nil
}

// ProveCurrentPassword runs a fresh SRP exchange and returns the proof
// material without issuing tokens. The change-password endpoint requires it.
func (a *AuthService) ProveCurrentPassword(ctx context.Context, username string, password []byte) (clientPublic, clientProof []byte, err error) {
	challenge, err := a.client.Login(ctx, username)
	if err != nil {
		return nil, nil, err
	}
	key, err := deriveKey(password, challenge.Salt, challenge.EncryptionSettings)
	if err != nil {
		return nil, nil, err
	}
	defer common.WipeByteArray(key)

	cs, err := srp.NewClientSession(a.group)
	if err != nil {
		return nil, nil, err
	}
	proof, err := cs.ComputeProof(username, key, challenge.Salt, challenge.ServerEphemeralPublic)
	if err != nil {
		return nil, nil, err
	}
	return cs.PublicEphemeral(), proof, nil
}

// NewCredentials computes the registration material for a password: a fresh
// salt, the derived master key, the SRP verifier computed from that key, and
// the derivation settings to advertise.
func (a *AuthService) NewCredentials(username string, password []byte) (salt, verifier, settings, key []byte, err error) {
	salt = common.GenerateRandByteArray(cryptox.SaltSize)
	params := cryptox.DefaultKDFParams()
	settings, err = params.Encode()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	key = cryptox.DeriveKey(password, salt, params)
	verifier = a.group.ComputeVerifier(username, key, salt)
	return salt, verifier, settings, key, nil
}

// Logout revokes the device's refresh tokens.
func (a *AuthService) Logout(ctx context.Context) error {
	return a.client.Revoke(ctx)
}
