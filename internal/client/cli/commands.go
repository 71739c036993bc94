package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dzaharov/vaultsync/internal/client/services"
	syncer "github.com/dzaharov/vaultsync/internal/client/sync"
	"github.com/dzaharov/vaultsync/internal/common"
)

// Register creates a new account and logs the user in.
func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.authService.Register(ctx, username, password); err != nil {
		fmt.Println("registration failed:", err)
		return err
	}
	fmt.Println("account created")
	return a.login(ctx, username, password)
}

// Login prompts for credentials and runs the SRP exchange.
func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	return a.login(ctx, username, password)
}

func (a *App) login(ctx context.Context, username string, password []byte) error {
	session, pl, err := a.authService.Login(ctx, username, password, false)
	if err != nil {
		fmt.Println("login failed:", err)
		return err
	}
	if pl != nil {
		code, err := GetSimpleText(a.reader, "Two-factor code", os.Stdout)
		if err != nil {
			return err
		}
		session, err = a.authService.CompleteTwoFactor(ctx, pl, code)
		if err != nil {
			fmt.Println("two-factor validation failed:", err)
			return err
		}
	}

	a.session = session
	a.engine = syncer.NewEngine(a.client, session.EncryptionKey, a.config.ClientVersion)

	result, err := a.engine.Pull(ctx)
	if err != nil {
		fmt.Println("vault fetch failed:", err)
		return err
	}
	a.adopt(result)
	fmt.Printf("logged in, vault at revision %d\n", a.ancestorRev)
	return nil
}

// List prints the records of the working vault.
func (a *App) List(ctx context.Context) error {
	ids := make([]string, 0, len(a.working.Records))
	for id := range a.working.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rec := a.working.Records[id]
		fmt.Printf("%s  (%d fields)\n", id, len(rec.Fields))
	}
	if len(ids) == 0 {
		fmt.Println("vault is empty")
	}
	return nil
}

// Show prints one record.
func (a *App) Show(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Record id", os.Stdout)
	if err != nil {
		return err
	}
	rec, ok := a.working.Records[id]
	if !ok {
		fmt.Println("no such record")
		return nil
	}
	names := make([]string, 0, len(rec.Fields))
	for name := range rec.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, rec.Fields[name].Value)
	}
	return nil
}

// Add creates a record from interactive field prompts.
func (a *App) Add(ctx context.Context) error {
	id := uuid.NewString()
	now := time.Now().UTC()
	for {
		name, err := GetSimpleText(a.reader, "Field name (empty to finish)", os.Stdout)
		if err != nil {
			return err
		}
		if name == "" {
			break
		}
		value, err := GetSimpleText(a.reader, "Value", os.Stdout)
		if err != nil {
			return err
		}
		a.working.SetField(id, name, value, now)
	}
	fmt.Println("record", id)
	return nil
}

// Set writes one field of an existing record.
func (a *App) Set(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Record id", os.Stdout)
	if err != nil {
		return err
	}
	name, err := GetSimpleText(a.reader, "Field name", os.Stdout)
	if err != nil {
		return err
	}
	value, err := GetSimpleText(a.reader, "Value", os.Stdout)
	if err != nil {
		return err
	}
	a.working.SetField(id, name, value, time.Now().UTC())
	return nil
}

// Delete removes a record.
func (a *App) Delete(ctx context.Context) error {
	id, err := GetSimpleText(a.reader, "Record id", os.Stdout)
	if err != nil {
		return err
	}
	a.working.DeleteRecord(id)
	return nil
}

// Sync pushes the working vault to the server, merging when another device
// has written since the last sync.
func (a *App) Sync(ctx context.Context) error {
	result, err := a.engine.Sync(ctx, a.working, a.ancestor, a.ancestorRev)
	if err != nil {
		if errors.Is(err, syncer.ErrFullResyncRequired) {
			fmt.Println("local state is too old; run 'pull' to adopt the server vault")
			return err
		}
		fmt.Println("sync failed:", err)
		return err
	}
	a.adopt(result)
	if result.Merged {
		fmt.Printf("merged with concurrent changes, now at revision %d\n", a.ancestorRev)
	} else {
		fmt.Printf("synced, revision %d\n", a.ancestorRev)
	}
	return nil
}

// Pull discards local changes and adopts the server's latest revision.
func (a *App) Pull(ctx context.Context) error {
	result, err := a.engine.Pull(ctx)
	if err != nil {
		fmt.Println("pull failed:", err)
		return err
	}
	a.adopt(result)
	fmt.Printf("vault at revision %d\n", a.ancestorRev)
	return nil
}

// EnableTwoFactor enrolls the account in TOTP and prints the material.
func (a *App) EnableTwoFactor(ctx context.Context) error {
	enrollment, err := a.client.EnrollTwoFactor(ctx)
	if err != nil {
		fmt.Println("enrollment failed:", err)
		return err
	}
	fmt.Println("secret:", enrollment.Secret)
	fmt.Println("url:   ", enrollment.AuthURL)
	fmt.Println("recovery codes (store them safely):")
	for _, code := range enrollment.RecoveryCodes {
		fmt.Println("  ", code)
	}
	return nil
}

// ChangePassword rotates the master password: it proves the current one,
// derives new material and resubmits the vault re-encrypted under the new
// key in one atomic request.
func (a *App) ChangePassword(ctx context.Context) error {
	current, err := GetPassword(os.Stdout, "Current password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(current)
	next, err := GetPassword(os.Stdout, "New password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(next)

	clientPublic, clientProof, err := a.authService.ProveCurrentPassword(ctx, a.session.Username, current)
	if err != nil {
		fmt.Println("current password rejected:", err)
		return err
	}
	salt, verifier, settings, key, err := a.authService.NewCredentials(a.session.Username, next)
	if err != nil {
		return err
	}

	result, err := a.engine.ChangePassword(ctx, a.working, a.ancestorRev, syncer.CredentialRotation{
		Username:              a.session.Username,
		ClientEphemeralPublic: clientPublic,
		ClientSessionProof:    clientProof,
		NewSalt:               salt,
		NewVerifier:           verifier,
		EncryptionSettings:    settings,
		NewKey:                key,
	})
	if err != nil {
		fmt.Println("password change failed:", err)
		return err
	}

	common.WipeByteArray(a.session.EncryptionKey)
	a.session = &services.Session{Username: a.session.Username, EncryptionKey: key}
	a.engine = syncer.NewEngine(a.client, key, a.config.ClientVersion)
	a.adopt(result)
	fmt.Printf("password changed, vault at revision %d\n", a.ancestorRev)
	return nil
}

// Logout revokes the device's tokens and drops the session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		fmt.Println("logout failed:", err)
		return err
	}
	a.session.Close()
	a.session = nil
	a.engine = nil
	a.working = nil
	a.ancestor = nil
	fmt.Println("logged out")
	return nil
}
