// Package cli implements the interactive vault client: a small REPL over
// the auth and sync services.
package cli

import (
	"bufio"
	"context"
	"os"

	"github.com/dzaharov/vaultsync/internal/client/api"
	"github.com/dzaharov/vaultsync/internal/client/config"
	"github.com/dzaharov/vaultsync/internal/client/services"
	syncer "github.com/dzaharov/vaultsync/internal/client/sync"
	"github.com/dzaharov/vaultsync/internal/client/vault"
)

// App wires the CLI together. The working vault, its ancestor and the
// ancestor's revision number are the sync engine's inputs; they are adopted
// from every successful sync.
type App struct {
	config      *config.Config
	client      *api.Client
	authService *services.AuthService
	session     *services.Session
	engine      *syncer.Engine

	working     *vault.Vault
	ancestor    *vault.Vault
	ancestorRev int64

	reader *bufio.Reader
}

// NewApp constructs the CLI against the configured server.
func NewApp(c *config.Config) *App {
	client := api.New(c.ServerAddr)
	return &App{
		config:      c,
		client:      client,
		authService: services.NewAuthService(client),
		reader:      bufio.NewReader(os.Stdin),
	}
}

func (a *App) isLoggedIn() bool {
	return a.session != nil
}

// Run starts the REPL and revokes the session on the way out.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if a.isLoggedIn() {
			_ = a.authService.Logout(ctx)
			a.session.Close()
		}
	}()
	a.repl(ctx)
}

// adopt installs a sync result as the new ancestor state.
func (a *App) adopt(result *syncer.Result) {
	a.working = result.Vault.Clone()
	a.ancestor = result.Vault
	a.ancestorRev = result.RevisionNumber
}
