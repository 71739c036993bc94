package repomanager

import (
	"context"
	"database/sql"

	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/server/repositories/accounts"
	"github.com/dzaharov/vaultsync/internal/server/repositories/refreshtokens"
	"github.com/dzaharov/vaultsync/internal/server/repositories/revisions"
)

// RepositoryManager vends repository implementations bound to a DBTX, which
// lets services use the same repository code inside and outside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Revisions(db dbx.DBTX) revisions.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
