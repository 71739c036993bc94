package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/logging"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/dzaharov/vaultsync/internal/server/repositories/accounts"
	"github.com/dzaharov/vaultsync/internal/server/repositories/refreshtokens"
	"github.com/dzaharov/vaultsync/internal/server/repositories/revisions"
)

type authStateUpdate struct {
	accountID    string
	failedCount  int
	lockoutUntil *time.Time
}

type fakeAccountsRepo struct {
	byID          map[string]*models.Account
	recoveryCodes map[string]map[string]bool // account -> hash -> used
	authStates    []authStateUpdate
	lockedIDs     []string
	credUpdates   int
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{
		byID:          make(map[string]*models.Account),
		recoveryCodes: make(map[string]map[string]bool),
	}
}

func (f *fakeAccountsRepo) add(a *models.Account) {
	f.byID[a.ID] = a
}

func (f *fakeAccountsRepo) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	for _, a := range f.byID {
		if a.Username == account.Username {
			return nil, common.ErrorAlreadyExists
		}
	}
	account.ID = "acc-" + account.Username
	f.byID[account.ID] = account
	return account, nil
}

func (f *fakeAccountsRepo) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	for _, a := range f.byID {
		if a.Username == username {
			return a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (f *fakeAccountsRepo) LockForUpdate(ctx context.Context, id string) error {
	f.lockedIDs = append(f.lockedIDs, id)
	return nil
}

func (f *fakeAccountsRepo) UpdateAuthState(ctx context.Context, id string, failedCount int, lockoutUntil *time.Time) error {
	f.authStates = append(f.authStates, authStateUpdate{accountID: id, failedCount: failedCount, lockoutUntil: lockoutUntil})
	if a, ok := f.byID[id]; ok {
		a.FailedAccessCount = failedCount
		a.LockoutUntil = lockoutUntil
	}
	return nil
}

func (f *fakeAccountsRepo) UpdateCredentials(ctx context.Context, id string, salt, verifier []byte, encryptionType string, encryptionSettings []byte) error {
	f.credUpdates++
	if a, ok := f.byID[id]; ok {
		a.Salt = salt
		a.Verifier = verifier
		a.EncryptionType = encryptionType
		a.EncryptionSettings = encryptionSettings
	}
	return nil
}

func (f *fakeAccountsRepo) EnableTwoFactor(ctx context.Context, id string, secret string) error {
	a, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.TwoFactorEnabled = true
	a.TwoFactorSecret = secret
	return nil
}

func (f *fakeAccountsRepo) AddRecoveryCodes(ctx context.Context, id string, codeHashes []string) error {
	m, ok := f.recoveryCodes[id]
	if !ok {
		m = make(map[string]bool)
		f.recoveryCodes[id] = m
	}
	for _, h := range codeHashes {
		m[h] = false
	}
	return nil
}

func (f *fakeAccountsRepo) ConsumeRecoveryCode(ctx context.Context, id string, codeHash string) error {
	m := f.recoveryCodes[id]
	used, ok := m[codeHash]
	if !ok || used {
		return common.ErrorNotFound
	}
	m[codeHash] = true
	return nil
}

type fakeRevisionsRepo struct {
	revs    []*models.VaultRevision
	deleted []string
}

func (f *fakeRevisionsRepo) Create(ctx context.Context, revision *models.VaultRevision) (*models.VaultRevision, error) {
	for _, r := range f.revs {
		if r.AccountID == revision.AccountID && r.RevisionNumber == revision.RevisionNumber {
			return nil, common.ErrorAlreadyExists
		}
	}
	cp := *revision
	if cp.ID == "" {
		cp.ID = "rev-" + cp.AccountID + "-" + time.Now().Format("150405.000000000")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.revs = append(f.revs, &cp)
	return &cp, nil
}

func (f *fakeRevisionsRepo) LatestByAccount(ctx context.Context, accountID string) (*models.VaultRevision, error) {
	var latest *models.VaultRevision
	for _, r := range f.revs {
		if r.AccountID != accountID {
			continue
		}
		if latest == nil || r.RevisionNumber > latest.RevisionNumber {
			latest = r
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	return latest, nil
}

func (f *fakeRevisionsRepo) LatestNumber(ctx context.Context, accountID string) (int64, error) {
	latest, err := f.LatestByAccount(ctx, accountID)
	if err != nil {
		return -1, nil
	}
	return latest.RevisionNumber, nil
}

func (f *fakeRevisionsRepo) ListInfoByAccount(ctx context.Context, accountID string) ([]*models.RevisionInfo, error) {
	var infos []*models.RevisionInfo
	for _, r := range f.revs {
		if r.AccountID != accountID {
			continue
		}
		infos = append(infos, &models.RevisionInfo{
			ID:              r.ID,
			RevisionNumber:  r.RevisionNumber,
			ClientVersion:   r.ClientVersion,
			CredentialCount: r.CredentialCount,
			CreatedAt:       r.CreatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].RevisionNumber > infos[j].RevisionNumber })
	return infos, nil
}

func (f *fakeRevisionsRepo) Delete(ctx context.Context, accountID, revisionID string) error {
	for i, r := range f.revs {
		if r.AccountID == accountID && r.ID == revisionID {
			f.revs = append(f.revs[:i], f.revs[i+1:]...)
			f.deleted = append(f.deleted, revisionID)
			return nil
		}
	}
	return nil
}

type fakeTokensRepo struct {
	byToken map[string]*models.RefreshToken
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{byToken: make(map[string]*models.RefreshToken)}
}

func (f *fakeTokensRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	cp := *token
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	f.byToken[cp.Token] = &cp
	return nil
}

func (f *fakeTokensRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	t, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return t, nil
}

func (f *fakeTokensRepo) FindByPrevious(ctx context.Context, previousToken string) (*models.RefreshToken, error) {
	if previousToken == "" {
		return nil, common.ErrorNotFound
	}
	for _, t := range f.byToken {
		if t.PreviousToken == previousToken {
			return t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeTokensRepo) Delete(ctx context.Context, token string) error {
	delete(f.byToken, token)
	return nil
}

func (f *fakeTokensRepo) DeleteByDevice(ctx context.Context, accountID, deviceIdentifier string) error {
	for k, t := range f.byToken {
		if t.AccountID == accountID && t.DeviceIdentifier == deviceIdentifier {
			delete(f.byToken, k)
		}
	}
	return nil
}

type fakeRepoManager struct {
	accounts *fakeAccountsRepo
	revs     *fakeRevisionsRepo
	tokens   *fakeTokensRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		accounts: newFakeAccountsRepo(),
		revs:     &fakeRevisionsRepo{},
		tokens:   newFakeTokensRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository { return m.accounts }

func (m *fakeRepoManager) Revisions(db dbx.DBTX) revisions.Repository { return m.revs }

func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.tokens }

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// testDB returns a database stub for code paths that only begin and commit
// transactions; the repositories themselves are faked. txCount transactions
// are expected.
func testDB(t *testing.T, txCount int) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	for i := 0; i < txCount; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
	return db, mock
}
