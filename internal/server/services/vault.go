// This file implements VaultService: optimistic-concurrency writes to the
// append-only revision sequence, latest-revision reads, the change-password
// variant, and the retention pass after every accepted write.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dzaharov/vaultsync/internal/common"
	"github.com/dzaharov/vaultsync/internal/dbx"
	"github.com/dzaharov/vaultsync/internal/logging"
	"github.com/dzaharov/vaultsync/internal/server/config"
	"github.com/dzaharov/vaultsync/internal/server/models"
	"github.com/dzaharov/vaultsync/internal/server/repositories/repomanager"
	"github.com/dzaharov/vaultsync/internal/server/retention"
)

// SubmitStatus is the outcome of a vault submission. The numeric values are
// part of the wire contract.
type SubmitStatus int

const (
	// SubmitAccepted: the write became the new latest revision.
	SubmitAccepted SubmitStatus = 0
	// SubmitMergeRequired: another client advanced the sequence first; the
	// caller must fetch, merge, and resubmit against the new latest.
	SubmitMergeRequired SubmitStatus = 1
	// SubmitOutdated: the client runs a protocol version older than the
	// server accepts; the write is refused regardless of revision number.
	SubmitOutdated SubmitStatus = 2
)

// Submission is one client write attempt.
type Submission struct {
	Blob               []byte
	BaseRevisionNumber int64
	CredentialCount    int
	EmailClaimCount    int
	ClientVersion      string
}

// SubmitResult reports the submission outcome. NewRevisionNumber is only
// meaningful when Status is SubmitAccepted.
type SubmitResult struct {
	Status            SubmitStatus
	NewRevisionNumber int64
}

// CredentialChange carries the new derivation parameters of a password change.
type CredentialChange struct {
	Salt               []byte
	Verifier           []byte
	EncryptionType     string
	EncryptionSettings []byte
}

// VaultService provides vault reads and optimistic-concurrency writes.
type VaultService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	cfg    *config.Config
	logger logging.Logger
	policy *retention.Policy
	now    func() time.Time
}

// NewVaultService constructs a VaultService with the retention policy built
// from server config.
func NewVaultService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *VaultService {
	policy := retention.NewPolicy(
		retention.DailyRule{Days: cfg.RetentionDailyDays},
		retention.WeeklyRule{Weeks: cfg.RetentionWeeklyWeeks},
		retention.MonthlyRule{Months: cfg.RetentionMonthlyMonths},
		retention.VersionRule{Versions: cfg.RetentionVersions},
		retention.CountRule{Count: cfg.RetentionCount},
	)
	return &VaultService{
		db:     db,
		repos:  m,
		cfg:    cfg,
		logger: logger.With("module", "vault_service"),
		policy: policy,
		now:    time.Now,
	}
}

// Submit attempts to append a new revision on top of BaseRevisionNumber.
// The whole decision runs inside one transaction holding the account's row
// lock, so two concurrent submissions against the same base can never both
// be accepted.
func (s *VaultService) Submit(ctx context.Context, accountID string, sub *Submission) (*SubmitResult, error) {
	if s.cfg.MinClientVersion != "" && versionLess(sub.ClientVersion, s.cfg.MinClientVersion) {
		return &SubmitResult{Status: SubmitOutdated}, nil
	}
	return s.submit(ctx, accountID, sub, nil)
}

// ChangePassword is Submit with new credential-derivation parameters. The
// caller must have already demanded a fresh SRP proof of the current
// password; this method only applies the change under the same concurrency
// contract as any other write.
func (s *VaultService) ChangePassword(ctx context.Context, accountID string, sub *Submission, change *CredentialChange) (*SubmitResult, error) {
	if change == nil || len(change.Salt) == 0 || len(change.Verifier) == 0 {
		return nil, common.ErrorInternal
	}
	if s.cfg.MinClientVersion != "" && versionLess(sub.ClientVersion, s.cfg.MinClientVersion) {
		return &SubmitResult{Status: SubmitOutdated}, nil
	}
	return s.submit(ctx, accountID, sub, change)
}

func (s *VaultService) submit(ctx context.Context, accountID string, sub *Submission, change *CredentialChange) (*SubmitResult, error) {
	result := &SubmitResult{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repos.Accounts(tx).LockForUpdate(ctx, accountID); err != nil {
			return err
		}

		revRepo := s.repos.Revisions(tx)
		latest, err := revRepo.LatestByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if sub.BaseRevisionNumber != latest.RevisionNumber {
			result.Status = SubmitMergeRequired
			return nil
		}

		revision := &models.VaultRevision{
			AccountID:          accountID,
			RevisionNumber:     latest.RevisionNumber + 1,
			Blob:               sub.Blob,
			Salt:               latest.Salt,
			Verifier:           latest.Verifier,
			EncryptionType:     latest.EncryptionType,
			EncryptionSettings: latest.EncryptionSettings,
			CredentialCount:    sub.CredentialCount,
			EmailClaimCount:    sub.EmailClaimCount,
			FileSizeKb:         (len(sub.Blob) + 1023) / 1024,
			ClientVersion:      sub.ClientVersion,
		}
		if change != nil {
			revision.Salt = change.Salt
			revision.Verifier = change.Verifier
			if change.EncryptionType != "" {
				revision.EncryptionType = change.EncryptionType
			}
			if len(change.EncryptionSettings) > 0 {
				revision.EncryptionSettings = change.EncryptionSettings
			}
			if err := s.repos.Accounts(tx).UpdateCredentials(ctx, accountID,
				revision.Salt, revision.Verifier, revision.EncryptionType,
				revision.EncryptionSettings); err != nil {
				return err
			}
		}

		created, err := revRepo.Create(ctx, revision)
		if err != nil {
			return err
		}

		if err := s.prune(ctx, tx, accountID, created.ID); err != nil {
			return err
		}

		result.Status = SubmitAccepted
		result.NewRevisionNumber = created.RevisionNumber
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error submitting vault: %w", err)
	}
	return result, nil
}

// prune runs the retention policy over the account's history and deletes
// the revisions no rule keeps. The just-created revision is the newest and
// therefore always kept; newRevisionID is re-checked anyway as a guard.
func (s *VaultService) prune(ctx context.Context, tx dbx.DBTX, accountID, newRevisionID string) error {
	revRepo := s.repos.Revisions(tx)
	infos, err := revRepo.ListInfoByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, id := range s.policy.Prune(infos, s.now()) {
		if id == newRevisionID {
			continue
		}
		if err := revRepo.Delete(ctx, accountID, id); err != nil {
			return err
		}
	}
	return nil
}

// Read returns the account's latest revision. Accounts always have revision
// 0 from registration; a missing history yields an empty placeholder rather
// than an error so fresh clients can bootstrap.
func (s *VaultService) Read(ctx context.Context, accountID string) (*models.VaultRevision, error) {
	latest, err := s.repos.Revisions(s.db).LatestByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &models.VaultRevision{AccountID: accountID, RevisionNumber: 0, Blob: []byte{}}, nil
		}
		return nil, fmt.Errorf("error reading vault: %w", err)
	}
	return latest, nil
}

// LatestRevisionNumber is the cheap "do I need to sync" probe.
func (s *VaultService) LatestRevisionNumber(ctx context.Context, accountID string) (int64, error) {
	n, err := s.repos.Revisions(s.db).LatestNumber(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("error reading revision number: %w", err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// versionLess compares dotted numeric version tags. Unparseable segments
// compare as zero, so a malformed client version trips the gate rather
// than bypassing it.
func versionLess(a, b string) bool {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av < bv
		}
	}
	return false
}
