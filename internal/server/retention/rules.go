package retention

import (
	"fmt"
	"time"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

// keepNewestPerBucket keeps the highest-numbered revision in each allowed
// calendar bucket. revs must be ordered newest-first.
func keepNewestPerBucket(revs []*models.RevisionInfo, allowed map[string]struct{}, bucket func(time.Time) string) map[string]struct{} {
	keep := make(map[string]struct{})
	seen := make(map[string]struct{})
	for _, rev := range revs {
		key := bucket(rev.CreatedAt.UTC())
		if _, ok := allowed[key]; !ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep[rev.ID] = struct{}{}
	}
	return keep
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.Format("2006-01") }

// DailyRule keeps the most recent revision for each of the last Days
// calendar days (UTC).
type DailyRule struct {
	Days int
}

func (r DailyRule) Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	allowed := make(map[string]struct{}, r.Days)
	for i := 0; i < r.Days; i++ {
		allowed[dayKey(now.UTC().AddDate(0, 0, -i))] = struct{}{}
	}
	return keepNewestPerBucket(revs, allowed, dayKey)
}

// WeeklyRule keeps the most recent revision for each of the last Weeks ISO
// calendar weeks (UTC).
type WeeklyRule struct {
	Weeks int
}

func (r WeeklyRule) Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	allowed := make(map[string]struct{}, r.Weeks)
	for i := 0; i < r.Weeks; i++ {
		allowed[weekKey(now.UTC().AddDate(0, 0, -7*i))] = struct{}{}
	}
	return keepNewestPerBucket(revs, allowed, weekKey)
}

// MonthlyRule keeps the most recent revision for each of the last Months
// calendar months (UTC).
type MonthlyRule struct {
	Months int
}

func (r MonthlyRule) Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	// Anchor to the first of the month: AddDate on a month-end date
	// normalizes past short months and skips them.
	year, month, _ := now.UTC().Date()
	allowed := make(map[string]struct{}, r.Months)
	for i := 0; i < r.Months; i++ {
		first := time.Date(year, month-time.Month(i), 1, 0, 0, 0, 0, time.UTC)
		allowed[monthKey(first)] = struct{}{}
	}
	return keepNewestPerBucket(revs, allowed, monthKey)
}

// VersionRule keeps the most recent revision for each of the last Versions
// distinct client-version tags, protecting a rollback path across client
// upgrades.
type VersionRule struct {
	Versions int
}

func (r VersionRule) Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	keep := make(map[string]struct{})
	seen := make(map[string]struct{})
	for _, rev := range revs {
		if len(seen) >= r.Versions {
			if _, ok := seen[rev.ClientVersion]; !ok {
				continue
			}
		}
		if _, ok := seen[rev.ClientVersion]; ok {
			continue
		}
		seen[rev.ClientVersion] = struct{}{}
		keep[rev.ID] = struct{}{}
	}
	return keep
}

// CountRule keeps the most recent Count revisions regardless of age,
// protecting against rapid successive edits pruning a still-useful state.
type CountRule struct {
	Count int
}

func (r CountRule) Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	keep := make(map[string]struct{})
	for i, rev := range revs {
		if i >= r.Count {
			break
		}
		keep[rev.ID] = struct{}{}
	}
	return keep
}
