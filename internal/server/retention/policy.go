// Package retention decides which historical vault revisions survive after
// each accepted write. A policy is a set of independent rules, each of which
// selects revisions to keep; the union of all keep-sets is retained and
// everything else is eligible for deletion. Adding a rule can only keep
// more, and the newest revision is always kept regardless of rules.
package retention

import (
	"sort"
	"time"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

// Rule selects a subset of revisions to keep, by revision ID.
// Implementations must be pure functions of (revs, now).
type Rule interface {
	Keep(revs []*models.RevisionInfo, now time.Time) map[string]struct{}
}

// Policy is an ordered-independent composition of rules.
type Policy struct {
	rules []Rule
}

// NewPolicy builds a policy from the given rules.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: rules}
}

// DefaultPolicy returns the retention configuration applied to every
// account: a revision per day for a week, per week for a month, per month
// for a year, one per recent client version, and the ten newest regardless.
func DefaultPolicy() *Policy {
	return NewPolicy(
		DailyRule{Days: 7},
		WeeklyRule{Weeks: 4},
		MonthlyRule{Months: 12},
		VersionRule{Versions: 3},
		CountRule{Count: 10},
	)
}

// sortedDesc returns a copy of revs ordered newest-first by revision number,
// so rule results cannot depend on the caller's ordering.
func sortedDesc(revs []*models.RevisionInfo) []*models.RevisionInfo {
	out := make([]*models.RevisionInfo, len(revs))
	copy(out, revs)
	sort.Slice(out, func(i, j int) bool {
		return out[i].RevisionNumber > out[j].RevisionNumber
	})
	return out
}

// Apply returns the union keep-set over all rules. The revision with the
// highest number is always included.
func (p *Policy) Apply(revs []*models.RevisionInfo, now time.Time) map[string]struct{} {
	keep := make(map[string]struct{})
	if len(revs) == 0 {
		return keep
	}
	ordered := sortedDesc(revs)
	keep[ordered[0].ID] = struct{}{}
	for _, rule := range p.rules {
		for id := range rule.Keep(ordered, now) {
			keep[id] = struct{}{}
		}
	}
	return keep
}

// Prune returns the IDs of revisions the policy does not keep, newest first.
func (p *Policy) Prune(revs []*models.RevisionInfo, now time.Time) []string {
	keep := p.Apply(revs, now)
	var drop []string
	for _, rev := range sortedDesc(revs) {
		if _, ok := keep[rev.ID]; !ok {
			drop = append(drop, rev.ID)
		}
	}
	return drop
}
