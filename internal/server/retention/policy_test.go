package retention

import (
	"fmt"
	"testing"
	"time"

	"github.com/dzaharov/vaultsync/internal/server/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func rev(num int64, age time.Duration, version string) *models.RevisionInfo {
	return &models.RevisionInfo{
		ID:             fmt.Sprintf("rev-%d", num),
		RevisionNumber: num,
		ClientVersion:  version,
		CreatedAt:      testNow.Add(-age),
	}
}

func TestNewestAlwaysKept(t *testing.T) {
	// A single ancient revision survives a policy with no matching buckets.
	revs := []*models.RevisionInfo{rev(1, 365*24*time.Hour, "1.0")}
	keep := NewPolicy(DailyRule{Days: 1}).Apply(revs, testNow)

	if _, ok := keep["rev-1"]; !ok {
		t.Errorf("expected the newest revision to be kept unconditionally")
	}
}

func TestEmptyInput(t *testing.T) {
	if keep := DefaultPolicy().Apply(nil, testNow); len(keep) != 0 {
		t.Errorf("expected empty keep-set, got %v", keep)
	}
	if drop := DefaultPolicy().Prune(nil, testNow); len(drop) != 0 {
		t.Errorf("expected nothing to prune, got %v", drop)
	}
}

func TestDailyRuleKeepsNewestPerDay(t *testing.T) {
	revs := []*models.RevisionInfo{
		rev(1, 26*time.Hour, "1.0"), // yesterday, older
		rev(2, 25*time.Hour, "1.0"), // yesterday, newer
		rev(3, 1*time.Hour, "1.0"),  // today
	}
	keep := DailyRule{Days: 2}.Keep(sortedDesc(revs), testNow)

	if _, ok := keep["rev-3"]; !ok {
		t.Errorf("expected today's revision kept")
	}
	if _, ok := keep["rev-2"]; !ok {
		t.Errorf("expected the newest revision of yesterday kept")
	}
	if _, ok := keep["rev-1"]; ok {
		t.Errorf("expected the older revision of yesterday dropped")
	}
}

func TestDailyRuleIgnoresDaysOutsideRange(t *testing.T) {
	revs := []*models.RevisionInfo{rev(1, 10*24*time.Hour, "1.0")}
	keep := DailyRule{Days: 7}.Keep(sortedDesc(revs), testNow)
	if len(keep) != 0 {
		t.Errorf("expected a 10-day-old revision outside a 7-day rule, got %v", keep)
	}
}

func TestWeeklyRuleUsesISOWeeks(t *testing.T) {
	revs := []*models.RevisionInfo{
		rev(1, 9*24*time.Hour, "1.0"), // previous ISO week, older
		rev(2, 8*24*time.Hour, "1.0"), // previous ISO week, newer
		rev(3, 1*24*time.Hour, "1.0"), // current ISO week
	}
	keep := WeeklyRule{Weeks: 2}.Keep(sortedDesc(revs), testNow)

	if _, ok := keep["rev-3"]; !ok {
		t.Errorf("expected current-week revision kept")
	}
	if _, ok := keep["rev-2"]; !ok {
		t.Errorf("expected newest revision of the previous week kept")
	}
	if _, ok := keep["rev-1"]; ok {
		t.Errorf("expected older revision of the previous week dropped")
	}
}

func TestMonthlyRuleKeepsNewestPerMonth(t *testing.T) {
	revs := []*models.RevisionInfo{
		rev(1, 40*24*time.Hour, "1.0"), // previous month
		rev(2, 35*24*time.Hour, "1.0"), // previous month, newer
		rev(3, 24*time.Hour, "1.0"),    // current month
	}
	keep := MonthlyRule{Months: 2}.Keep(sortedDesc(revs), testNow)

	if _, ok := keep["rev-2"]; !ok {
		t.Errorf("expected newest revision of the previous month kept")
	}
	if _, ok := keep["rev-1"]; ok {
		t.Errorf("expected older revision of the previous month dropped")
	}
	if _, ok := keep["rev-3"]; !ok {
		t.Errorf("expected current-month revision kept")
	}
}

func TestMonthlyRuleOnMonthEndDay(t *testing.T) {
	// March 31: subtracting calendar months from the 31st lands on
	// normalized dates that skip short months like February.
	monthEnd := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	revs := []*models.RevisionInfo{
		{ID: "rev-1", RevisionNumber: 1, ClientVersion: "1.0", CreatedAt: time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)},
		{ID: "rev-2", RevisionNumber: 2, ClientVersion: "1.0", CreatedAt: time.Date(2026, 3, 30, 9, 0, 0, 0, time.UTC)},
	}
	keep := MonthlyRule{Months: 12}.Keep(sortedDesc(revs), monthEnd)

	if _, ok := keep["rev-1"]; !ok {
		t.Errorf("expected February revision kept, got %v", keep)
	}
	if _, ok := keep["rev-2"]; !ok {
		t.Errorf("expected March revision kept, got %v", keep)
	}
}

func TestVersionRuleKeepsNewestPerVersion(t *testing.T) {
	revs := []*models.RevisionInfo{
		rev(1, 5*time.Hour, "1.0"),
		rev(2, 4*time.Hour, "1.0"),
		rev(3, 3*time.Hour, "2.0"),
		rev(4, 2*time.Hour, "3.0"),
		rev(5, 1*time.Hour, "3.0"),
	}
	keep := VersionRule{Versions: 2}.Keep(sortedDesc(revs), testNow)

	if _, ok := keep["rev-5"]; !ok {
		t.Errorf("expected newest 3.0 revision kept")
	}
	if _, ok := keep["rev-3"]; !ok {
		t.Errorf("expected newest 2.0 revision kept")
	}
	if _, ok := keep["rev-2"]; ok {
		t.Errorf("expected 1.0 outside the two most recent versions")
	}
}

func TestCountRuleKeepsNewestN(t *testing.T) {
	var revs []*models.RevisionInfo
	for i := int64(1); i <= 5; i++ {
		revs = append(revs, rev(i, time.Duration(6-i)*time.Hour, "1.0"))
	}
	keep := CountRule{Count: 3}.Keep(sortedDesc(revs), testNow)

	for _, id := range []string{"rev-5", "rev-4", "rev-3"} {
		if _, ok := keep[id]; !ok {
			t.Errorf("expected %s kept", id)
		}
	}
	if len(keep) != 3 {
		t.Errorf("expected exactly 3 kept, got %d", len(keep))
	}
}

func TestAddingRulesIsMonotonic(t *testing.T) {
	var revs []*models.RevisionInfo
	for i := int64(1); i <= 30; i++ {
		revs = append(revs, rev(i, time.Duration(31-i)*24*time.Hour, fmt.Sprintf("%d.0", i%4)))
	}

	small := NewPolicy(CountRule{Count: 5}).Apply(revs, testNow)
	large := NewPolicy(CountRule{Count: 5}, DailyRule{Days: 7}, VersionRule{Versions: 3}).Apply(revs, testNow)

	for id := range small {
		if _, ok := large[id]; !ok {
			t.Errorf("adding rules dropped %s", id)
		}
	}
}

func TestPruneReturnsComplement(t *testing.T) {
	var revs []*models.RevisionInfo
	for i := int64(1); i <= 20; i++ {
		revs = append(revs, rev(i, time.Duration(21-i)*time.Hour, "1.0"))
	}
	policy := NewPolicy(CountRule{Count: 10})

	keep := policy.Apply(revs, testNow)
	drop := policy.Prune(revs, testNow)

	if len(keep)+len(drop) != len(revs) {
		t.Fatalf("keep (%d) + drop (%d) != total (%d)", len(keep), len(drop), len(revs))
	}
	for _, id := range drop {
		if _, ok := keep[id]; ok {
			t.Errorf("%s both kept and pruned", id)
		}
	}
}

func TestPruneOrderIndependent(t *testing.T) {
	revs := []*models.RevisionInfo{
		rev(3, 1*time.Hour, "1.0"),
		rev(1, 3*time.Hour, "1.0"),
		rev(2, 2*time.Hour, "1.0"),
	}
	reversed := []*models.RevisionInfo{revs[2], revs[1], revs[0]}

	policy := NewPolicy(CountRule{Count: 2})
	a := policy.Prune(revs, testNow)
	b := policy.Prune(reversed, testNow)

	if len(a) != len(b) {
		t.Fatalf("prune count differs: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("prune order differs: %v vs %v", a, b)
		}
	}
}
