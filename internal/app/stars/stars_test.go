package stars

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/peopledesk/starled/internal/domain"
	"github.com/peopledesk/starled/internal/infra/directory"
	"github.com/peopledesk/starled/internal/infra/sqlite"
)

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestDirectory() *directory.Static {
	return directory.NewStatic([]directory.Employee{
		{ID: "emp-a", DisplayName: "Ada Moreira", Department: "engineering"},
		{ID: "emp-b", DisplayName: "Bruno Lima", Department: "design"},
		{ID: "emp-c", DisplayName: "Carla Duarte", Department: "people"},
		{ID: "emp-d", DisplayName: "Diego Faria", Department: "engineering"},
	})
}

type services struct {
	quota      *Tracker
	redemption *Redemption
	aggregator *Aggregator
}

func newTestServices(t *testing.T) services {
	t.Helper()
	store := newTestStore(t)
	dir := newTestDirectory()
	quota := NewTracker(store)
	return services{
		quota:      quota,
		redemption: NewRedemption(store, dir, quota),
		aggregator: NewAggregator(store, dir),
	}
}

var testNow = time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

// ─── Quota Tracker ──────────────────────────────────────────────────────────

func TestTracker_FreshMonth(t *testing.T) {
	s := newTestServices(t)

	status, err := s.quota.Check(context.Background(), "emp-a", testNow)
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if status.Available != domain.MonthlyStarQuota {
		t.Errorf("Available = %d, want %d", status.Available, domain.MonthlyStarQuota)
	}
	if status.Used != 0 {
		t.Errorf("Used = %d, want 0", status.Used)
	}
	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !status.ResetDate.Equal(want) {
		t.Errorf("ResetDate = %v, want %v", status.ResetDate, want)
	}
}

func TestTracker_PureRecomputation(t *testing.T) {
	s := newTestServices(t)

	first, err := s.quota.Check(context.Background(), "emp-a", testNow)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.quota.Check(context.Background(), "emp-a", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("repeated Check() differs: %+v vs %+v", first, second)
	}
}

// ─── Redemption ─────────────────────────────────────────────────────────────

func TestGiveStar_SuccessDecrementsQuota(t *testing.T) {
	s := newTestServices(t)

	grant, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonMentorship, "Thanks for the walkthrough", testNow)
	if err != nil {
		t.Fatalf("GiveStar() error: %v", err)
	}
	if grant.ID == "" {
		t.Error("grant.ID is empty")
	}
	if grant.GiverID != "emp-a" || grant.RecipientID != "emp-b" {
		t.Errorf("grant routing = %s→%s, want emp-a→emp-b", grant.GiverID, grant.RecipientID)
	}

	status, err := s.quota.Check(context.Background(), "emp-a", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if status.Available != 2 || status.Used != 1 {
		t.Errorf("quota = {available: %d, used: %d}, want {available: 2, used: 1}",
			status.Available, status.Used)
	}
}

func TestGiveStar_FourthCallExhaustsQuota(t *testing.T) {
	s := newTestServices(t)
	recipients := []string{"emp-b", "emp-c", "emp-d"}

	for i, rcpt := range recipients {
		_, err := s.redemption.GiveStar(context.Background(),
			"emp-a", rcpt, domain.ReasonCollaboration,
			fmt.Sprintf("message %d", i), testNow.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("GiveStar() #%d error: %v", i+1, err)
		}
	}

	status, _ := s.quota.Check(context.Background(), "emp-a", testNow)
	if status.Available != 0 {
		t.Errorf("Available after three grants = %d, want 0", status.Available)
	}

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "one too many", testNow.Add(4*time.Hour))
	if !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("fourth GiveStar() error = %v, want ErrQuotaExhausted", err)
	}

	status, _ = s.quota.Check(context.Background(), "emp-a", testNow)
	if status.Used != 3 {
		t.Errorf("Used after rejected call = %d, want 3", status.Used)
	}
}

func TestGiveStar_SelfRecognition(t *testing.T) {
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-a", domain.ReasonCollaboration, "note", testNow)
	if !errors.Is(err, domain.ErrSelfRecognition) {
		t.Fatalf("GiveStar(self) error = %v, want ErrSelfRecognition", err)
	}

	status, _ := s.quota.Check(context.Background(), "emp-a", testNow)
	if status.Used != 0 {
		t.Errorf("Used = %d, want 0 (no row inserted)", status.Used)
	}
}

func TestGiveStar_SelfRecognition_NoDirectoryLookup(t *testing.T) {
	// Even an unknown id giving to itself fails on the identity
	// comparison, not on directory resolution.
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"ghost-id", "ghost-id", domain.ReasonCollaboration, "note", testNow)
	if !errors.Is(err, domain.ErrSelfRecognition) {
		t.Fatalf("error = %v, want ErrSelfRecognition", err)
	}
}

func TestGiveStar_RecipientNotFound(t *testing.T) {
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "ghost-id", domain.ReasonOther, "msg", testNow)
	if !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Fatalf("error = %v, want ErrRecipientNotFound", err)
	}
}

func TestGiveStar_InvalidReason(t *testing.T) {
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", "gratitude", "msg", testNow)
	if !errors.Is(err, domain.ErrInvalidReason) {
		t.Fatalf("error = %v, want ErrInvalidReason", err)
	}
}

func TestGiveStar_EmptyMessage(t *testing.T) {
	s := newTestServices(t)

	for _, msg := range []string{"", "   ", "\t\n"} {
		_, err := s.redemption.GiveStar(context.Background(),
			"emp-a", "emp-b", domain.ReasonOther, msg, testNow)
		if !errors.Is(err, domain.ErrEmptyMessage) {
			t.Errorf("GiveStar(message=%q) error = %v, want ErrEmptyMessage", msg, err)
		}
	}
}

func TestGiveStar_ValidationOrder(t *testing.T) {
	// An invalid reason to an unknown recipient reports the recipient
	// first: validation fails fast, first violation wins.
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "ghost-id", "gratitude", "", testNow)
	if !errors.Is(err, domain.ErrRecipientNotFound) {
		t.Fatalf("error = %v, want ErrRecipientNotFound", err)
	}
}

func TestGiveStar_TrimsMessage(t *testing.T) {
	s := newTestServices(t)

	grant, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonOther, "  well done  ", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if grant.Message != "well done" {
		t.Errorf("Message = %q, want %q", grant.Message, "well done")
	}
}

func TestGiveStar_NewMonthFreshQuota(t *testing.T) {
	s := newTestServices(t)

	for i := 0; i < domain.MonthlyStarQuota; i++ {
		_, err := s.redemption.GiveStar(context.Background(),
			"emp-a", "emp-b", domain.ReasonCollaboration,
			fmt.Sprintf("march %d", i), testNow.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
	}

	april := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "april", april)
	if err != nil {
		t.Fatalf("GiveStar() in new month error: %v", err)
	}

	status, _ := s.quota.Check(context.Background(), "emp-a", april)
	if status.Used != 1 {
		t.Errorf("april Used = %d, want 1", status.Used)
	}
}

// ─── Conflict Retry ─────────────────────────────────────────────────────────

// fakeStore scripts AppendGrant outcomes to exercise the retry path.
type fakeStore struct {
	appendErrs []error // consumed per call; nil means success
	appends    int
	used       int
}

func (f *fakeStore) AppendGrant(_ context.Context, grant domain.StarGrant, _ string) (domain.StarGrant, error) {
	f.appends++
	if len(f.appendErrs) > 0 {
		err := f.appendErrs[0]
		f.appendErrs = f.appendErrs[1:]
		if err != nil {
			return domain.StarGrant{}, err
		}
	}
	return grant, nil
}

func (f *fakeStore) CountByGiver(context.Context, string, time.Time, time.Time) (int, error) {
	return f.used, nil
}

func (f *fakeStore) SummaryByRecipient(context.Context, string, int) (int, []domain.StarGrant, error) {
	return 0, nil, nil
}

func (f *fakeStore) TotalsByRecipient(context.Context, []string) (map[string]int, error) {
	return map[string]int{}, nil
}

func newFakeServices(store *fakeStore) *Redemption {
	return NewRedemption(store, newTestDirectory(), NewTracker(store))
}

func TestGiveStar_RetriesOnceOnConflict(t *testing.T) {
	store := &fakeStore{appendErrs: []error{domain.ErrConflict, nil}}
	r := newFakeServices(store)

	_, err := r.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "msg", testNow)
	if err != nil {
		t.Fatalf("GiveStar() error = %v, want success after retry", err)
	}
	if store.appends != 2 {
		t.Errorf("AppendGrant called %d times, want 2", store.appends)
	}
}

func TestGiveStar_SecondConflictSurfacesAsQuotaExhausted(t *testing.T) {
	store := &fakeStore{appendErrs: []error{domain.ErrConflict, domain.ErrConflict}}
	r := newFakeServices(store)

	_, err := r.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "msg", testNow)
	if !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("error = %v, want ErrQuotaExhausted", err)
	}
	if store.appends != 2 {
		t.Errorf("AppendGrant called %d times, want 2 (single retry)", store.appends)
	}
}

func TestGiveStar_RetryFindsQuotaExhausted(t *testing.T) {
	store := &fakeStore{appendErrs: []error{domain.ErrConflict, domain.ErrQuotaExhausted}}
	r := newFakeServices(store)

	_, err := r.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "msg", testNow)
	if !errors.Is(err, domain.ErrQuotaExhausted) {
		t.Fatalf("error = %v, want ErrQuotaExhausted", err)
	}
}

func TestGiveStar_StorageErrorNotRetried(t *testing.T) {
	store := &fakeStore{appendErrs: []error{domain.ErrStorageUnavailable}}
	r := newFakeServices(store)

	_, err := r.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonCollaboration, "msg", testNow)
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("error = %v, want ErrStorageUnavailable", err)
	}
	if store.appends != 1 {
		t.Errorf("AppendGrant called %d times, want 1 (no blind write retry)", store.appends)
	}
}

// ─── Aggregation ────────────────────────────────────────────────────────────

func TestReceivedSummary_AfterOneGrant(t *testing.T) {
	s := newTestServices(t)

	_, err := s.redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonMentorship, "Thanks for the walkthrough", testNow)
	if err != nil {
		t.Fatal(err)
	}

	summary, err := s.aggregator.ReceivedSummary(context.Background(), "emp-b")
	if err != nil {
		t.Fatalf("ReceivedSummary() error: %v", err)
	}
	if summary.TotalReceived != 1 {
		t.Errorf("TotalReceived = %d, want 1", summary.TotalReceived)
	}
	if len(summary.Recent) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(summary.Recent))
	}
	entry := summary.Recent[0]
	if entry.Reason != domain.ReasonMentorship {
		t.Errorf("Reason = %q, want mentorship", entry.Reason)
	}
	if entry.GiverName != "Ada Moreira" {
		t.Errorf("GiverName = %q, want %q", entry.GiverName, "Ada Moreira")
	}
}

func TestReceivedSummary_NoGrants(t *testing.T) {
	s := newTestServices(t)

	summary, err := s.aggregator.ReceivedSummary(context.Background(), "emp-b")
	if err != nil {
		t.Fatalf("ReceivedSummary() error: %v", err)
	}
	if summary.TotalReceived != 0 {
		t.Errorf("TotalReceived = %d, want 0", summary.TotalReceived)
	}
	if summary.Recent == nil || len(summary.Recent) != 0 {
		t.Errorf("Recent = %v, want empty non-nil slice", summary.Recent)
	}
}

func TestReceivedSummary_RecentWindowAndOrder(t *testing.T) {
	s := newTestServices(t)
	givers := []string{"emp-a", "emp-c", "emp-d"}

	// Four grants to emp-b across months (one per giver per month keeps
	// quotas untouched); only the newest three should appear.
	for month := 0; month < 2; month++ {
		for i, giver := range givers[:2] {
			_, err := s.redemption.GiveStar(context.Background(),
				giver, "emp-b", domain.ReasonCollaboration,
				fmt.Sprintf("m%d g%d", month, i), testNow.AddDate(0, month, i))
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	summary, err := s.aggregator.ReceivedSummary(context.Background(), "emp-b")
	if err != nil {
		t.Fatal(err)
	}
	if summary.TotalReceived != 4 {
		t.Errorf("TotalReceived = %d, want 4", summary.TotalReceived)
	}
	if len(summary.Recent) != domain.RecentWindow {
		t.Fatalf("len(Recent) = %d, want %d", len(summary.Recent), domain.RecentWindow)
	}
	for i := 1; i < len(summary.Recent); i++ {
		if summary.Recent[i].CreatedAt.After(summary.Recent[i-1].CreatedAt) {
			t.Errorf("Recent not newest-first at index %d", i)
		}
	}
}

func TestReceivedSummary_FallbackGiverName(t *testing.T) {
	store := newTestStore(t)
	dir := newTestDirectory()
	quota := NewTracker(store)
	redemption := NewRedemption(store, dir, quota)

	// Grant first, then aggregate against an empty directory, mimicking a
	// giver deleted from the directory after granting.
	_, err := redemption.GiveStar(context.Background(),
		"emp-a", "emp-b", domain.ReasonOther, "bye", testNow)
	if err != nil {
		t.Fatal(err)
	}
	emptyDir := directory.NewStatic(nil)
	aggregator := NewAggregator(store, emptyDir)

	summary, err := aggregator.ReceivedSummary(context.Background(), "emp-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Recent) != 1 {
		t.Fatalf("len(Recent) = %d, want 1", len(summary.Recent))
	}
	if summary.Recent[0].GiverName != domain.FallbackGiverName {
		t.Errorf("GiverName = %q, want %q", summary.Recent[0].GiverName, domain.FallbackGiverName)
	}
}

func TestLeaderboard(t *testing.T) {
	s := newTestServices(t)

	grants := []struct{ giver, recipient string }{
		{"emp-a", "emp-b"},
		{"emp-c", "emp-b"},
		{"emp-a", "emp-c"},
	}
	for i, g := range grants {
		_, err := s.redemption.GiveStar(context.Background(),
			g.giver, g.recipient, domain.ReasonCollaboration,
			fmt.Sprintf("msg %d", i), testNow.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
	}

	totals, err := s.aggregator.Leaderboard(context.Background(),
		[]string{"emp-b", "emp-c", "emp-d", "emp-b"})
	if err != nil {
		t.Fatalf("Leaderboard() error: %v", err)
	}
	want := map[string]int{"emp-b": 2, "emp-c": 1, "emp-d": 0}
	for id, count := range want {
		if totals[id] != count {
			t.Errorf("totals[%s] = %d, want %d", id, totals[id], count)
		}
	}
	if len(totals) != len(want) {
		t.Errorf("len(totals) = %d, want %d (duplicates collapsed)", len(totals), len(want))
	}
}
