package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/store"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("@hourly", func() {}); err != nil {
		t.Errorf("Expected descriptor to be accepted, got %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", s.Len())
	}
}

func TestSchedulerRejectsBadExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("every tuesday", func() {}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if err := s.Validate("* * * *"); err == nil {
		t.Error("expected four-field expression to be rejected")
	}
	if err := s.Validate(DefaultSweepSpec); err != nil {
		t.Errorf("default sweep spec should parse: %v", err)
	}
}

func TestSessionSweeperRemovesOnlyIdleActiveSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []models.TriageSessionRecord{
		{AlertID: "stale", FamilyID: "fam", Scenario: models.ScenarioFall, Status: "active", UpdatedAt: now.Add(-25 * time.Hour)},
		{AlertID: "fresh", FamilyID: "fam", Scenario: models.ScenarioFall, Status: "active", UpdatedAt: now.Add(-time.Hour)},
		{AlertID: "done", FamilyID: "fam", Scenario: models.ScenarioFall, Status: "complete", UpdatedAt: now.Add(-72 * time.Hour)},
	}
	for _, r := range recs {
		if err := st.SaveTriageSession(r); err != nil {
			t.Fatal(err)
		}
	}

	sw := NewSessionSweeper(st, 0)
	sw.now = func() time.Time { return now }
	n, err := sw.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 session removed, got %d", n)
	}
	for id, wantPresent := range map[string]bool{"stale": false, "fresh": true, "done": true} {
		rec, _ := st.GetTriageSession(id)
		if (rec != nil) != wantPresent {
			t.Errorf("session %s present=%v, want %v", id, rec != nil, wantPresent)
		}
	}
}

type failingSessionStore struct{}

func (failingSessionStore) ListIdleTriageSessions(string, time.Time) ([]models.TriageSessionRecord, error) {
	return nil, errors.New("db down")
}
func (failingSessionStore) GetTriageSession(string) (*models.TriageSessionRecord, error) {
	return nil, nil
}
func (failingSessionStore) DeleteTriageSession(string) error { return nil }

func TestSessionSweeperPropagatesListError(t *testing.T) {
	if _, err := NewSessionSweeper(failingSessionStore{}, time.Hour).Sweep(); err == nil {
		t.Error("expected error from failing store")
	}
}

func TestSessionSweeperSkipsSessionTouchedUnderLock(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := models.TriageSessionRecord{AlertID: "racing", FamilyID: "fam", Scenario: models.ScenarioFall, Status: "active",
		UpdatedAt: now.Add(-48 * time.Hour)}
	if err := st.SaveTriageSession(rec); err != nil {
		t.Fatal(err)
	}

	var locked []string
	// An advance saves the session between the listing and the sweeper taking the lock.
	locker := func(alertID string) func() {
		locked = append(locked, alertID)
		touched := rec
		touched.CurrentStep = 2
		touched.UpdatedAt = now
		if err := st.SaveTriageSession(touched); err != nil {
			t.Fatal(err)
		}
		return func() {}
	}
	sw := NewSessionSweeper(st, time.Hour, WithSessionLocker(locker))
	sw.now = func() time.Time { return now }
	n, err := sw.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no sessions removed, got %d", n)
	}
	if len(locked) != 1 || locked[0] != "racing" {
		t.Errorf("expected the session lock to be taken once, got %v", locked)
	}
	if cur, _ := st.GetTriageSession("racing"); cur == nil || cur.CurrentStep != 2 {
		t.Errorf("expected the touched session to survive, got %+v", cur)
	}
}

func TestSessionSweeperSchedule(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	sw := NewSessionSweeper(store.NewInMemoryStore(), time.Hour)
	if err := sw.Schedule(s, ""); err != nil {
		t.Fatalf("Schedule with default spec: %v", err)
	}
	if err := sw.Schedule(s, "not cron"); err == nil {
		t.Error("expected invalid expression to fail")
	}
}
