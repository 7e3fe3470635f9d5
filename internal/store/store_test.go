package store

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// exerciseStore runs the Store contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	base := time.Now().UTC().Truncate(time.Second)

	members := []models.FamilyMember{
		{ID: "m1", FamilyID: "fam", Name: "Avery", Phone: "+15551230001", ZipCode: "10001",
			Skills: []string{"Medical/Healthcare"}, Availability: models.AvailabilityFlexible, EmergencyPriority: 1, CreatedAt: base},
		{ID: "m2", FamilyID: "fam", Name: "Jordan", Phone: "+15551230002", ZipCode: "10002", CreatedAt: base.Add(time.Second)},
		{ID: "m3", FamilyID: "other", Name: "Sam", Phone: "+15551230003", CreatedAt: base},
	}
	for _, m := range members {
		if err := s.AddMember(m); err != nil {
			t.Fatalf("AddMember(%s) failed: %v", m.ID, err)
		}
	}
	got, err := s.ListMembers("fam")
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "m2" {
		t.Fatalf("unexpected members %+v", got)
	}
	if got[0].Availability != models.AvailabilityFlexible || len(got[0].Skills) != 1 || got[0].EmergencyPriority != 1 {
		t.Errorf("member fields not preserved: %+v", got[0])
	}
	if got[1].Availability != models.AvailabilityUnknown {
		t.Errorf("expected unknown availability, got %v", got[1].Availability)
	}
	if m, err := s.GetMember("nope"); err != nil || m != nil {
		t.Errorf("expected (nil, nil) for missing member, got %v %v", m, err)
	}

	due := base.Add(4 * time.Hour)
	tasks := []models.CareTask{
		{ID: "t1", FamilyID: "fam", AlertID: "a1", Title: "Check in", Priority: models.UrgencyHigh, Status: models.TaskStatusPending,
			AssignedTo: "m1", Checklist: []models.ChecklistItem{{Text: "Call", Required: true}}, DueAt: &due, CreatedAt: base, UpdatedAt: base},
		{ID: "t2", FamilyID: "fam", Title: "Groceries", Priority: models.UrgencyLow, Status: models.TaskStatusInProgress,
			AssignedTo: "m1", CreatedAt: base.Add(time.Second), UpdatedAt: base},
		{ID: "t3", FamilyID: "fam", Title: "Old", Priority: models.UrgencyLow, Status: models.TaskStatusCompleted,
			AssignedTo: "m1", CreatedAt: base.Add(2 * time.Second), UpdatedAt: base},
	}
	for _, task := range tasks {
		if err := s.AddTask(task); err != nil {
			t.Fatalf("AddTask(%s) failed: %v", task.ID, err)
		}
	}
	if n, err := s.CountActiveTasks("m1"); err != nil || n != 2 {
		t.Errorf("expected 2 active tasks, got %d %v", n, err)
	}
	if err := s.UpdateTaskStatus("t2", models.TaskStatusCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	if n, _ := s.CountActiveTasks("m1"); n != 1 {
		t.Errorf("expected 1 active task after completion, got %d", n)
	}
	if err := s.UpdateTaskStatus("missing", models.TaskStatusCompleted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	task, err := s.GetTask("t1")
	if err != nil || task == nil {
		t.Fatalf("GetTask failed: %v %v", task, err)
	}
	if task.AlertID != "a1" || task.DueAt == nil || !task.DueAt.Equal(due) || len(task.Checklist) != 1 || task.Priority != models.UrgencyHigh {
		t.Errorf("task fields not preserved: %+v", task)
	}
	if list, _ := s.ListTasks("fam"); len(list) != 3 || list[0].ID != "t1" {
		t.Errorf("unexpected task list %+v", list)
	}

	for i, a := range []models.Alert{
		{ID: "a1", FamilyID: "fam", AlertType: "memoryIssue", Urgency: models.UrgencyHigh, Title: "x", CreatedAt: base.Add(-time.Hour)},
		{ID: "a2", FamilyID: "fam", AlertType: "healthConcern", Urgency: models.UrgencyUrgent, Title: "y", CreatedAt: base.Add(-10 * time.Minute)},
	} {
		if err := s.AddAlert(a); err != nil {
			t.Fatalf("AddAlert %d failed: %v", i, err)
		}
	}
	recent, err := s.ListAlertsSince("fam", base.Add(-30*time.Minute))
	if err != nil || len(recent) != 1 || recent[0].ID != "a2" || recent[0].Urgency != models.UrgencyUrgent {
		t.Errorf("unexpected recent alerts %+v %v", recent, err)
	}
	if err := s.DeleteAlert("a2"); err != nil {
		t.Fatalf("DeleteAlert failed: %v", err)
	}
	if recent, _ := s.ListAlertsSince("fam", base.Add(-30*time.Minute)); len(recent) != 0 {
		t.Errorf("expected no recent alerts after delete, got %+v", recent)
	}
	if err := s.AddAlert(models.Alert{ID: "a2", FamilyID: "fam", AlertType: "healthConcern", Urgency: models.UrgencyUrgent,
		Title: "y", CreatedAt: base}); err != nil {
		t.Errorf("re-adding a deleted alert ID failed: %v", err)
	}

	checkIn := base.Add(2 * time.Hour)
	if err := s.AddOutcome(models.OutcomeRecord{ID: "o1", TaskID: "t1", FamilyID: "fam", TemplateType: models.OutcomeGeneral,
		ActionTaken: "Escalated", FollowUpRequired: true, NextCheckIn: &checkIn, CreatedAt: base}); err != nil {
		t.Fatalf("AddOutcome failed: %v", err)
	}
	outcomes, err := s.ListOutcomes("t1")
	if err != nil || len(outcomes) != 1 || !outcomes[0].FollowUpRequired || outcomes[0].TemplateType != models.OutcomeGeneral {
		t.Errorf("unexpected outcomes %+v %v", outcomes, err)
	}

	for i, e := range []models.TimelineEntry{
		{ID: "e1", FamilyID: "fam", EventType: "outcome_captured", Title: "first", Details: map[string]string{"taskId": "t1"}, CreatedAt: base},
		{ID: "e2", FamilyID: "fam", EventType: "task_assigned", Title: "second", CreatedAt: base.Add(time.Minute)},
	} {
		if err := s.AddTimelineEntry(e); err != nil {
			t.Fatalf("AddTimelineEntry %d failed: %v", i, err)
		}
	}
	timeline, err := s.ListTimeline("fam")
	if err != nil || len(timeline) != 2 || timeline[0].ID != "e2" || timeline[1].Details["taskId"] != "t1" {
		t.Errorf("unexpected timeline %+v %v", timeline, err)
	}

	rec := models.TriageSessionRecord{AlertID: "a1", FamilyID: "fam", Scenario: models.ScenarioChestPain, CurrentStep: 1,
		Status: "active", Responses: models.Responses{}, CreatedAt: base.Add(-2 * time.Hour), UpdatedAt: base.Add(-2 * time.Hour)}
	if err := s.SaveTriageSession(rec); err != nil {
		t.Fatalf("SaveTriageSession failed: %v", err)
	}
	rec.CurrentStep = 2
	rec.Responses = models.Responses{"chest_pain_present": models.Text("yes")}
	if err := s.SaveTriageSession(rec); err != nil {
		t.Fatalf("SaveTriageSession (update) failed: %v", err)
	}
	sess, err := s.GetTriageSession("a1")
	if err != nil || sess == nil || sess.CurrentStep != 2 || !sess.Responses["chest_pain_present"].IsYes() {
		t.Errorf("unexpected session %+v %v", sess, err)
	}
	idle, err := s.ListIdleTriageSessions("active", base.Add(-time.Hour))
	if err != nil || len(idle) != 1 {
		t.Errorf("expected one idle session, got %d %v", len(idle), err)
	}
	if idle, _ := s.ListIdleTriageSessions("complete", base); len(idle) != 0 {
		t.Errorf("expected no idle complete sessions, got %d", len(idle))
	}
	if err := s.DeleteTriageSession("a1"); err != nil {
		t.Fatalf("DeleteTriageSession failed: %v", err)
	}
	if sess, _ := s.GetTriageSession("a1"); sess != nil {
		t.Error("expected session to be deleted")
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	exerciseStore(t, newTestSQLiteStore(t))
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	for _, table := range []string{"family_members", "care_tasks", "alerts", "outcomes", "timeline_entries", "triage_sessions"} {
		if _, err := pgStore.db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to clean %s: %v", table, err)
		}
	}
	exerciseStore(t, pgStore)
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected an error without a DSN")
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/carecircle": "postgres",
		"postgresql://localhost/carecircle":   "postgres",
		"host=localhost dbname=carecircle":    "postgres",
		"/var/lib/carecircle/state.db":        "sqlite3",
		"carecircle.db":                       "sqlite3",
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestDollarPlaceholders(t *testing.T) {
	got := dollarPlaceholders(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`)
	want := `UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
