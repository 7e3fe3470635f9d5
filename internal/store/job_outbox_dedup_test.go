package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "sqlite_job_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Job repo tests ---

func TestSQLiteStore_JobRepo_EnqueueAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)

	id, err := s.EnqueueJob("followup_checkin", time.Now().Add(time.Hour), `{"task_id":"task_1"}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}
	job, err := s.GetJob(id)
	if err != nil || job == nil {
		t.Fatalf("GetJob failed: %v %v", job, err)
	}
	if job.Kind != "followup_checkin" || job.Status != JobStatusQueued || job.MaxAttempts != DefaultJobMaxAttempts {
		t.Errorf("unexpected job %+v", job)
	}
	if job.PayloadJSON != `{"task_id":"task_1"}` {
		t.Errorf("Expected payload, got %q", job.PayloadJSON)
	}

	missing, err := s.GetJob("job_missing")
	if err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for missing job, got %v %v", missing, err)
	}
}

func TestSQLiteStore_JobRepo_DedupeKey(t *testing.T) {
	s := newTestSQLiteStore(t)
	runAt := time.Now().Add(time.Hour)

	id1, err := s.EnqueueJob("followup_checkin", runAt, `{}`, "checkin:task_1")
	if err != nil {
		t.Fatalf("EnqueueJob 1 failed: %v", err)
	}
	id2, err := s.EnqueueJob("followup_checkin", runAt, `{}`, "checkin:task_1")
	if err != nil {
		t.Fatalf("EnqueueJob 2 failed: %v", err)
	}
	if id2 != id1 {
		t.Errorf("Expected dedupe to return same ID %q, got %q", id1, id2)
	}

	if err := s.CompleteJob(id1); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	id3, err := s.EnqueueJob("followup_checkin", runAt, `{}`, "checkin:task_1")
	if err != nil {
		t.Fatalf("EnqueueJob 3 failed: %v", err)
	}
	if id3 == id1 {
		t.Error("Expected new ID after completing old job with same dedupe key")
	}
}

func TestSQLiteStore_JobRepo_ClaimDueJobs(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	dueID, _ := s.EnqueueJob("due", now.Add(-time.Minute), `{}`, "")
	_, _ = s.EnqueueJob("later", now.Add(time.Hour), `{}`, "")

	jobs, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != dueID || jobs[0].Status != JobStatusRunning {
		t.Fatalf("expected only the due job to be claimed, got %+v", jobs)
	}

	again, err := s.ClaimDueJobs(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("claimed job must not be claimed twice, got %d", len(again))
	}
}

func TestSQLiteStore_JobRepo_FailAndRetry(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()
	id, _ := s.EnqueueJob("flaky", now.Add(-time.Second), `{}`, "")

	for attempt := 1; attempt <= DefaultJobMaxAttempts; attempt++ {
		if _, err := s.ClaimDueJobs(now.Add(time.Duration(attempt)*time.Hour), 10); err != nil {
			t.Fatalf("ClaimDueJobs failed: %v", err)
		}
		if err := s.FailJob(id, "boom", now.Add(time.Duration(attempt)*time.Hour)); err != nil {
			t.Fatalf("FailJob failed: %v", err)
		}
		job, _ := s.GetJob(id)
		want := JobStatusQueued
		if attempt == DefaultJobMaxAttempts {
			want = JobStatusFailed
		}
		if job.Status != want || job.Attempt != attempt || job.LastError != "boom" {
			t.Fatalf("attempt %d: unexpected job %+v", attempt, job)
		}
	}
}

func TestSQLiteStore_JobRepo_CancelAndRequeueStale(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	canceled, _ := s.EnqueueJob("k", now.Add(-time.Second), `{}`, "")
	if err := s.CancelJob(canceled); err != nil {
		t.Fatalf("CancelJob failed: %v", err)
	}
	stuck, _ := s.EnqueueJob("k", now.Add(-time.Second), `{}`, "")
	if _, err := s.ClaimDueJobs(now, 10); err != nil {
		t.Fatalf("ClaimDueJobs failed: %v", err)
	}

	n, err := s.RequeueStaleRunningJobs(now.Add(time.Second))
	if err != nil {
		t.Fatalf("RequeueStaleRunningJobs failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 requeued job, got %d", n)
	}
	job, _ := s.GetJob(stuck)
	if job.Status != JobStatusQueued || job.LockedAt != nil {
		t.Errorf("expected stuck job to be requeued, got %+v", job)
	}
	job, _ = s.GetJob(canceled)
	if job.Status != JobStatusCanceled {
		t.Errorf("canceled job changed status: %+v", job)
	}
}

// --- Outbox repo tests ---

func TestSQLiteStore_OutboxRepo_Lifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()

	id, err := s.EnqueueOutboxMessage("+15551230001", "task_assigned", `{"body":"hi"}`, "assign:task_1")
	if err != nil {
		t.Fatalf("EnqueueOutboxMessage failed: %v", err)
	}
	dup, _ := s.EnqueueOutboxMessage("+15551230001", "task_assigned", `{"body":"hi"}`, "assign:task_1")
	if dup != id {
		t.Errorf("expected dedupe to return %q, got %q", id, dup)
	}

	msgs, err := s.ClaimDueOutboxMessages(now, 10)
	if err != nil {
		t.Fatalf("ClaimDueOutboxMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Recipient != "+15551230001" || msgs[0].Status != OutboxStatusSending {
		t.Fatalf("unexpected claim %+v", msgs)
	}
	if err := s.MarkOutboxMessageSent(id); err != nil {
		t.Fatalf("MarkOutboxMessageSent failed: %v", err)
	}
	m, _ := s.GetOutboxMessage(id)
	if m == nil || m.Status != OutboxStatusSent {
		t.Errorf("expected sent message, got %+v", m)
	}
}

func TestSQLiteStore_OutboxRepo_FailGivesUp(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()
	id, _ := s.EnqueueOutboxMessage("+15551230001", "emergency_escalation", `{}`, "")

	for i := 1; i <= MaxOutboxAttempts; i++ {
		claimed, err := s.ClaimDueOutboxMessages(now.Add(time.Duration(i)*time.Hour), 10)
		if err != nil || len(claimed) != 1 {
			t.Fatalf("attempt %d: expected one claimed message, got %d %v", i, len(claimed), err)
		}
		if err := s.FailOutboxMessage(id, "twilio down", now.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("FailOutboxMessage failed: %v", err)
		}
	}
	m, _ := s.GetOutboxMessage(id)
	if m.Status != OutboxStatusFailed || m.Attempts != MaxOutboxAttempts || m.LastError != "twilio down" {
		t.Errorf("expected permanently failed message, got %+v", m)
	}
	if claimed, _ := s.ClaimDueOutboxMessages(now.Add(48*time.Hour), 10); len(claimed) != 0 {
		t.Error("failed message must not be claimed again")
	}
}

func TestSQLiteStore_OutboxRepo_RetryNotBeforeNextAttempt(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()
	id, _ := s.EnqueueOutboxMessage("+15551230001", "k", `{}`, "")
	if _, err := s.ClaimDueOutboxMessages(now, 10); err != nil {
		t.Fatal(err)
	}
	if err := s.FailOutboxMessage(id, "busy", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if claimed, _ := s.ClaimDueOutboxMessages(now, 10); len(claimed) != 0 {
		t.Error("message claimed before its next attempt time")
	}
	if claimed, _ := s.ClaimDueOutboxMessages(now.Add(2*time.Minute), 10); len(claimed) != 1 {
		t.Error("expected message to be claimable after its next attempt time")
	}
}

// --- Dedup repo tests ---

func TestDedupRepo(t *testing.T) {
	for name, repo := range map[string]DedupRepo{
		"sqlite": newTestSQLiteStore(t),
		"memory": NewInMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			first, err := repo.RecordInbound("alert:a1", "fam")
			if err != nil || !first {
				t.Fatalf("expected first delivery to be recorded, got %v %v", first, err)
			}
			second, err := repo.RecordInbound("alert:a1", "fam")
			if err != nil || second {
				t.Fatalf("expected duplicate delivery, got %v %v", second, err)
			}
			if err := repo.MarkProcessed("alert:a1"); err != nil {
				t.Fatalf("MarkProcessed failed: %v", err)
			}
			if err := repo.ForgetInbound("alert:a1"); err != nil {
				t.Fatalf("ForgetInbound failed: %v", err)
			}
			again, _ := repo.RecordInbound("alert:a1", "fam")
			if !again {
				t.Error("expected a forgotten key to be recorded again")
			}
		})
	}
}

// --- Runner tests ---

func TestJobRunner_Basic(t *testing.T) {
	s := newTestSQLiteStore(t)

	var executed int32
	runner := NewJobRunner(s, 50*time.Millisecond)
	runner.RegisterHandler("followup_checkin", func(ctx context.Context, payload string) error {
		atomic.AddInt32(&executed, 1)
		return nil
	})

	id, err := s.EnqueueJob("followup_checkin", time.Now().Add(-time.Second), `{}`, "")
	if err != nil {
		t.Fatalf("EnqueueJob failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	runner.Run(ctx)

	if atomic.LoadInt32(&executed) != 1 {
		t.Errorf("Expected handler to execute once, got %d", atomic.LoadInt32(&executed))
	}
	job, _ := s.GetJob(id)
	if job.Status != JobStatusDone {
		t.Errorf("Expected job done, got %s", job.Status)
	}
}

func TestJobRunner_RunOnceBackoffAndMissingHandler(t *testing.T) {
	s := newTestSQLiteStore(t)
	now := time.Now()
	runner := NewJobRunner(s, time.Hour, WithBaseBackoff(time.Minute))
	runner.RegisterHandler("flaky", func(ctx context.Context, payload string) error {
		return errors.New("not yet")
	})

	flaky, _ := s.EnqueueJob("flaky", now.Add(-time.Second), `{}`, "")
	orphan, _ := s.EnqueueJob("unknown_kind", now.Add(-time.Second), `{}`, "")

	if n := runner.RunOnce(context.Background(), now); n != 2 {
		t.Fatalf("expected 2 claimed jobs, got %d", n)
	}
	job, _ := s.GetJob(flaky)
	if job.Status != JobStatusQueued || job.Attempt != 1 || !job.RunAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected retry after one minute, got %+v", job)
	}
	job, _ = s.GetJob(orphan)
	if job.Status != JobStatusQueued || job.LastError == "" {
		t.Errorf("expected orphan job to be requeued with an error, got %+v", job)
	}
}

func TestOutboxSender_Basic(t *testing.T) {
	s := newTestSQLiteStore(t)

	var sent int32
	sender := NewOutboxSender(s, func(ctx context.Context, msg OutboxMessage) error {
		if msg.Recipient != "+15551230001" {
			t.Errorf("unexpected recipient %q", msg.Recipient)
		}
		atomic.AddInt32(&sent, 1)
		return nil
	}, 50*time.Millisecond)

	id, _ := s.EnqueueOutboxMessage("+15551230001", "task_assigned", `{}`, "")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sender.Run(ctx)

	if atomic.LoadInt32(&sent) != 1 {
		t.Errorf("Expected 1 send, got %d", atomic.LoadInt32(&sent))
	}
	m, _ := s.GetOutboxMessage(id)
	if m.Status != OutboxStatusSent {
		t.Errorf("Expected message sent, got %s", m.Status)
	}
}

func TestBackoff(t *testing.T) {
	if backoff(10*time.Second, 0) != 10*time.Second || backoff(10*time.Second, 3) != 80*time.Second {
		t.Error("unexpected backoff progression")
	}
	if backoff(time.Second, 50) != backoff(time.Second, 10) {
		t.Error("backoff exponent should be capped")
	}
}
