package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/triage"
)

// DefaultSessionMaxIdle is how long an active triage session may sit untouched before it is swept.
const DefaultSessionMaxIdle = 24 * time.Hour

// SessionStore is the slice of the store the sweeper needs.
type SessionStore interface {
	ListIdleTriageSessions(status string, updatedBefore time.Time) ([]models.TriageSessionRecord, error)
	GetTriageSession(alertID string) (*models.TriageSessionRecord, error)
	DeleteTriageSession(alertID string) error
}

// SessionLocker acquires the lock writers hold for one session and returns its release.
type SessionLocker func(alertID string) (unlock func())

// SweeperOption configures a SessionSweeper.
type SweeperOption func(*SessionSweeper)

// WithSessionLocker makes the sweeper hold the writers' session lock while it deletes.
func WithSessionLocker(l SessionLocker) SweeperOption {
	return func(s *SessionSweeper) { s.lock = l }
}

// SessionSweeper removes triage sessions that were opened and then abandoned mid-protocol.
// Terminal sessions are kept so their action plans stay readable.
type SessionSweeper struct {
	store   SessionStore
	maxIdle time.Duration
	lock    SessionLocker
	now     func() time.Time
}

func NewSessionSweeper(st SessionStore, maxIdle time.Duration, opts ...SweeperOption) *SessionSweeper {
	if maxIdle <= 0 {
		maxIdle = DefaultSessionMaxIdle
	}
	s := &SessionSweeper{store: st, maxIdle: maxIdle, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.lock == nil {
		s.lock = func(string) func() { return func() {} }
	}
	return s
}

// Sweep deletes active sessions idle longer than maxIdle and returns how many were removed.
// A session written after it was listed is left alone.
func (s *SessionSweeper) Sweep() (int, error) {
	cutoff := s.now().Add(-s.maxIdle)
	idle, err := s.store.ListIdleTriageSessions(string(triage.StatusActive), cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle triage sessions: %w", err)
	}
	removed := 0
	for _, rec := range idle {
		ok, err := s.sweepOne(rec)
		if err != nil {
			slog.Error("SessionSweeper.Sweep: delete failed", "error", err, "alertID", rec.AlertID)
			continue
		}
		if !ok {
			slog.Debug("SessionSweeper.Sweep: session touched since listing, skipped", "alertID", rec.AlertID)
			continue
		}
		removed++
		slog.Info("SessionSweeper.Sweep: removed abandoned session", "alertID", rec.AlertID, "familyID", rec.FamilyID,
			"scenario", rec.Scenario, "step", rec.CurrentStep, "idleSince", rec.UpdatedAt)
	}
	return removed, nil
}

func (s *SessionSweeper) sweepOne(listed models.TriageSessionRecord) (bool, error) {
	unlock := s.lock(listed.AlertID)
	defer unlock()
	cur, err := s.store.GetTriageSession(listed.AlertID)
	if err != nil {
		return false, err
	}
	if cur == nil || cur.Status != listed.Status || !cur.UpdatedAt.Equal(listed.UpdatedAt) {
		return false, nil
	}
	if err := s.store.DeleteTriageSession(listed.AlertID); err != nil {
		return false, err
	}
	return true, nil
}

// Schedule registers the sweep on sched with the given cron expression.
func (s *SessionSweeper) Schedule(sched *Scheduler, expr string) error {
	if expr == "" {
		expr = DefaultSweepSpec
	}
	return sched.AddJob(expr, func() {
		if _, err := s.Sweep(); err != nil {
			slog.Error("SessionSweeper: sweep failed", "error", err)
		}
	})
}
