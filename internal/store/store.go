// Package store provides storage backends for CareCircle.
//
// It includes an in-memory store for tests and development, and SQLite and PostgreSQL stores that
// also back the durable job runner and notification outbox.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// ErrNotFound is returned by updates that target a record which does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract used by the API layer.
//
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	SaveTriageSession(rec models.TriageSessionRecord) error
	GetTriageSession(alertID string) (*models.TriageSessionRecord, error)
	DeleteTriageSession(alertID string) error
	// ListIdleTriageSessions returns sessions in the given status last updated before the cutoff.
	ListIdleTriageSessions(status string, updatedBefore time.Time) ([]models.TriageSessionRecord, error)

	AddMember(m models.FamilyMember) error
	GetMember(id string) (*models.FamilyMember, error)
	ListMembers(familyID string) ([]models.FamilyMember, error)
	CountActiveTasks(memberID string) (int, error)

	AddTask(t models.CareTask) error
	GetTask(id string) (*models.CareTask, error)
	ListTasks(familyID string) ([]models.CareTask, error)
	UpdateTaskStatus(id string, status models.TaskStatus) error

	AddAlert(a models.Alert) error
	DeleteAlert(id string) error
	ListAlertsSince(familyID string, since time.Time) ([]models.Alert, error)

	AddOutcome(o models.OutcomeRecord) error
	ListOutcomes(taskID string) ([]models.OutcomeRecord, error)

	AddTimelineEntry(e models.TimelineEntry) error
	ListTimeline(familyID string) ([]models.TimelineEntry, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string or file path
}

// Option defines a functional option for configuring a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	// key=value form, e.g. "host=localhost user=carecircle dbname=carecircle"
	if strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore keeps everything in maps guarded by a mutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.TriageSessionRecord
	members  map[string]models.FamilyMember
	tasks    map[string]models.CareTask
	alerts   []models.Alert
	outcomes []models.OutcomeRecord
	timeline []models.TimelineEntry
	inbound  map[string]DedupRecord
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.TriageSessionRecord),
		members:  make(map[string]models.FamilyMember),
		tasks:    make(map[string]models.CareTask),
	}
}

func (s *InMemoryStore) SaveTriageSession(rec models.TriageSessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Responses = cloneResponses(rec.Responses)
	s.sessions[rec.AlertID] = rec
	return nil
}

func (s *InMemoryStore) GetTriageSession(alertID string) (*models.TriageSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[alertID]
	if !ok {
		return nil, nil
	}
	rec.Responses = cloneResponses(rec.Responses)
	return &rec, nil
}

func (s *InMemoryStore) DeleteTriageSession(alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, alertID)
	return nil
}

func (s *InMemoryStore) ListIdleTriageSessions(status string, updatedBefore time.Time) ([]models.TriageSessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TriageSessionRecord
	for _, rec := range s.sessions {
		if rec.Status == status && rec.UpdatedAt.Before(updatedBefore) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryStore) AddMember(m models.FamilyMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Skills = append([]string(nil), m.Skills...)
	s.members[m.ID] = m
	return nil
}

func (s *InMemoryStore) GetMember(id string) (*models.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// ListMembers returns a family's members in the order they were added.
func (s *InMemoryStore) ListMembers(familyID string) ([]models.FamilyMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.FamilyMember
	for _, m := range s.members {
		if m.FamilyID == familyID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) CountActiveTasks(memberID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tasks {
		if t.AssignedTo == memberID && t.Status.IsActive() {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) AddTask(t models.CareTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Checklist = append([]models.ChecklistItem(nil), t.Checklist...)
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryStore) GetTask(id string) (*models.CareTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) ListTasks(familyID string) ([]models.CareTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CareTask
	for _, t := range s.tasks {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) UpdateTaskStatus(id string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	s.tasks[id] = t
	return nil
}

func (s *InMemoryStore) AddAlert(a models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *InMemoryStore) DeleteAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
	return nil
}

// ListAlertsSince returns a family's alerts created at or after since, newest first.
func (s *InMemoryStore) ListAlertsSince(familyID string, since time.Time) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.FamilyID == familyID && !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) AddOutcome(o models.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
	return nil
}

func (s *InMemoryStore) ListOutcomes(taskID string) ([]models.OutcomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.OutcomeRecord
	for _, o := range s.outcomes {
		if o.TaskID == taskID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AddTimelineEntry(e models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = append(s.timeline, e)
	return nil
}

// ListTimeline returns a family's timeline, newest first.
func (s *InMemoryStore) ListTimeline(familyID string) ([]models.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.TimelineEntry
	for _, e := range s.timeline {
		if e.FamilyID == familyID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

func cloneResponses(r models.Responses) models.Responses {
	if r == nil {
		return nil
	}
	out := make(models.Responses, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
