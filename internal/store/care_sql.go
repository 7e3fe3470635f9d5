package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// sqlCore implements the care-record half of Store over database/sql. Queries are written with
// '?' placeholders and rebound for the dialect.
type sqlCore struct {
	db     *sql.DB
	name   string
	rebind func(string) string
	// skipLocked adds FOR UPDATE SKIP LOCKED to claim queries.
	skipLocked bool
}

func questionMarks(q string) string { return q }

// dollarPlaceholders rewrites '?' placeholders to PostgreSQL's $1, $2, ...
func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// utcArgs normalizes time arguments to UTC. SQLite compares timestamps as text, so every stored
// value must share one offset.
func utcArgs(args []interface{}) []interface{} {
	for i, a := range args {
		if t, ok := a.(time.Time); ok {
			args[i] = t.UTC()
		}
	}
	return args
}

func (s *sqlCore) exec(q string, args ...interface{}) (sql.Result, error) {
	return s.db.Exec(s.rebind(q), utcArgs(args)...)
}

func (s *sqlCore) query(q string, args ...interface{}) (*sql.Rows, error) {
	return s.db.Query(s.rebind(q), utcArgs(args)...)
}

func (s *sqlCore) queryRow(q string, args ...interface{}) *sql.Row {
	return s.db.QueryRow(s.rebind(q), utcArgs(args)...)
}

func (s *sqlCore) SaveTriageSession(rec models.TriageSessionRecord) error {
	responses, err := json.Marshal(rec.Responses)
	if err != nil {
		return fmt.Errorf("failed to encode responses for session %s: %w", rec.AlertID, err)
	}
	scenario, err := rec.Scenario.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO triage_sessions (alert_id, family_id, scenario, current_step, status, responses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (alert_id) DO UPDATE SET
			current_step = EXCLUDED.current_step,
			status = EXCLUDED.status,
			responses = EXCLUDED.responses,
			updated_at = EXCLUDED.updated_at`,
		rec.AlertID, rec.FamilyID, string(scenario), rec.CurrentStep, rec.Status, string(responses), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SaveTriageSession failed", "error", err, "alertID", rec.AlertID)
		return fmt.Errorf("failed to save triage session %s: %w", rec.AlertID, err)
	}
	slog.Debug(s.name+" SaveTriageSession succeeded", "alertID", rec.AlertID, "step", rec.CurrentStep, "status", rec.Status)
	return nil
}

const sessionColumns = `alert_id, family_id, scenario, current_step, status, responses, created_at, updated_at`

func scanSession(sc rowScanner) (models.TriageSessionRecord, error) {
	var rec models.TriageSessionRecord
	var scenario, responses string
	if err := sc.Scan(&rec.AlertID, &rec.FamilyID, &scenario, &rec.CurrentStep, &rec.Status, &responses, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	if err := rec.Scenario.UnmarshalText([]byte(scenario)); err != nil {
		return rec, fmt.Errorf("session %s: %w", rec.AlertID, err)
	}
	if responses != "" {
		if err := json.Unmarshal([]byte(responses), &rec.Responses); err != nil {
			return rec, fmt.Errorf("session %s responses: %w", rec.AlertID, err)
		}
	}
	return rec, nil
}

func (s *sqlCore) GetTriageSession(alertID string) (*models.TriageSessionRecord, error) {
	rec, err := scanSession(s.queryRow(`SELECT `+sessionColumns+` FROM triage_sessions WHERE alert_id = ?`, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug(s.name+" GetTriageSession not found", "alertID", alertID)
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetTriageSession failed", "error", err, "alertID", alertID)
		return nil, err
	}
	return &rec, nil
}

func (s *sqlCore) DeleteTriageSession(alertID string) error {
	if _, err := s.exec(`DELETE FROM triage_sessions WHERE alert_id = ?`, alertID); err != nil {
		slog.Error(s.name+" DeleteTriageSession failed", "error", err, "alertID", alertID)
		return err
	}
	slog.Debug(s.name+" DeleteTriageSession succeeded", "alertID", alertID)
	return nil
}

func (s *sqlCore) ListIdleTriageSessions(status string, updatedBefore time.Time) ([]models.TriageSessionRecord, error) {
	rows, err := s.query(`SELECT `+sessionColumns+` FROM triage_sessions WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`, status, updatedBefore)
	if err != nil {
		slog.Error(s.name+" ListIdleTriageSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to query triage sessions: %w", err)
	}
	defer rows.Close()
	var out []models.TriageSessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan triage session row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate triage session rows: %w", err)
	}
	return out, nil
}

func (s *sqlCore) AddMember(m models.FamilyMember) error {
	skills, err := json.Marshal(nonNilStrings(m.Skills))
	if err != nil {
		return err
	}
	availability, err := m.Availability.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO family_members (id, family_id, name, phone, zip_code, skills, availability, emergency_priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			zip_code = EXCLUDED.zip_code,
			skills = EXCLUDED.skills,
			availability = EXCLUDED.availability,
			emergency_priority = EXCLUDED.emergency_priority`,
		m.ID, m.FamilyID, m.Name, m.Phone, m.ZipCode, string(skills), string(availability), m.EmergencyPriority, m.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddMember failed", "error", err, "memberID", m.ID)
		return fmt.Errorf("failed to insert member %s: %w", m.ID, err)
	}
	slog.Debug(s.name+" AddMember succeeded", "memberID", m.ID, "familyID", m.FamilyID)
	return nil
}

const memberColumns = `id, family_id, name, phone, zip_code, skills, availability, emergency_priority, created_at`

func scanMember(sc rowScanner) (models.FamilyMember, error) {
	var m models.FamilyMember
	var skills, availability string
	if err := sc.Scan(&m.ID, &m.FamilyID, &m.Name, &m.Phone, &m.ZipCode, &skills, &availability, &m.EmergencyPriority, &m.CreatedAt); err != nil {
		return m, err
	}
	if err := decodeJSONColumn(skills, &m.Skills); err != nil {
		return m, fmt.Errorf("member %s skills: %w", m.ID, err)
	}
	if err := m.Availability.UnmarshalText([]byte(availability)); err != nil {
		return m, fmt.Errorf("member %s: %w", m.ID, err)
	}
	return m, nil
}

func (s *sqlCore) GetMember(id string) (*models.FamilyMember, error) {
	m, err := scanMember(s.queryRow(`SELECT `+memberColumns+` FROM family_members WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetMember failed", "error", err, "memberID", id)
		return nil, err
	}
	return &m, nil
}

func (s *sqlCore) ListMembers(familyID string) ([]models.FamilyMember, error) {
	rows, err := s.query(`SELECT `+memberColumns+` FROM family_members WHERE family_id = ? ORDER BY created_at ASC, id ASC`, familyID)
	if err != nil {
		slog.Error(s.name+" ListMembers query failed", "error", err, "familyID", familyID)
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()
	var out []models.FamilyMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}
	slog.Debug(s.name+" ListMembers succeeded", "familyID", familyID, "count", len(out))
	return out, nil
}

func (s *sqlCore) CountActiveTasks(memberID string) (int, error) {
	var n int
	err := s.queryRow(`SELECT COUNT(*) FROM care_tasks WHERE assigned_to = ? AND status IN (?, ?)`,
		memberID, string(models.TaskStatusPending), string(models.TaskStatusInProgress)).Scan(&n)
	if err != nil {
		slog.Error(s.name+" CountActiveTasks failed", "error", err, "memberID", memberID)
		return 0, fmt.Errorf("failed to count active tasks for %s: %w", memberID, err)
	}
	return n, nil
}

func (s *sqlCore) AddTask(t models.CareTask) error {
	checklist, err := json.Marshal(nonNilChecklist(t.Checklist))
	if err != nil {
		return err
	}
	priority, err := t.Priority.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO care_tasks (id, family_id, alert_id, parent_task_id, title, description, priority, status,
			assigned_to, estimated_minutes, checklist, due_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, nilIfEmpty(t.AlertID), nilIfEmpty(t.ParentTaskID), t.Title, t.Description, string(priority),
		string(t.Status), nilIfEmpty(t.AssignedTo), t.EstimatedMinutes, string(checklist), nullTime(t.DueAt), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" AddTask failed", "error", err, "taskID", t.ID)
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}
	slog.Debug(s.name+" AddTask succeeded", "taskID", t.ID, "assignedTo", t.AssignedTo)
	return nil
}

const taskColumns = `id, family_id, alert_id, parent_task_id, title, description, priority, status, assigned_to,
	estimated_minutes, checklist, due_at, created_at, updated_at`

func scanTask(sc rowScanner) (models.CareTask, error) {
	var t models.CareTask
	var alertID, parentID, assignedTo sql.NullString
	var priority, status, checklist string
	var dueAt sql.NullTime
	err := sc.Scan(&t.ID, &t.FamilyID, &alertID, &parentID, &t.Title, &t.Description, &priority, &status, &assignedTo,
		&t.EstimatedMinutes, &checklist, &dueAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	t.AlertID = alertID.String
	t.ParentTaskID = parentID.String
	t.AssignedTo = assignedTo.String
	t.Status = models.TaskStatus(status)
	if dueAt.Valid {
		t.DueAt = &dueAt.Time
	}
	if err := t.Priority.UnmarshalText([]byte(priority)); err != nil {
		return t, fmt.Errorf("task %s: %w", t.ID, err)
	}
	if err := decodeJSONColumn(checklist, &t.Checklist); err != nil {
		return t, fmt.Errorf("task %s checklist: %w", t.ID, err)
	}
	return t, nil
}

func (s *sqlCore) GetTask(id string) (*models.CareTask, error) {
	t, err := scanTask(s.queryRow(`SELECT `+taskColumns+` FROM care_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetTask failed", "error", err, "taskID", id)
		return nil, err
	}
	return &t, nil
}

func (s *sqlCore) ListTasks(familyID string) ([]models.CareTask, error) {
	rows, err := s.query(`SELECT `+taskColumns+` FROM care_tasks WHERE family_id = ? ORDER BY created_at ASC, id ASC`, familyID)
	if err != nil {
		slog.Error(s.name+" ListTasks query failed", "error", err, "familyID", familyID)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()
	var out []models.CareTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return out, nil
}

func (s *sqlCore) UpdateTaskStatus(id string, status models.TaskStatus) error {
	res, err := s.exec(`UPDATE care_tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status), time.Now(), id)
	if err != nil {
		slog.Error(s.name+" UpdateTaskStatus failed", "error", err, "taskID", id)
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Debug(s.name+" UpdateTaskStatus succeeded", "taskID", id, "status", status)
	return nil
}

func (s *sqlCore) AddAlert(a models.Alert) error {
	urgency, err := a.Urgency.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.exec(`INSERT INTO alerts (id, family_id, alert_type, urgency, title, summary, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FamilyID, a.AlertType, string(urgency), a.Title, a.Summary, a.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddAlert failed", "error", err, "alertID", a.ID)
		return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
	}
	slog.Debug(s.name+" AddAlert succeeded", "alertID", a.ID, "type", a.AlertType)
	return nil
}

func (s *sqlCore) DeleteAlert(id string) error {
	if _, err := s.exec(`DELETE FROM alerts WHERE id = ?`, id); err != nil {
		slog.Error(s.name+" DeleteAlert failed", "error", err, "alertID", id)
		return fmt.Errorf("failed to delete alert %s: %w", id, err)
	}
	slog.Debug(s.name+" DeleteAlert succeeded", "alertID", id)
	return nil
}

func (s *sqlCore) ListAlertsSince(familyID string, since time.Time) ([]models.Alert, error) {
	rows, err := s.query(`SELECT id, family_id, alert_type, urgency, title, summary, created_at FROM alerts
		WHERE family_id = ? AND created_at >= ? ORDER BY created_at DESC`, familyID, since)
	if err != nil {
		slog.Error(s.name+" ListAlertsSince query failed", "error", err, "familyID", familyID)
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()
	var out []models.Alert
	for rows.Next() {
		var a models.Alert
		var urgency string
		if err := rows.Scan(&a.ID, &a.FamilyID, &a.AlertType, &urgency, &a.Title, &a.Summary, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		if err := a.Urgency.UnmarshalText([]byte(urgency)); err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}
	return out, nil
}

func (s *sqlCore) AddOutcome(o models.OutcomeRecord) error {
	evidence, err := json.Marshal(nonNilEvidence(o.Evidence))
	if err != nil {
		return err
	}
	templateType, err := o.TemplateType.MarshalText()
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO outcomes (id, task_id, family_id, template_type, action_taken, emergency_services_called, notes,
			evidence, follow_up_required, next_check_in, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TaskID, o.FamilyID, string(templateType), o.ActionTaken, o.EmergencyServicesCalled, o.Notes,
		string(evidence), o.FollowUpRequired, nullTime(o.NextCheckIn), o.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddOutcome failed", "error", err, "outcomeID", o.ID)
		return fmt.Errorf("failed to insert outcome %s: %w", o.ID, err)
	}
	slog.Debug(s.name+" AddOutcome succeeded", "outcomeID", o.ID, "taskID", o.TaskID)
	return nil
}

func (s *sqlCore) ListOutcomes(taskID string) ([]models.OutcomeRecord, error) {
	rows, err := s.query(`SELECT id, task_id, family_id, template_type, action_taken, emergency_services_called, notes,
		evidence, follow_up_required, next_check_in, created_at FROM outcomes WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		slog.Error(s.name+" ListOutcomes query failed", "error", err, "taskID", taskID)
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()
	var out []models.OutcomeRecord
	for rows.Next() {
		var o models.OutcomeRecord
		var templateType, evidence string
		var nextCheckIn sql.NullTime
		if err := rows.Scan(&o.ID, &o.TaskID, &o.FamilyID, &templateType, &o.ActionTaken, &o.EmergencyServicesCalled,
			&o.Notes, &evidence, &o.FollowUpRequired, &nextCheckIn, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		if err := o.TemplateType.UnmarshalText([]byte(templateType)); err != nil {
			return nil, fmt.Errorf("outcome %s: %w", o.ID, err)
		}
		if err := decodeJSONColumn(evidence, &o.Evidence); err != nil {
			return nil, fmt.Errorf("outcome %s evidence: %w", o.ID, err)
		}
		if nextCheckIn.Valid {
			o.NextCheckIn = &nextCheckIn.Time
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcome rows: %w", err)
	}
	return out, nil
}

func (s *sqlCore) AddTimelineEntry(e models.TimelineEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = s.exec(`
		INSERT INTO timeline_entries (id, family_id, elder_id, event_type, title, description, details, caregiver_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FamilyID, nilIfEmpty(e.ElderID), e.EventType, e.Title, e.Description, string(details), nilIfEmpty(e.CaregiverID), e.CreatedAt)
	if err != nil {
		slog.Error(s.name+" AddTimelineEntry failed", "error", err, "entryID", e.ID)
		return fmt.Errorf("failed to insert timeline entry %s: %w", e.ID, err)
	}
	slog.Debug(s.name+" AddTimelineEntry succeeded", "entryID", e.ID, "event", e.EventType)
	return nil
}

func (s *sqlCore) ListTimeline(familyID string) ([]models.TimelineEntry, error) {
	rows, err := s.query(`SELECT id, family_id, elder_id, event_type, title, description, details, caregiver_id, created_at
		FROM timeline_entries WHERE family_id = ? ORDER BY created_at DESC`, familyID)
	if err != nil {
		slog.Error(s.name+" ListTimeline query failed", "error", err, "familyID", familyID)
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()
	var out []models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		var elderID, caregiverID sql.NullString
		var details string
		if err := rows.Scan(&e.ID, &e.FamilyID, &elderID, &e.EventType, &e.Title, &e.Description, &details, &caregiverID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan timeline row: %w", err)
		}
		e.ElderID = elderID.String
		e.CaregiverID = caregiverID.String
		if err := decodeJSONColumn(details, &e.Details); err != nil {
			return nil, fmt.Errorf("timeline entry %s details: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timeline rows: %w", err)
	}
	return out, nil
}

func decodeJSONColumn(raw string, dst interface{}) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilChecklist(v []models.ChecklistItem) []models.ChecklistItem {
	if v == nil {
		return []models.ChecklistItem{}
	}
	return v
}

func nonNilEvidence(v []models.Evidence) []models.Evidence {
	if v == nil {
		return []models.Evidence{}
	}
	return v
}

