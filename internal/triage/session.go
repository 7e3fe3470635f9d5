package triage

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusEmergency Status = "emergency"
	StatusComplete  Status = "complete"
)

// IsTerminal reports whether a session in this status can no longer advance.
func (s Status) IsTerminal() bool {
	return s == StatusEmergency || s == StatusComplete
}

// Session is one walk through a protocol for a single alert. A session has a single writer;
// callers serialize access per alert.
type Session struct {
	alertID   string
	template  *Template
	current   int
	status    Status
	responses models.Responses
	createdAt time.Time
	updatedAt time.Time
}

// NewSession opens a session for alertID at step 1 of the scenario's protocol.
func NewSession(alertID string, scenario models.Scenario) (*Session, error) {
	tmpl, err := Lookup(scenario)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	slog.Debug("triage.NewSession", "alertID", alertID, "scenario", scenario)
	return &Session{
		alertID:   alertID,
		template:  tmpl,
		current:   1,
		status:    StatusActive,
		responses: make(models.Responses),
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Restore rebuilds a session from a persisted snapshot.
func Restore(rec models.TriageSessionRecord) (*Session, error) {
	tmpl, err := Lookup(rec.Scenario)
	if err != nil {
		return nil, err
	}
	if tmpl.Step(rec.CurrentStep) == nil {
		return nil, fmt.Errorf("%w: step %d not in %s protocol", ErrInvalidState, rec.CurrentStep, rec.Scenario)
	}
	status := Status(rec.Status)
	switch status {
	case StatusActive, StatusEmergency, StatusComplete:
	case "":
		status = StatusActive
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidState, rec.Status)
	}
	responses := make(models.Responses, len(rec.Responses))
	maps.Copy(responses, rec.Responses)
	return &Session{
		alertID:   rec.AlertID,
		template:  tmpl,
		current:   rec.CurrentStep,
		status:    status,
		responses: responses,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
	}, nil
}

// Snapshot returns the persistable form of the session.
func (s *Session) Snapshot(familyID string) models.TriageSessionRecord {
	return models.TriageSessionRecord{
		AlertID:     s.alertID,
		FamilyID:    familyID,
		Scenario:    s.template.Scenario,
		CurrentStep: s.current,
		Status:      string(s.status),
		Responses:   s.Responses(),
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

func (s *Session) AlertID() string             { return s.alertID }
func (s *Session) Scenario() models.Scenario   { return s.template.Scenario }
func (s *Session) Status() Status              { return s.status }
func (s *Session) StepNumber() int             { return s.current }
func (s *Session) CreatedAt() time.Time        { return s.createdAt }
func (s *Session) UpdatedAt() time.Time        { return s.updatedAt }
func (s *Session) Template() *Template         { return s.template }
func (s *Session) Responses() models.Responses { return maps.Clone(s.responses) }

// CurrentStep returns the definition of the active step.
func (s *Session) CurrentStep() (*Step, error) {
	st := s.template.Step(s.current)
	if st == nil {
		return nil, fmt.Errorf("%w: step %d not in %s protocol", ErrInvalidState, s.current, s.template.Scenario)
	}
	return st, nil
}

// RecordResponse stores or overwrites the answer to a question. Unknown question ids are kept but
// never consulted by the protocol.
func (s *Session) RecordResponse(questionID string, v models.Value) {
	s.responses[questionID] = v
	s.updatedAt = time.Now()
}

// HasCriticalFlags reports whether any critical flag of the current step fires.
func (s *Session) HasCriticalFlags() bool {
	st, err := s.CurrentStep()
	if err != nil {
		return false
	}
	for _, f := range st.CriticalFlags {
		if f.Eval(s.responses) {
			slog.Debug("triage.HasCriticalFlags: flag raised", "alertID", s.alertID, "flag", f.String())
			return true
		}
	}
	return false
}

// NextStep resolves where the session would go from the current step. The first transition whose
// condition holds wins; otherwise the following step if one exists, else complete.
func (s *Session) NextStep() (NextStep, error) {
	st, err := s.CurrentStep()
	if err != nil {
		return NextStep{}, err
	}
	for _, tr := range st.Transitions {
		if tr.Condition.Eval(s.responses) {
			return tr.Next, nil
		}
	}
	if s.template.Step(s.current+1) != nil {
		return GoTo(s.current + 1), nil
	}
	return Complete, nil
}

// Advance moves the session along. For a step result it returns the new step; for a terminal
// result the session stays on its current step and is closed to further advances.
func (s *Session) Advance() (*Step, NextStep, error) {
	if s.status.IsTerminal() {
		return nil, NextStep{}, fmt.Errorf("%w: %s", ErrSessionClosed, s.status)
	}
	next, err := s.NextStep()
	if err != nil {
		return nil, NextStep{}, err
	}
	s.updatedAt = time.Now()
	if next.IsTerminal() {
		s.status = Status(next.Terminal)
		slog.Debug("triage.Advance: session closed", "alertID", s.alertID, "status", s.status, "step", s.current)
		return nil, next, nil
	}
	st := s.template.Step(next.Step)
	if st == nil {
		return nil, NextStep{}, fmt.Errorf("%w: transition to undefined step %d", ErrInvalidState, next.Step)
	}
	slog.Debug("triage.Advance", "alertID", s.alertID, "from", s.current, "to", next.Step)
	s.current = next.Step
	return st, next, nil
}

// GenerateActionPlan produces the session's recommendation: the emergency plan when the session
// escalated or a critical flag on the current step fires, otherwise the scenario's graded plan.
func (s *Session) GenerateActionPlan() (models.ActionPlan, error) {
	if s.status == StatusEmergency || s.HasCriticalFlags() {
		return EmergencyPlan(s.template.Scenario), nil
	}
	return ScenarioPlan(s.template.Scenario, s.responses)
}

// ValidateCurrentStep reports whether every required question of the current step has an answer,
// along with the texts of the missing ones.
func (s *Session) ValidateCurrentStep() (bool, []string) {
	st, err := s.CurrentStep()
	if err != nil {
		return false, []string{"Invalid step"}
	}
	var missing []string
	for _, q := range st.Questions {
		if q.Required && !answered(s.responses, q.ID) {
			missing = append(missing, q.Text)
		}
	}
	return len(missing) == 0, missing
}

// ValidateResponses checks a complete response set against every step of a scenario's protocol.
func ValidateResponses(scenario models.Scenario, responses models.Responses) (bool, []string) {
	tmpl, err := Lookup(scenario)
	if err != nil {
		return false, []string{fmt.Sprintf("Invalid scenario: %s", scenario)}
	}
	var problems []string
	for _, st := range tmpl.Steps {
		for _, q := range st.Questions {
			if q.Required && !answered(responses, q.ID) {
				problems = append(problems, "Missing required response for: "+q.Text)
			}
		}
	}
	return len(problems) == 0, problems
}

func answered(r models.Responses, id string) bool {
	v, ok := r[id]
	return ok && !v.IsZero()
}
