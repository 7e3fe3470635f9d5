// Package outcome records how a care task turned out and derives the follow-up work it implies.
package outcome

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// ErrUnknownTemplate is returned for outcome template types with no registered template.
var ErrUnknownTemplate = errors.New("unknown outcome template type")

// EventOutcomeCaptured is the timeline event type for captured outcomes.
const EventOutcomeCaptured = "outcome_captured"

// FollowUpRule emits Task when the captured outcome equals Outcome exactly.
type FollowUpRule struct {
	Outcome    string          `json:"outcome_condition"`
	Task       models.TaskSpec `json:"follow_up_task"`
	DueInHours float64         `json:"due_in_hours"`
}

// Template defines the allowed outcomes of a kind of task and their follow-up rules.
type Template struct {
	Type          models.OutcomeTemplateType `json:"template_type"`
	Title         string                     `json:"title"`
	Description   string                     `json:"description"`
	Options       []string                   `json:"outcome_options"`
	Rules         []FollowUpRule             `json:"follow_up_rules"`
	EvidenceTypes []string                   `json:"evidence_types"`
}

// HasOption reports whether outcome is one of the template's declared options.
func (t *Template) HasOption(outcome string) bool {
	for _, o := range t.Options {
		if o == outcome {
			return true
		}
	}
	return false
}

// ValidationError lists the problems with a captured outcome.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "outcome validation failed: " + strings.Join(e.Problems, "; ")
}

// Captured is a validated outcome.
type Captured struct {
	ActionTaken             string            `json:"action_taken"`
	EmergencyServicesCalled bool              `json:"emergency_services_called"`
	Notes                   string            `json:"notes"`
	Evidence                []models.Evidence `json:"evidence"`
	FollowUpRequired        bool              `json:"follow_up_required"`
	NextCheckIn             *time.Time        `json:"next_check_in,omitempty"`
	FollowUps               []models.TaskSpec `json:"follow_ups,omitempty"`
}

// GetTemplate returns the registered template for a type.
func GetTemplate(t models.OutcomeTemplateType) (*Template, error) {
	tmpl, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, t)
	}
	return tmpl, nil
}

// Templates lists every registered template.
func Templates() []*Template {
	out := make([]*Template, 0, len(registry))
	for _, t := range models.AllOutcomeTemplateTypes() {
		if tmpl, ok := registry[t]; ok {
			out = append(out, tmpl)
		}
	}
	return out
}

// GenerateFollowUps returns the follow-up tasks for every rule matching outcome, in rule order.
// Unknown template types produce none.
func GenerateFollowUps(t models.OutcomeTemplateType, outcome string) []models.TaskSpec {
	tmpl, err := GetTemplate(t)
	if err != nil {
		return nil
	}
	var tasks []models.TaskSpec
	for _, r := range tmpl.Rules {
		if r.Outcome == outcome {
			task := r.Task
			task.Checklist = append([]models.ChecklistItem(nil), r.Task.Checklist...)
			tasks = append(tasks, task)
		}
	}
	if len(tasks) > 0 {
		slog.Debug("outcome.GenerateFollowUps", "templateType", t, "outcome", outcome, "count", len(tasks))
	}
	return tasks
}

// CaptureOutcome validates and captures an outcome as of now.
func CaptureOutcome(t models.OutcomeTemplateType, outcome, notes string, evidence []models.Evidence) (Captured, error) {
	return CaptureOutcomeAt(time.Now(), t, outcome, notes, evidence)
}

// CaptureOutcomeAt validates outcome against the template's options. The next check-in is due
// after the first matching rule's DueInHours.
func CaptureOutcomeAt(now time.Time, t models.OutcomeTemplateType, outcome, notes string, evidence []models.Evidence) (Captured, error) {
	tmpl, err := GetTemplate(t)
	if err != nil {
		return Captured{}, err
	}
	if !tmpl.HasOption(outcome) {
		return Captured{}, &ValidationError{Problems: []string{"Invalid outcome: " + outcome}}
	}
	c := Captured{
		ActionTaken: outcome,
		Notes:       notes,
		Evidence:    evidence,
		FollowUps:   GenerateFollowUps(t, outcome),
	}
	if c.Evidence == nil {
		c.Evidence = []models.Evidence{}
	}
	for _, r := range tmpl.Rules {
		if r.Outcome == outcome {
			next := now.Add(time.Duration(r.DueInHours * float64(time.Hour)))
			c.NextCheckIn = &next
			break
		}
	}
	c.FollowUpRequired = len(c.FollowUps) > 0
	slog.Debug("outcome.CaptureOutcome", "templateType", t, "outcome", outcome, "followUpRequired", c.FollowUpRequired)
	return c, nil
}

// ValidateCompleteness reports missing pieces of an outcome: the outcome itself, and notes for
// outcomes where an explanation is expected.
func ValidateCompleteness(t models.OutcomeTemplateType, outcome, notes string) (bool, []string) {
	tmpl, err := GetTemplate(t)
	if err != nil {
		return false, []string{"Invalid template type"}
	}
	var missing []string
	if outcome == "" || !tmpl.HasOption(outcome) {
		missing = append(missing, "Outcome selection")
	}
	if strings.TrimSpace(notes) == "" && notesRecommended[outcome] {
		missing = append(missing, "Notes (recommended for this outcome)")
	}
	return len(missing) == 0, missing
}

// EvidenceRequirements lists the evidence types a template accepts.
func EvidenceRequirements(t models.OutcomeTemplateType) []string {
	tmpl, err := GetTemplate(t)
	if err != nil {
		return nil
	}
	return append([]string(nil), tmpl.EvidenceTypes...)
}

// Record converts a captured outcome into its persisted form.
func (c Captured) Record(id, taskID, familyID string, t models.OutcomeTemplateType, now time.Time) models.OutcomeRecord {
	return models.OutcomeRecord{
		ID:                      id,
		TaskID:                  taskID,
		FamilyID:                familyID,
		TemplateType:            t,
		ActionTaken:             c.ActionTaken,
		EmergencyServicesCalled: c.EmergencyServicesCalled,
		Notes:                   c.Notes,
		Evidence:                c.Evidence,
		FollowUpRequired:        c.FollowUpRequired,
		NextCheckIn:             c.NextCheckIn,
		CreatedAt:               now,
	}
}

// NewTimelineEntry builds the immutable timeline record for a captured outcome.
func NewTimelineEntry(familyID, elderID, taskID, caregiverID string, t models.OutcomeTemplateType, c Captured, now time.Time) models.TimelineEntry {
	description := c.Notes
	if description == "" {
		description = c.ActionTaken
	}
	return models.TimelineEntry{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		ElderID:     elderID,
		EventType:   EventOutcomeCaptured,
		Title:       "Task Outcome: " + t.String(),
		Description: description,
		Details: map[string]string{
			"taskId":           taskID,
			"templateType":     t.String(),
			"outcome":          c.ActionTaken,
			"notes":            c.Notes,
			"followUpRequired": strconv.FormatBool(c.FollowUpRequired),
		},
		CaregiverID: caregiverID,
		CreatedAt:   now,
	}
}
