// Package models defines the core data structures for CareCircle.
//
// It includes the care-coordination records (members, alerts, tasks, outcomes, timeline entries)
// and the API envelope types shared across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxSummaryLength defines the maximum allowed length for an alert summary
	MaxSummaryLength = 4096
	// MaxNotesLength defines the maximum allowed length for outcome notes
	MaxNotesLength = 8192
	// MaxSkillsCount defines the maximum number of skills a member may declare
	MaxSkillsCount = 32
)

// Error variables for better error handling and testability
var (
	ErrEmptyFamilyID      = errors.New("family_id is required")
	ErrEmptyMemberName    = errors.New("name is required")
	ErrEmptyPhone         = errors.New("phone is required")
	ErrTooManySkills      = errors.New("too many skills")
	ErrEmptyAlertType     = errors.New("alert_type is required")
	ErrSummaryTooLong     = errors.New("summary exceeds maximum length")
	ErrNotesTooLong       = errors.New("notes exceed maximum length")
	ErrEmptyAlertID       = errors.New("alert_id is required")
	ErrEmptyOutcome       = errors.New("outcome is required")
	ErrInvalidTaskStatus  = errors.New("invalid task status")
	ErrMissingUrgency     = errors.New("urgency is required")
	ErrMissingScenario    = errors.New("scenario is required")
	ErrMissingTemplate    = errors.New("template_type is required")
	ErrEmptyResponses     = errors.New("responses cannot be empty")
	ErrEmptyQuestionID    = errors.New("question id cannot be empty")
	ErrUnsupportedValue   = errors.New("unsupported response value")
	ErrInvalidEnumerated  = errors.New("invalid enumerated value")
	ErrNegativeEmergency  = errors.New("emergency_priority cannot be negative")
	ErrMissingElderZip    = errors.New("elder_zip is required")
)

// TaskStatus represents the lifecycle state of a care task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsValidTaskStatus checks if the given task status is supported.
func IsValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsActive reports whether a task still counts toward its assignee's workload.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// FamilyMember is a caregiver in a family's care circle.
type FamilyMember struct {
	ID           string       `json:"id"`
	FamilyID     string       `json:"family_id"`
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	ZipCode      string       `json:"zip_code"`
	Skills       []string     `json:"skills"`
	Availability Availability `json:"availability"`
	// EmergencyPriority orders emergency notifications; 0 means not an emergency contact.
	EmergencyPriority int       `json:"emergency_priority"`
	CreatedAt         time.Time `json:"created_at"`
}

// MemberRequest is the payload for adding a family member.
type MemberRequest struct {
	FamilyID          string       `json:"family_id"`
	Name              string       `json:"name"`
	Phone             string       `json:"phone"`
	ZipCode           string       `json:"zip_code"`
	Skills            []string     `json:"skills"`
	Availability      Availability `json:"availability"`
	EmergencyPriority int          `json:"emergency_priority"`
}

// Validate validates a MemberRequest.
func (r *MemberRequest) Validate() error {
	if strings.TrimSpace(r.FamilyID) == "" {
		return ErrEmptyFamilyID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyMemberName
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrEmptyPhone
	}
	if len(r.Skills) > MaxSkillsCount {
		return ErrTooManySkills
	}
	if r.EmergencyPriority < 0 {
		return ErrNegativeEmergency
	}
	return nil
}

// Alert is a care concern raised for a family, typically by an upstream analysis pipeline.
type Alert struct {
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	AlertType string    `json:"alert_type"`
	Urgency   Urgency   `json:"urgency"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertRequest is the payload for raising an alert.
type AlertRequest struct {
	AlertID        string   `json:"alert_id,omitempty"`
	FamilyID       string   `json:"family_id"`
	AlertType      string   `json:"alert_type"`
	Urgency        Urgency  `json:"urgency"`
	Summary        string   `json:"summary"`
	ElderZip       string   `json:"elder_zip"`
	RequiredSkills []string `json:"required_skills,omitempty"`
}

// Validate validates an AlertRequest.
func (r *AlertRequest) Validate() error {
	if strings.TrimSpace(r.FamilyID) == "" {
		return ErrEmptyFamilyID
	}
	if strings.TrimSpace(r.AlertType) == "" {
		return ErrEmptyAlertType
	}
	if !r.Urgency.Valid() {
		return ErrMissingUrgency
	}
	if len(r.Summary) > MaxSummaryLength {
		return ErrSummaryTooLong
	}
	if strings.TrimSpace(r.ElderZip) == "" {
		return ErrMissingElderZip
	}
	return nil
}

// CareTask is a persisted unit of care work, optionally assigned to a member.
type CareTask struct {
	ID               string          `json:"id"`
	FamilyID         string          `json:"family_id"`
	AlertID          string          `json:"alert_id,omitempty"`
	ParentTaskID     string          `json:"parent_task_id,omitempty"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Priority         Urgency         `json:"priority"`
	Status           TaskStatus      `json:"status"`
	AssignedTo       string          `json:"assigned_to,omitempty"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	Checklist        []ChecklistItem `json:"checklist"`
	DueAt            *time.Time      `json:"due_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TaskFromSpec materializes a TaskSpec into a CareTask created at now.
func TaskFromSpec(id, familyID string, spec TaskSpec, now time.Time) CareTask {
	task := CareTask{
		ID:               id,
		FamilyID:         familyID,
		Title:            spec.Title,
		Description:      spec.Description,
		Priority:         spec.Priority,
		Status:           TaskStatusPending,
		EstimatedMinutes: spec.EstimatedMinutes,
		Checklist:        append([]ChecklistItem(nil), spec.Checklist...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if spec.DueInHours > 0 {
		due := now.Add(time.Duration(spec.DueInHours * float64(time.Hour)))
		task.DueAt = &due
	}
	return task
}

// TaskStatusRequest is the payload for updating a task's status.
type TaskStatusRequest struct {
	Status TaskStatus `json:"status"`
}

// Validate validates a TaskStatusRequest.
func (r *TaskStatusRequest) Validate() error {
	if !IsValidTaskStatus(r.Status) {
		return ErrInvalidTaskStatus
	}
	return nil
}

// Evidence is a supporting artifact attached to a captured outcome.
type Evidence struct {
	Type        string    `json:"type"`
	Data        string    `json:"data"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description,omitempty"`
}

// OutcomeRecord is the persisted result of capturing a task outcome.
type OutcomeRecord struct {
	ID                      string              `json:"id"`
	TaskID                  string              `json:"task_id"`
	FamilyID                string              `json:"family_id"`
	TemplateType            OutcomeTemplateType `json:"template_type"`
	ActionTaken             string              `json:"action_taken"`
	EmergencyServicesCalled bool                `json:"emergency_services_called"`
	Notes                   string              `json:"notes"`
	Evidence                []Evidence          `json:"evidence"`
	FollowUpRequired        bool                `json:"follow_up_required"`
	NextCheckIn             *time.Time          `json:"next_check_in,omitempty"`
	CreatedAt               time.Time           `json:"created_at"`
}

// OutcomeRequest is the payload for capturing a task outcome.
type OutcomeRequest struct {
	TemplateType OutcomeTemplateType `json:"template_type"`
	Outcome      string              `json:"outcome"`
	Notes        string              `json:"notes"`
	Evidence     []Evidence          `json:"evidence,omitempty"`
	ElderID      string              `json:"elder_id,omitempty"`
	CaregiverID  string              `json:"caregiver_id,omitempty"`
}

// Validate validates an OutcomeRequest.
func (r *OutcomeRequest) Validate() error {
	if !r.TemplateType.Valid() {
		return ErrMissingTemplate
	}
	if strings.TrimSpace(r.Outcome) == "" {
		return ErrEmptyOutcome
	}
	if len(r.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	return nil
}

// TimelineEntry is an immutable record in a family's care timeline.
type TimelineEntry struct {
	ID          string            `json:"id"`
	FamilyID    string            `json:"family_id"`
	ElderID     string            `json:"elder_id,omitempty"`
	EventType   string            `json:"event_type"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	CaregiverID string            `json:"caregiver_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TriageSessionRecord is the persisted snapshot of a triage session.
type TriageSessionRecord struct {
	AlertID     string    `json:"alert_id"`
	FamilyID    string    `json:"family_id"`
	Scenario    Scenario  `json:"scenario"`
	CurrentStep int       `json:"current_step"`
	Status      string    `json:"status"`
	Responses   Responses `json:"responses"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TriageSessionRequest is the payload for opening a triage session.
type TriageSessionRequest struct {
	AlertID  string   `json:"alert_id"`
	FamilyID string   `json:"family_id"`
	Scenario Scenario `json:"scenario"`
}

// Validate validates a TriageSessionRequest.
func (r *TriageSessionRequest) Validate() error {
	if strings.TrimSpace(r.AlertID) == "" {
		return ErrEmptyAlertID
	}
	if strings.TrimSpace(r.FamilyID) == "" {
		return ErrEmptyFamilyID
	}
	if !r.Scenario.Valid() {
		return ErrMissingScenario
	}
	return nil
}

// TriageResponsesRequest is the payload for recording triage answers.
type TriageResponsesRequest struct {
	Responses Responses `json:"responses"`
}

// Validate validates a TriageResponsesRequest.
func (r *TriageResponsesRequest) Validate() error {
	if len(r.Responses) == 0 {
		return ErrEmptyResponses
	}
	for id := range r.Responses {
		if strings.TrimSpace(id) == "" {
			return ErrEmptyQuestionID
		}
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusRecorded indicates data was successfully recorded via API.
	APIStatusRecorded APIStatus = "recorded"
	// APIStatusSuppressed indicates the request was accepted but intentionally not acted upon.
	APIStatusSuppressed APIStatus = "suppressed"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorWithDetails creates an error API response carrying a result payload, such as a list of problems.
func ErrorWithDetails(message string, details interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		WithResult(details).
		Build()
}

// Recorded creates a recorded API response.
func Recorded() APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusRecorded).
		Build()
}

// Suppressed creates a suppressed API response with a message.
func Suppressed(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusSuppressed).
		WithMessage(message).
		Build()
}
