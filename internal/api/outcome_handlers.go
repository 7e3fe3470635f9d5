package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/outcome"
	"github.com/BTreeMap/CareCircle/internal/util"
)

// outcomeResult is returned by POST /tasks/{id}/outcome.
type outcomeResult struct {
	Outcome   models.OutcomeRecord `json:"outcome"`
	FollowUps []models.CareTask    `json:"follow_up_tasks"`
	Warnings  []string             `json:"warnings,omitempty"`
	Timeline  models.TimelineEntry `json:"timeline_entry"`
}

// outcomeTemplatesHandler serves GET /outcomes/templates.
func (s *Server) outcomeTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(outcome.Templates()))
}

// captureOutcomeHandler records a task's outcome, creates its follow-up tasks, closes the task and
// schedules a check-in with the follow-up assignee.
func (s *Server) captureOutcomeHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	var req models.OutcomeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.captureOutcomeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	unlock := s.locks.Lock("task:" + taskID)
	defer unlock()

	task, err := s.st.GetTask(taskID)
	if err != nil {
		slog.Error("Server.captureOutcomeHandler: task lookup failed", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	}
	if !task.Status.IsActive() {
		slog.Warn("Server.captureOutcomeHandler: task already closed", "taskID", taskID, "status", task.Status)
		writeJSONResponse(w, http.StatusConflict, models.Error("Task is already "+string(task.Status)))
		return
	}

	captured, err := outcome.CaptureOutcome(req.TemplateType, req.Outcome, req.Notes, req.Evidence)
	if err != nil {
		var verr *outcome.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithDetails("Invalid outcome", verr.Problems))
		case errors.Is(err, outcome.ErrUnknownTemplate):
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.captureOutcomeHandler: capture failed", "error", err, "taskID", taskID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to capture outcome"))
		}
		return
	}
	_, warnings := outcome.ValidateCompleteness(req.TemplateType, req.Outcome, req.Notes)

	now := s.now()
	rec := captured.Record(uuid.NewString(), task.ID, task.FamilyID, req.TemplateType, now)
	if err := s.st.AddOutcome(rec); err != nil {
		slog.Error("Server.captureOutcomeHandler: outcome store failed", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store outcome"))
		return
	}

	followUps := make([]models.CareTask, 0, len(captured.FollowUps))
	for _, spec := range captured.FollowUps {
		ft := models.TaskFromSpec(util.NewTaskID(), task.FamilyID, spec, now)
		ft.ParentTaskID = task.ID
		ft.AlertID = task.AlertID
		ft.AssignedTo = task.AssignedTo
		if err := s.st.AddTask(ft); err != nil {
			slog.Error("Server.captureOutcomeHandler: follow-up store failed", "error", err, "taskID", taskID, "title", ft.Title)
			continue
		}
		followUps = append(followUps, ft)
	}

	if err := s.st.UpdateTaskStatus(task.ID, models.TaskStatusCompleted); err != nil {
		slog.Warn("Server.captureOutcomeHandler: failed to complete task", "error", err, "taskID", taskID)
	}

	caregiverID := req.CaregiverID
	if caregiverID == "" {
		caregiverID = task.AssignedTo
	}
	entry := outcome.NewTimelineEntry(task.FamilyID, req.ElderID, task.ID, caregiverID, req.TemplateType, captured, now)
	if err := s.st.AddTimelineEntry(entry); err != nil {
		slog.Warn("Server.captureOutcomeHandler: timeline write failed", "error", err, "taskID", taskID)
	}

	if captured.NextCheckIn != nil && len(followUps) > 0 {
		s.scheduleCheckIn(task.ID, captured, followUps)
	}

	slog.Info("Task outcome captured", "taskID", task.ID, "templateType", req.TemplateType, "outcome", req.Outcome, "followUps", len(followUps))
	writeJSONResponse(w, http.StatusCreated, models.Success(outcomeResult{
		Outcome:   rec,
		FollowUps: followUps,
		Warnings:  warnings,
		Timeline:  entry,
	}))
}

func (s *Server) scheduleCheckIn(taskID string, captured outcome.Captured, followUps []models.CareTask) {
	if s.jobs == nil {
		slog.Debug("Server.scheduleCheckIn: no job queue, check-in not scheduled", "taskID", taskID)
		return
	}
	p := checkInPayload{TaskIDs: make([]string, len(followUps))}
	for i, t := range followUps {
		p.TaskIDs[i] = t.ID
	}
	raw, err := json.Marshal(p)
	if err != nil {
		slog.Error("Server.scheduleCheckIn: marshal failed", "error", err, "taskID", taskID)
		return
	}
	id, err := s.jobs.EnqueueJob(JobKindFollowUpCheckIn, *captured.NextCheckIn, string(raw), "checkin:"+taskID)
	if err != nil {
		slog.Error("Server.scheduleCheckIn: enqueue failed", "error", err, "taskID", taskID)
		return
	}
	slog.Debug("Follow-up check-in scheduled", "jobID", id, "taskID", taskID, "runAt", *captured.NextCheckIn)
}

// timelineHandler serves GET /timeline?familyId=.
func (s *Server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	familyID, ok := familyIDParam(w, r)
	if !ok {
		return
	}
	entries, err := s.st.ListTimeline(familyID)
	if err != nil {
		slog.Error("Server.timelineHandler: list failed", "error", err, "familyID", familyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list timeline"))
		return
	}
	if entries == nil {
		entries = []models.TimelineEntry{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(entries))
}
