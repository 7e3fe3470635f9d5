package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/BTreeMap/CareCircle/internal/assign"
	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/store"
	"github.com/BTreeMap/CareCircle/internal/util"
)

// EventTaskAssigned is the timeline event type written when an alert produces an assigned task.
const EventTaskAssigned = "task_assigned"

// alertResult is returned by POST /alerts.
type alertResult struct {
	Alert          models.Alert          `json:"alert"`
	Task           models.CareTask       `json:"task"`
	Assignee       *models.FamilyMember  `json:"assignee,omitempty"`
	Recommendation assign.Recommendation `json:"recommendation"`
	Ranked         []assign.Ranked       `json:"ranked"`
}

// scoreRequest is the payload for POST /assignments/score.
type scoreRequest struct {
	FamilyID       string         `json:"family_id"`
	Description    string         `json:"description"`
	RequiredSkills []string       `json:"required_skills"`
	Urgency        models.Urgency `json:"urgency"`
	ElderZip       string         `json:"elder_zip"`
}

func familyIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	familyID := strings.TrimSpace(r.URL.Query().Get("familyId"))
	if familyID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("familyId query parameter is required"))
		return "", false
	}
	return familyID, true
}

// membersHandler serves POST /members and GET /members?familyId=.
func (s *Server) membersHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.membersHandler invoked", "method", r.Method)
	switch r.Method {
	case http.MethodGet:
		familyID, ok := familyIDParam(w, r)
		if !ok {
			return
		}
		members, err := s.st.ListMembers(familyID)
		if err != nil {
			slog.Error("Server.membersHandler: list failed", "error", err, "familyID", familyID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list members"))
			return
		}
		if members == nil {
			members = []models.FamilyMember{}
		}
		writeJSONResponse(w, http.StatusOK, models.Success(members))
	case http.MethodPost:
		s.addMember(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req models.MemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.addMember: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	phone, err := s.msgService.ValidateAndCanonicalizeRecipient(req.Phone)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	member := models.FamilyMember{
		ID:                util.NewMemberID(),
		FamilyID:          req.FamilyID,
		Name:              strings.TrimSpace(req.Name),
		Phone:             phone,
		ZipCode:           strings.TrimSpace(req.ZipCode),
		Skills:            req.Skills,
		Availability:      req.Availability,
		EmergencyPriority: req.EmergencyPriority,
		CreatedAt:         s.now(),
	}
	if member.Skills == nil {
		member.Skills = []string{}
	}
	if err := s.st.AddMember(member); err != nil {
		slog.Error("Server.addMember: store failed", "error", err, "familyID", req.FamilyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to add member"))
		return
	}
	slog.Info("Family member added", "memberID", member.ID, "familyID", member.FamilyID)
	writeJSONResponse(w, http.StatusCreated, models.Success(member))
}

// alertsHandler serves POST /alerts: it suppresses retries and near-duplicates, stores the alert,
// assigns a caregiver and notifies them.
func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.alertsHandler invoked", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req models.AlertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.alertsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	// Upstream retries carry the same alert ID.
	dedupKey := ""
	if req.AlertID != "" && s.dedup != nil {
		dedupKey = "alert:" + req.AlertID
		fresh, err := s.dedup.RecordInbound(dedupKey, req.FamilyID)
		if err != nil {
			slog.Error("Server.alertsHandler: dedup record failed", "error", err, "alertID", req.AlertID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to record alert"))
			return
		}
		if !fresh {
			slog.Info("Alert redelivery suppressed", "alertID", req.AlertID, "familyID", req.FamilyID)
			writeJSONResponse(w, http.StatusOK, models.Suppressed("Alert already received"))
			return
		}
	}

	res, status, msg := s.ingestAlert(r, req)
	if dedupKey != "" {
		if status >= 400 {
			if err := s.dedup.ForgetInbound(dedupKey); err != nil {
				slog.Warn("Server.alertsHandler: failed to forget inbound key", "error", err, "key", dedupKey)
			}
		} else if err := s.dedup.MarkProcessed(dedupKey); err != nil {
			slog.Warn("Server.alertsHandler: failed to mark inbound key processed", "error", err, "key", dedupKey)
		}
	}
	switch {
	case status >= 400:
		writeJSONResponse(w, status, models.Error(msg))
	case res == nil:
		writeJSONResponse(w, status, models.Suppressed(msg))
	default:
		writeJSONResponse(w, status, models.Success(res))
	}
}

// ingestAlert runs under the family lock. A nil result with a 2xx status means the alert was
// suppressed as a duplicate.
func (s *Server) ingestAlert(r *http.Request, req models.AlertRequest) (*alertResult, int, string) {
	unlock := s.locks.Lock("family:" + req.FamilyID)
	defer unlock()

	now := s.now()
	recent, err := s.st.ListAlertsSince(req.FamilyID, now.Add(-assign.DuplicateWindow))
	if err != nil {
		slog.Error("Server.ingestAlert: recent alert lookup failed", "error", err, "familyID", req.FamilyID)
		return nil, http.StatusInternalServerError, "Failed to check recent alerts"
	}
	if assign.IsDuplicateAlert(recent, req.AlertType, req.Urgency, now) {
		slog.Info("Duplicate alert suppressed", "familyID", req.FamilyID, "alertType", req.AlertType, "urgency", req.Urgency)
		return nil, http.StatusOK, "Duplicate alert suppressed"
	}

	alert := models.Alert{
		ID:        req.AlertID,
		FamilyID:  req.FamilyID,
		AlertType: req.AlertType,
		Urgency:   req.Urgency,
		Title:     assign.AlertTitle(req.AlertType),
		Summary:   req.Summary,
		CreatedAt: now,
	}
	if alert.ID == "" {
		alert.ID = util.NewAlertID()
	}
	if err := s.st.AddAlert(alert); err != nil {
		slog.Error("Server.ingestAlert: store failed", "error", err, "alertID", alert.ID)
		return nil, http.StatusInternalServerError, "Failed to store alert"
	}
	// A stored alert without its task would suppress the client's retry as a duplicate.
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.st.DeleteAlert(alert.ID); err != nil {
			slog.Error("Server.ingestAlert: alert rollback failed", "error", err, "alertID", alert.ID)
		}
	}()

	skills := req.RequiredSkills
	if len(skills) == 0 {
		skills = assign.RequiredSkillsFor(req.AlertType)
	}
	task := assign.Task{Description: alert.Summary, RequiredSkills: skills, Urgency: req.Urgency, ElderZip: req.ElderZip}
	if task.Description == "" {
		task.Description = alert.Title
	}
	assignment, err := s.assigner.Assign(r.Context(), req.FamilyID, task)
	if err != nil {
		slog.Error("Server.ingestAlert: assignment failed", "error", err, "alertID", alert.ID)
		return nil, http.StatusInternalServerError, "Failed to assign caregiver"
	}

	careTask := models.CareTask{
		ID:          util.NewTaskID(),
		FamilyID:    req.FamilyID,
		AlertID:     alert.ID,
		Title:       alert.Title,
		Description: alert.Summary,
		Priority:    req.Urgency,
		Status:      models.TaskStatusPending,
		Checklist:   []models.ChecklistItem{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if assignment.Member != nil {
		careTask.AssignedTo = assignment.Member.ID
	}
	if err := s.st.AddTask(careTask); err != nil {
		slog.Error("Server.ingestAlert: task store failed", "error", err, "alertID", alert.ID)
		return nil, http.StatusInternalServerError, "Failed to store task"
	}

	if assignment.Member != nil {
		if _, err := s.dispatcher.NotifyAssignment(*assignment.Member, careTask, assignment.Recommendation.Message); err != nil {
			slog.Warn("Server.ingestAlert: assignment notification failed", "error", err, "memberID", assignment.Member.ID)
		}
		entry := models.TimelineEntry{
			ID:          uuid.NewString(),
			FamilyID:    req.FamilyID,
			EventType:   EventTaskAssigned,
			Title:       "Task assigned: " + careTask.Title,
			Description: assignment.Recommendation.Explanation,
			Details: map[string]string{
				"alertId":  alert.ID,
				"taskId":   careTask.ID,
				"memberId": assignment.Member.ID,
			},
			CaregiverID: assignment.Member.ID,
			CreatedAt:   now,
		}
		if err := s.st.AddTimelineEntry(entry); err != nil {
			slog.Warn("Server.ingestAlert: timeline write failed", "error", err, "taskID", careTask.ID)
		}
	}
	committed = true
	slog.Info("Alert ingested", "alertID", alert.ID, "familyID", req.FamilyID, "taskID", careTask.ID, "assignedTo", careTask.AssignedTo)
	return &alertResult{
		Alert:          alert,
		Task:           careTask,
		Assignee:       assignment.Member,
		Recommendation: assignment.Recommendation,
		Ranked:         assignment.Ranked,
	}, http.StatusCreated, ""
}

// scoreHandler serves POST /assignments/score. It ranks candidates without assigning anything.
func (s *Server) scoreHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req scoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.scoreHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	switch {
	case strings.TrimSpace(req.FamilyID) == "":
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyFamilyID.Error()))
		return
	case !req.Urgency.Valid():
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingUrgency.Error()))
		return
	case strings.TrimSpace(req.ElderZip) == "":
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingElderZip.Error()))
		return
	}
	task := assign.Task{Description: req.Description, RequiredSkills: req.RequiredSkills, Urgency: req.Urgency, ElderZip: req.ElderZip}
	ranked, _, err := s.assigner.Rank(req.FamilyID, task)
	if err != nil {
		slog.Error("Server.scoreHandler: ranking failed", "error", err, "familyID", req.FamilyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to score candidates"))
		return
	}
	if ranked == nil {
		ranked = []assign.Ranked{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ranked))
}

// listTasksHandler serves GET /tasks?familyId=.
func (s *Server) listTasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	familyID, ok := familyIDParam(w, r)
	if !ok {
		return
	}
	tasks, err := s.st.ListTasks(familyID)
	if err != nil {
		slog.Error("Server.listTasksHandler: list failed", "error", err, "familyID", familyID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list tasks"))
		return
	}
	if tasks == nil {
		tasks = []models.CareTask{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tasks))
}

// taskRouter dispatches /tasks/{id}, /tasks/{id}/status and /tasks/{id}/outcome.
func (s *Server) taskRouter(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r, "/tasks")
	switch {
	case len(segs) == 0:
		s.listTasksHandler(w, r)
	case len(segs) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.getTaskHandler(w, segs[0])
	case len(segs) == 2 && segs[1] == "status":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.taskStatusHandler(w, r, segs[0])
	case len(segs) == 2 && segs[1] == "outcome":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.captureOutcomeHandler(w, r, segs[0])
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown task endpoint"))
	}
}

func (s *Server) getTaskHandler(w http.ResponseWriter, taskID string) {
	task, err := s.st.GetTask(taskID)
	if err != nil {
		slog.Error("Server.getTaskHandler: lookup failed", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load task"))
		return
	}
	if task == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(task))
}

func (s *Server) taskStatusHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	var req models.TaskStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.taskStatusHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	err := s.st.UpdateTaskStatus(taskID, req.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("Task not found"))
		return
	case err != nil:
		slog.Error("Server.taskStatusHandler: update failed", "error", err, "taskID", taskID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update task"))
		return
	}
	slog.Info("Task status updated", "taskID", taskID, "status", req.Status)
	writeJSONResponse(w, http.StatusOK, models.Recorded())
}
