package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/CareCircle/internal/models"
	"github.com/BTreeMap/CareCircle/internal/triage"
	"github.com/BTreeMap/CareCircle/internal/util"
)

// Timeline event types written by the triage handlers.
const (
	EventTriageCompleted = "triage_completed"
	EventTriageEmergency = "triage_emergency"
)

// sessionView is the API form of a triage session.
type sessionView struct {
	AlertID     string           `json:"alert_id"`
	FamilyID    string           `json:"family_id"`
	Scenario    models.Scenario  `json:"scenario"`
	Status      triage.Status    `json:"status"`
	CurrentStep int              `json:"current_step"`
	Step        *triage.StepView `json:"step,omitempty"`
	Responses   models.Responses `json:"responses"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func newSessionView(sess *triage.Session, familyID string) sessionView {
	v := sessionView{
		AlertID:     sess.AlertID(),
		FamilyID:    familyID,
		Scenario:    sess.Scenario(),
		Status:      sess.Status(),
		CurrentStep: sess.StepNumber(),
		Responses:   sess.Responses(),
		CreatedAt:   sess.CreatedAt(),
		UpdatedAt:   sess.UpdatedAt(),
	}
	steps := sess.Template().View().Steps
	if n := sess.StepNumber(); n >= 1 && n <= len(steps) {
		v.Step = &steps[n-1]
	}
	return v
}

// advanceResult is returned by POST /triage/sessions/{alertId}/advance.
type advanceResult struct {
	Session  sessionView        `json:"session"`
	Next     triage.NextStep    `json:"next_step"`
	Plan     *models.ActionPlan `json:"plan,omitempty"`
	Tasks    []models.CareTask  `json:"tasks,omitempty"`
	Notified int                `json:"notified"`
}

// triageTemplatesHandler serves GET /triage/templates and GET /triage/templates/{scenario}.
func (s *Server) triageTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.triageTemplatesHandler invoked", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	segs := pathSegments(r, "/triage/templates")
	switch len(segs) {
	case 0:
		writeJSONResponse(w, http.StatusOK, models.Success(triage.Scenarios()))
	case 1:
		scenario, err := models.ParseScenario(segs[0])
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		tmpl, err := triage.Lookup(scenario)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(tmpl.View()))
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown template endpoint"))
	}
}

// createSessionHandler serves POST /triage/sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createSessionHandler invoked", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req models.TriageSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	unlock := s.locks.Lock("session:" + req.AlertID)
	defer unlock()

	existing, err := s.st.GetTriageSession(req.AlertID)
	if err != nil {
		slog.Error("Server.createSessionHandler: lookup failed", "error", err, "alertID", req.AlertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load triage session"))
		return
	}
	if existing != nil {
		writeJSONResponse(w, http.StatusConflict, models.Error("Triage session already exists for this alert"))
		return
	}
	sess, err := triage.NewSession(req.AlertID, req.Scenario)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.SaveTriageSession(sess.Snapshot(req.FamilyID)); err != nil {
		slog.Error("Server.createSessionHandler: save failed", "error", err, "alertID", req.AlertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save triage session"))
		return
	}
	slog.Info("Triage session opened", "alertID", req.AlertID, "familyID", req.FamilyID, "scenario", req.Scenario)
	writeJSONResponse(w, http.StatusCreated, models.Success(newSessionView(sess, req.FamilyID)))
}

// sessionRouter dispatches /triage/sessions/{alertId}[/responses|/advance|/plan].
func (s *Server) sessionRouter(w http.ResponseWriter, r *http.Request) {
	segs := pathSegments(r, "/triage/sessions")
	if len(segs) == 0 {
		s.createSessionHandler(w, r)
		return
	}
	alertID := segs[0]
	action := ""
	if len(segs) == 2 {
		action = segs[1]
	} else if len(segs) > 2 {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown triage endpoint"))
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.getSessionHandler(w, alertID)
	case "responses":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.recordResponsesHandler(w, r, alertID)
	case "advance":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.advanceSessionHandler(w, r, alertID)
	case "plan":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.planHandler(w, alertID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown triage endpoint"))
	}
}

// loadSession restores a persisted session. It writes the error response itself and returns
// ok=false when the caller should stop.
func (s *Server) loadSession(w http.ResponseWriter, alertID string) (*triage.Session, string, bool) {
	rec, err := s.st.GetTriageSession(alertID)
	if err != nil {
		slog.Error("Server.loadSession: lookup failed", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load triage session"))
		return nil, "", false
	}
	if rec == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Triage session not found"))
		return nil, "", false
	}
	sess, err := triage.Restore(*rec)
	if err != nil {
		slog.Error("Server.loadSession: stored session is unusable", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Stored triage session is invalid"))
		return nil, "", false
	}
	return sess, rec.FamilyID, true
}

func (s *Server) getSessionHandler(w http.ResponseWriter, alertID string) {
	unlock := s.locks.Lock("session:" + alertID)
	defer unlock()
	sess, familyID, ok := s.loadSession(w, alertID)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(newSessionView(sess, familyID)))
}

func (s *Server) recordResponsesHandler(w http.ResponseWriter, r *http.Request, alertID string) {
	var req models.TriageResponsesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.recordResponsesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	unlock := s.locks.Lock("session:" + alertID)
	defer unlock()
	sess, familyID, ok := s.loadSession(w, alertID)
	if !ok {
		return
	}
	if sess.Status().IsTerminal() {
		writeJSONResponse(w, http.StatusConflict, models.Error(triage.ErrSessionClosed.Error()))
		return
	}
	for id, v := range req.Responses {
		sess.RecordResponse(id, v)
	}
	if err := s.st.SaveTriageSession(sess.Snapshot(familyID)); err != nil {
		slog.Error("Server.recordResponsesHandler: save failed", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save triage session"))
		return
	}
	slog.Debug("Server.recordResponsesHandler: responses recorded", "alertID", alertID, "count", len(req.Responses))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Responses recorded", newSessionView(sess, familyID)))
}

// advanceSessionHandler validates the current step and moves the session on. When the session
// closes, the action plan is produced, its follow-up tasks are created and the family notified.
func (s *Server) advanceSessionHandler(w http.ResponseWriter, r *http.Request, alertID string) {
	unlock := s.locks.Lock("session:" + alertID)
	defer unlock()
	sess, familyID, ok := s.loadSession(w, alertID)
	if !ok {
		return
	}
	if sess.Status().IsTerminal() {
		writeJSONResponse(w, http.StatusConflict, models.Error(triage.ErrSessionClosed.Error()))
		return
	}
	// A raised critical flag escalates even when other required answers are missing.
	if !sess.HasCriticalFlags() {
		if valid, missing := sess.ValidateCurrentStep(); !valid {
			writeJSONResponse(w, http.StatusBadRequest, models.ErrorWithDetails("Missing required responses", missing))
			return
		}
	}
	_, next, err := sess.Advance()
	switch {
	case errors.Is(err, triage.ErrSessionClosed):
		writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
		return
	case err != nil:
		slog.Error("Server.advanceSessionHandler: advance failed", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to advance triage session"))
		return
	}
	if err := s.st.SaveTriageSession(sess.Snapshot(familyID)); err != nil {
		slog.Error("Server.advanceSessionHandler: save failed", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save triage session"))
		return
	}

	result := advanceResult{Next: next}
	if next.IsTerminal() {
		plan, err := sess.GenerateActionPlan()
		if err != nil {
			slog.Error("Server.advanceSessionHandler: plan generation failed", "error", err, "alertID", alertID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to generate action plan"))
			return
		}
		result.Plan = &plan
		result.Tasks = s.createPlanTasks(familyID, alertID, plan)
		result.Notified = s.notifyPlan(familyID, alertID, sess.Scenario(), plan)
		s.recordTriageTimeline(familyID, alertID, sess.Scenario(), plan)
		slog.Info("Triage session closed", "alertID", alertID, "status", sess.Status(), "recommendation", plan.Recommendation)
	}
	result.Session = newSessionView(sess, familyID)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) createPlanTasks(familyID, alertID string, plan models.ActionPlan) []models.CareTask {
	now := s.now()
	var tasks []models.CareTask
	for _, spec := range plan.FollowUpTasks {
		task := models.TaskFromSpec(util.NewTaskID(), familyID, spec, now)
		task.AlertID = alertID
		if err := s.st.AddTask(task); err != nil {
			slog.Error("Server.createPlanTasks: failed to store task", "error", err, "alertID", alertID, "title", task.Title)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks
}

// notifyPlan escalates emergencies to the family's emergency contacts and sends every other plan
// to the whole family. It returns the number of members notified.
func (s *Server) notifyPlan(familyID, alertID string, scenario models.Scenario, plan models.ActionPlan) int {
	members, err := s.st.ListMembers(familyID)
	if err != nil {
		slog.Error("Server.notifyPlan: failed to list members", "error", err, "familyID", familyID)
		return 0
	}
	if plan.IsEmergency() {
		return len(s.dispatcher.EscalateEmergency(members, alertID, scenario, plan))
	}
	return s.dispatcher.NotifyActionPlan(members, alertID, scenario, plan)
}

func (s *Server) recordTriageTimeline(familyID, alertID string, scenario models.Scenario, plan models.ActionPlan) {
	eventType := EventTriageCompleted
	if plan.IsEmergency() {
		eventType = EventTriageEmergency
	}
	entry := models.TimelineEntry{
		ID:          uuid.NewString(),
		FamilyID:    familyID,
		EventType:   eventType,
		Title:       "Triage: " + scenario.String(),
		Description: plan.EstimatedTimeframe,
		Details: map[string]string{
			"alertId":        alertID,
			"recommendation": plan.Recommendation.String(),
		},
		CreatedAt: s.now(),
	}
	if err := s.st.AddTimelineEntry(entry); err != nil {
		slog.Error("Server.recordTriageTimeline: failed to store entry", "error", err, "alertID", alertID)
	}
}

func (s *Server) planHandler(w http.ResponseWriter, alertID string) {
	unlock := s.locks.Lock("session:" + alertID)
	defer unlock()
	sess, _, ok := s.loadSession(w, alertID)
	if !ok {
		return
	}
	plan, err := sess.GenerateActionPlan()
	if err != nil {
		slog.Error("Server.planHandler: plan generation failed", "error", err, "alertID", alertID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to generate action plan"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}
