package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// JobKindFollowUpCheckIn reminds assignees of follow-up tasks that are still open.
const JobKindFollowUpCheckIn = "followup_checkin"

type checkInPayload struct {
	TaskIDs []string `json:"task_ids"`
}

// handleFollowUpCheckIn sends a reminder for every follow-up task that is still active and assigned.
// Finished or unassigned tasks are skipped.
func (s *Server) handleFollowUpCheckIn(ctx context.Context, payload string) error {
	var p checkInPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("invalid check-in payload: %w", err)
	}
	for _, id := range p.TaskIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := s.st.GetTask(id)
		if err != nil {
			return fmt.Errorf("failed to load task %s: %w", id, err)
		}
		if task == nil || !task.Status.IsActive() || task.AssignedTo == "" {
			continue
		}
		member, err := s.st.GetMember(task.AssignedTo)
		if err != nil {
			return fmt.Errorf("failed to load member %s: %w", task.AssignedTo, err)
		}
		if member == nil {
			slog.Warn("Server.handleFollowUpCheckIn: assignee no longer exists", "taskID", id, "memberID", task.AssignedTo)
			continue
		}
		if _, err := s.dispatcher.NotifyCheckIn(*member, *task); err != nil {
			return fmt.Errorf("failed to queue check-in for task %s: %w", id, err)
		}
		slog.Debug("Follow-up check-in queued", "taskID", id, "memberID", member.ID)
	}
	return nil
}
