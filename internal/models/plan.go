package models

// ChecklistItem is one step of a task's checklist.
type ChecklistItem struct {
	Text     string `json:"text"`
	Required bool   `json:"required"`
}

// TaskSpec describes a task to be created; it is not yet persisted or assigned.
type TaskSpec struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Priority         Urgency         `json:"priority"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	Checklist        []ChecklistItem `json:"checklist"`
	DueInHours       float64         `json:"due_in_hours"`
}

// ActionPlan is the recommendation produced at the end of a triage session.
type ActionPlan struct {
	Recommendation     Recommendation `json:"recommendation"`
	CallScript         string         `json:"call_script"`
	UrgencyLevel       int            `json:"urgency_level"`
	EstimatedTimeframe string         `json:"estimated_timeframe"`
	FollowUpTasks      []TaskSpec     `json:"follow_up_tasks"`
}

// IsEmergency reports whether the plan calls for emergency services.
func (p ActionPlan) IsEmergency() bool {
	return p.Recommendation == RecommendCall911
}
