package assign

import (
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// DuplicateWindow is how far back IsDuplicateAlert looks for a matching alert.
const DuplicateWindow = 30 * time.Minute

// IsDuplicateAlert reports whether a new alert should be suppressed: an alert of the same type was
// raised within DuplicateWindow before now with an urgency at least as high.
func IsDuplicateAlert(recent []models.Alert, alertType string, urgency models.Urgency, now time.Time) bool {
	cutoff := now.Add(-DuplicateWindow)
	for _, a := range recent {
		if a.AlertType != alertType || a.CreatedAt.Before(cutoff) || a.CreatedAt.After(now) {
			continue
		}
		if a.Urgency.Rank() >= urgency.Rank() {
			slog.Debug("assign.IsDuplicateAlert: suppressing", "alertType", alertType, "existing", a.ID, "existingUrgency", a.Urgency, "urgency", urgency)
			return true
		}
	}
	return false
}

// RequiredSkillsFor maps an alert type to the skills its task needs.
func RequiredSkillsFor(alertType string) []string {
	t := strings.ToLower(alertType)
	switch {
	case strings.Contains(t, "memory"), strings.Contains(t, "medication"):
		return []string{"Medical/Healthcare"}
	case strings.Contains(t, "emotional"):
		return []string{"Emotional Support"}
	}
	return nil
}

var alertTitles = map[string]string{
	"healthConcern":     "Health Concern Detected",
	"memoryIssue":       "Memory/Cognitive Concern",
	"emotionalDistress": "Emotional Support Needed",
	"medicationConcern": "Medication Review Required",
	"urgentHelp":        "Urgent Attention Required",
	"behavioralChange":  "Behavioral Change Noticed",
}

// AlertTitle returns the human-readable title for an alert type.
func AlertTitle(alertType string) string {
	if t, ok := alertTitles[alertType]; ok {
		return t
	}
	return "Care Concern Detected"
}
