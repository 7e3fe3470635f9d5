package outcome

import "github.com/BTreeMap/CareCircle/internal/models"

var registry = map[models.OutcomeTemplateType]*Template{
	models.OutcomeMedication: {
		Type:        models.OutcomeMedication,
		Title:       "Medication Verification Outcome",
		Description: "Document the outcome of medication verification task",
		Options: []string{
			"All doses verified and taken",
			"Some doses missed",
			"Doses refused",
			"Unable to verify",
			"Medication not available",
		},
		Rules: []FollowUpRule{
			rule("Some doses missed", "Follow up on missed medication doses",
				"Contact elder to understand why doses were missed and reschedule",
				models.UrgencyHigh, 15, 4,
				item("Contact elder about missed doses", true),
				item("Understand reason for missing doses", true),
				item("Reschedule missed doses if appropriate", true),
				item("Document reason in notes", false),
			),
			rule("Doses refused", "Investigate medication refusal",
				"Understand why elder is refusing medication and escalate if needed",
				models.UrgencyHigh, 20, 2,
				item("Ask about side effects or concerns", true),
				item("Contact primary care physician if needed", true),
				item("Document refusal reason", true),
			),
			rule("Unable to verify", "Escalate medication verification issue",
				"Unable to verify medication status - escalate to primary caregiver",
				models.UrgencyUrgent, 10, 1,
				item("Contact primary caregiver", true),
				item("Provide context about verification issue", true),
			),
		},
		EvidenceTypes: []string{"photo", "notes", "timestamp"},
	},
	models.OutcomeSafety: {
		Type:        models.OutcomeSafety,
		Title:       "Safety Check Outcome",
		Description: "Document the outcome of safety check task",
		Options: []string{
			"All safety checks passed",
			"Minor safety issues found",
			"Major safety concerns identified",
			"Immediate intervention required",
		},
		Rules: []FollowUpRule{
			rule("Minor safety issues found", "Address minor safety issues",
				"Implement solutions for identified minor safety concerns",
				models.UrgencyMedium, 30, 24,
				item("Identify specific safety issues", true),
				item("Implement corrective measures", true),
				item("Verify improvements", true),
			),
			rule("Major safety concerns identified", "Address major safety concerns",
				"Urgent action needed to address major safety concerns",
				models.UrgencyUrgent, 60, 2,
				item("Document all safety concerns", true),
				item("Contact family members", true),
				item("Implement immediate safety measures", true),
				item("Consider professional assessment", true),
			),
			rule("Immediate intervention required", "Emergency safety intervention",
				"Immediate action required for critical safety issue",
				models.UrgencyUrgent, 15, 0.5,
				item("Ensure elder safety immediately", true),
				item("Contact emergency services if needed", true),
				item("Notify all family members", true),
			),
		},
		EvidenceTypes: []string{"photo", "video", "notes", "timestamp"},
	},
	models.OutcomeAppointment: {
		Type:        models.OutcomeAppointment,
		Title:       "Medical Appointment Outcome",
		Description: "Document the outcome of medical appointment",
		Options: []string{
			"Appointment completed successfully",
			"Appointment rescheduled",
			"Appointment cancelled",
			"Elder refused to attend",
			"Transportation issue",
		},
		Rules: []FollowUpRule{
			rule("Appointment completed successfully", "Document appointment results",
				"Collect and document results from completed appointment",
				models.UrgencyMedium, 20, 4,
				item("Collect appointment summary from elder", true),
				item("Document any new medications or instructions", true),
				item("Schedule any recommended follow-ups", true),
			),
			rule("Appointment rescheduled", "Confirm rescheduled appointment",
				"Confirm new appointment date and time with elder",
				models.UrgencyMedium, 10, 24,
				item("Confirm new appointment date/time", true),
				item("Update calendar", true),
				item("Arrange transportation if needed", true),
			),
			rule("Elder refused to attend", "Follow up on appointment refusal",
				"Understand why elder refused appointment and escalate if needed",
				models.UrgencyHigh, 20, 4,
				item("Understand reason for refusal", true),
				item("Contact physician if medically necessary", true),
				item("Document refusal and reason", true),
			),
		},
		EvidenceTypes: []string{"notes", "documents", "timestamp"},
	},
	models.OutcomeGeneral: {
		Type:        models.OutcomeGeneral,
		Title:       "General Task Outcome",
		Description: "Document the outcome of a general care task",
		Options: []string{
			"Completed successfully",
			"Partially completed",
			"Not completed",
			"Escalated",
		},
		Rules: []FollowUpRule{
			rule("Partially completed", "Complete remaining task items",
				"Complete the remaining items from the original task",
				models.UrgencyMedium, 30, 24,
				item("Review what was not completed", true),
				item("Complete remaining items", true),
				item("Verify completion", true),
			),
			rule("Not completed", "Retry incomplete task",
				"Attempt to complete the task again",
				models.UrgencyHigh, 30, 12,
				item("Understand reason for non-completion", true),
				item("Address any barriers", true),
				item("Retry task completion", true),
			),
			rule("Escalated", "Handle escalated task",
				"Task has been escalated and requires attention",
				models.UrgencyUrgent, 20, 2,
				item("Review escalation reason", true),
				item("Determine appropriate action", true),
				item("Assign to appropriate person", true),
			),
		},
		EvidenceTypes: []string{"notes", "timestamp"},
	},
}

// Outcomes for which notes are expected even though they are optional.
var notesRecommended = map[string]bool{
	"Partially completed": true,
	"Not completed":       true,
	"Escalated":           true,
}

func rule(outcome, title, description string, priority models.Urgency, minutes int, dueInHours float64, checklist ...models.ChecklistItem) FollowUpRule {
	return FollowUpRule{
		Outcome: outcome,
		Task: models.TaskSpec{
			Title:            title,
			Description:      description,
			Priority:         priority,
			EstimatedMinutes: minutes,
			Checklist:        checklist,
			DueInHours:       dueInHours,
		},
		DueInHours: dueInHours,
	}
}

func item(text string, required bool) models.ChecklistItem {
	return models.ChecklistItem{Text: text, Required: required}
}
