package triage

import (
	"fmt"

	"github.com/BTreeMap/CareCircle/internal/models"
)

var emergencyScripts = map[models.Scenario]string{
	models.ScenarioFall:      "This is a medical emergency. An elderly person has fallen and may have serious injuries. Please send an ambulance immediately.",
	models.ScenarioInjury:    "This is a medical emergency. An elderly person has sustained a serious injury. Please send an ambulance immediately.",
	models.ScenarioChestPain: "This is a medical emergency. An elderly person is experiencing severe chest pain. This may be a heart attack. Please send an ambulance immediately.",
	models.ScenarioConfusion: "This is a medical emergency. An elderly person is experiencing severe confusion or altered mental state. Please send an ambulance immediately.",
}

const genericEmergencyScript = "This is a medical emergency. An elderly person needs immediate medical assistance. Please send an ambulance immediately."

// EmergencyPlan is the fixed escalation plan: call 911 now and follow up on the response.
func EmergencyPlan(scenario models.Scenario) models.ActionPlan {
	script, ok := emergencyScripts[scenario]
	if !ok {
		script = genericEmergencyScript
	}
	return models.ActionPlan{
		Recommendation:     models.RecommendCall911,
		CallScript:         script,
		UrgencyLevel:       10,
		EstimatedTimeframe: "Immediate",
		FollowUpTasks: []models.TaskSpec{{
			Title:            "Follow up on emergency response",
			Description:      "Contact family members and track emergency services response",
			Priority:         models.UrgencyUrgent,
			EstimatedMinutes: 15,
			DueInHours:       1,
			Checklist: required(
				"Confirm ambulance arrival",
				"Notify primary family contacts",
				"Gather medical information for hospital",
			),
		}},
	}
}

// ScenarioPlan grades a non-emergency session by the scenario's thresholds on its responses.
func ScenarioPlan(scenario models.Scenario, r models.Responses) (models.ActionPlan, error) {
	switch scenario {
	case models.ScenarioFall:
		return fallPlan(r), nil
	case models.ScenarioInjury:
		return injuryPlan(r), nil
	case models.ScenarioChestPain:
		return chestPainPlan(), nil
	case models.ScenarioConfusion:
		return confusionPlan(r), nil
	}
	return models.ActionPlan{}, fmt.Errorf("%w: %s", ErrInvalidScenario, scenario)
}

func fallPlan(r models.Responses) models.ActionPlan {
	if atLeast(r, "pain_level_initial", 6) || r["mobility_status"].IsNo() {
		return models.ActionPlan{
			Recommendation:     models.RecommendUrgentCare,
			CallScript:         "The elder has fallen and is experiencing significant pain or mobility issues. Please arrange for urgent medical evaluation.",
			UrgencyLevel:       7,
			EstimatedTimeframe: "Within 2 hours",
			FollowUpTasks: []models.TaskSpec{{
				Title:            "Arrange urgent care visit",
				Description:      "Schedule and transport to urgent care facility",
				Priority:         models.UrgencyHigh,
				EstimatedMinutes: 60,
				DueInHours:       2,
				Checklist: required(
					"Call urgent care to confirm availability",
					"Arrange transportation",
					"Gather insurance and medication information",
				),
			}},
		}
	}
	return models.ActionPlan{
		Recommendation:     models.RecommendMonitor,
		CallScript:         "The elder appears stable after the fall. Continue monitoring for any changes in condition.",
		UrgencyLevel:       4,
		EstimatedTimeframe: "Monitor for 24 hours",
		FollowUpTasks: []models.TaskSpec{{
			Title:            "Monitor post-fall condition",
			Description:      "Check on elder regularly for next 24 hours",
			Priority:         models.UrgencyMedium,
			EstimatedMinutes: 10,
			DueInHours:       4,
			Checklist: required(
				"Check pain level every 4 hours",
				"Monitor mobility and balance",
				"Watch for signs of delayed injury",
			),
		}},
	}
}

func injuryPlan(r models.Responses) models.ActionPlan {
	if atLeast(r, "pain_scale", 7) || r["bleeding_severity"].String() == "Moderate bleeding" {
		return models.ActionPlan{
			Recommendation:     models.RecommendUrgentCare,
			CallScript:         "The elder has sustained an injury requiring medical attention. Please arrange for urgent care evaluation.",
			UrgencyLevel:       6,
			EstimatedTimeframe: "Within 4 hours",
		}
	}
	return models.ActionPlan{
		Recommendation:     models.RecommendMonitor,
		CallScript:         "The injury appears minor. Continue monitoring and provide basic first aid as needed.",
		UrgencyLevel:       3,
		EstimatedTimeframe: "Monitor closely",
	}
}

// Chest pain is never downgraded to monitoring.
func chestPainPlan() models.ActionPlan {
	return models.ActionPlan{
		Recommendation:     models.RecommendUrgentCare,
		CallScript:         "The elder is experiencing chest pain. Given the potential cardiac implications, please arrange for immediate medical evaluation.",
		UrgencyLevel:       8,
		EstimatedTimeframe: "Within 1 hour",
		FollowUpTasks: []models.TaskSpec{{
			Title:            "Urgent cardiac evaluation",
			Description:      "Ensure immediate medical assessment for chest pain",
			Priority:         models.UrgencyUrgent,
			EstimatedMinutes: 30,
			DueInHours:       1,
			Checklist: required(
				"Contact primary care physician",
				"Prepare cardiac medication list",
				"Monitor vital signs if possible",
			),
		}},
	}
}

func confusionPlan(r models.Responses) models.ActionPlan {
	if r["confusion_onset"].String() == "Suddenly (minutes)" || r["medication_changes"].IsYes() {
		return models.ActionPlan{
			Recommendation:     models.RecommendUrgentCare,
			CallScript:         "The elder is experiencing confusion that may require immediate medical evaluation to rule out serious causes.",
			UrgencyLevel:       7,
			EstimatedTimeframe: "Within 2 hours",
		}
	}
	return models.ActionPlan{
		Recommendation:     models.RecommendNurseLine,
		CallScript:         "The elder is experiencing confusion. Please contact the nurse line or primary care provider for guidance.",
		UrgencyLevel:       5,
		EstimatedTimeframe: "Within 4 hours",
	}
}

func atLeast(r models.Responses, id string, threshold float64) bool {
	f, ok := r[id].Float()
	return ok && f >= threshold
}

func required(items ...string) []models.ChecklistItem {
	out := make([]models.ChecklistItem, len(items))
	for i, text := range items {
		out[i] = models.ChecklistItem{Text: text, Required: true}
	}
	return out
}
