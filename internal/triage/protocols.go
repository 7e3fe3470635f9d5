package triage

import (
	"github.com/BTreeMap/CareCircle/internal/condition"
	"github.com/BTreeMap/CareCircle/internal/models"
)

// Step titles shared by every protocol.
const (
	titleSafetyCheck = "Immediate Safety Check"
	titleAssessment  = "Rapid Assessment"
	titleActionPlan  = "Action Plan Generation"
	titleOutcome     = "Outcome Capture"
)

// registry is built once at init and never mutated.
var registry = map[models.Scenario]*Template{
	models.ScenarioFall:      fallProtocol(),
	models.ScenarioInjury:    injuryProtocol(),
	models.ScenarioChestPain: chestPainProtocol(),
	models.ScenarioConfusion: confusionProtocol(),
}

func fallProtocol() *Template {
	return &Template{
		Scenario: models.ScenarioFall,
		Steps: []Step{
			{
				Number: 1,
				Title:  titleSafetyCheck,
				Questions: []Question{
					yesNo("consciousness", "Is the elder conscious and breathing normally?").critical(),
					yesNo("severe_injury", "Is there severe bleeding, head injury, or inability to move?").critical(),
					scale("pain_level_initial", "On a scale of 1-10, how severe is the pain?"),
				},
				CriticalFlags: flags("consciousness_no", "severe_injury_yes", "pain_level_initial_8_plus"),
				Transitions: []Transition{
					when("consciousness_no OR severe_injury_yes OR pain_level_initial >= 8", Emergency),
					when("consciousness_yes AND severe_injury_no AND pain_level_initial < 8", GoTo(2)),
				},
			},
			{
				Number: 2,
				Title:  titleAssessment,
				Questions: []Question{
					choice("pain_location", "Where is the pain located?",
						"Head/Neck", "Back/Spine", "Hip/Pelvis", "Arm/Shoulder", "Leg/Knee", "Other"),
					yesNo("mobility_status", "Can the elder move without assistance?"),
					yesNo("current_medications", "Is the elder taking blood thinners or other medications?"),
					yesNo("head_injury_check", "Did the elder hit their head during the fall?").critical(),
					yesNo("confusion_check", "Is the elder confused or disoriented?").critical(),
				},
				CriticalFlags: flags("head_injury_check_yes", "confusion_check_yes"),
				Transitions: []Transition{
					when("head_injury_check_yes OR confusion_check_yes", Emergency),
					when("mobility_status_no", Emergency),
					when(condition.Keyword, GoTo(3)),
				},
			},
			{
				Number: 3,
				Title:  titleActionPlan,
				Questions: []Question{
					choice("action_preference", "Based on the assessment, what action would you prefer?",
						"Call 911", "Go to Urgent Care", "Call Nurse Line", "Monitor at Home"),
				},
				Transitions: []Transition{when(condition.Keyword, GoTo(4))},
			},
			{
				Number: 4,
				Title:  titleOutcome,
				Questions: []Question{
					text("action_taken", "What action was taken?"),
					yesNo("emergency_called", "Were emergency services called?"),
					text("outcome_notes", "Additional notes about the outcome:").optional(),
				},
				Transitions: []Transition{when(condition.Keyword, Complete)},
			},
		},
	}
}

func injuryProtocol() *Template {
	return &Template{
		Scenario: models.ScenarioInjury,
		Steps: []Step{
			{
				Number: 1,
				Title:  titleSafetyCheck,
				Questions: []Question{
					yesNo("consciousness", "Is the elder conscious and alert?").critical(),
					choice("bleeding_severity", "Is there active bleeding?",
						"No bleeding", "Minor bleeding", "Moderate bleeding", "Severe bleeding").critical(),
					yesNo("breathing_status", "Is breathing normal and unlabored?").critical(),
				},
				CriticalFlags: flags("consciousness_no", "bleeding_severity_severe", "breathing_status_no"),
				Transitions: []Transition{
					when("consciousness_no OR bleeding_severity_severe OR breathing_status_no", Emergency),
					when(condition.Keyword, GoTo(2)),
				},
			},
			{
				Number: 2,
				Title:  titleAssessment,
				Questions: []Question{
					choice("injury_location", "Where is the injury located?",
						"Head/Face", "Neck", "Chest", "Abdomen", "Arms", "Legs", "Back"),
					scale("pain_scale", "Pain level (0-10 scale):"),
					yesNo("mobility_affected", "Is mobility affected by the injury?"),
					yesNo("swelling_present", "Is there visible swelling or deformity?"),
				},
				CriticalFlags: flags("pain_scale_8_plus"),
				Transitions: []Transition{
					when("pain_scale >= 8", Emergency),
					when(condition.Keyword, GoTo(3)),
				},
			},
			{
				Number: 3,
				Title:  titleActionPlan,
				Questions: []Question{
					choice("recommended_action", "Recommended next step:",
						"Emergency Room", "Urgent Care", "Primary Care", "Home Care"),
				},
				Transitions: []Transition{when(condition.Keyword, GoTo(4))},
			},
			{
				Number: 4,
				Title:  titleOutcome,
				Questions: []Question{
					text("action_taken", "Action taken:"),
					yesNo("emergency_called", "Were emergency services contacted?"),
					yesNo("follow_up_needed", "Is follow-up care needed?"),
				},
				Transitions: []Transition{when(condition.Keyword, Complete)},
			},
		},
	}
}

func chestPainProtocol() *Template {
	return &Template{
		Scenario: models.ScenarioChestPain,
		Steps: []Step{
			{
				Number: 1,
				Title:  titleSafetyCheck,
				Questions: []Question{
					yesNo("consciousness", "Is the elder conscious and responsive?").critical(),
					scale("chest_pain_severity", "How severe is the chest pain (0-10)?").critical(),
					yesNo("breathing_difficulty", "Is there difficulty breathing or shortness of breath?").critical(),
					yesNo("sweating_nausea", "Is there sweating, nausea, or dizziness?").critical(),
				},
				CriticalFlags: flags("consciousness_no", "chest_pain_severity_7_plus", "breathing_difficulty_yes", "sweating_nausea_yes"),
				Transitions: []Transition{
					when("consciousness_no OR chest_pain_severity >= 7 OR breathing_difficulty_yes OR sweating_nausea_yes", Emergency),
					when(condition.Keyword, GoTo(2)),
				},
			},
			{
				Number: 2,
				Title:  titleAssessment,
				Questions: []Question{
					choice("pain_duration", "How long has the chest pain been present?",
						"Less than 5 minutes", "5-15 minutes", "15-30 minutes", "More than 30 minutes"),
					yesNo("pain_radiation", "Does the pain radiate to arm, jaw, or back?").critical(),
					yesNo("cardiac_history", "Does the elder have a history of heart problems?"),
					yesNo("current_medications", "Is the elder taking heart medications?"),
				},
				CriticalFlags: flags("pain_radiation_yes"),
				Transitions: []Transition{
					when("pain_radiation_yes OR pain_duration_more_than_30", Emergency),
					when(condition.Keyword, GoTo(3)),
				},
			},
			{
				Number: 3,
				Title:  titleActionPlan,
				Questions: []Question{
					choice("immediate_action", "Immediate action required:",
						"Call 911 Immediately", "Go to Emergency Room", "Call Cardiologist", "Monitor Closely"),
				},
				Transitions: []Transition{when(condition.Keyword, GoTo(4))},
			},
			{
				Number: 4,
				Title:  titleOutcome,
				Questions: []Question{
					text("action_taken", "Action taken:"),
					yesNo("emergency_called", "Were emergency services called?"),
					yesNo("symptoms_resolved", "Have symptoms improved or resolved?"),
				},
				Transitions: []Transition{when(condition.Keyword, Complete)},
			},
		},
	}
}

func confusionProtocol() *Template {
	return &Template{
		Scenario: models.ScenarioConfusion,
		Steps: []Step{
			{
				Number: 1,
				Title:  titleSafetyCheck,
				Questions: []Question{
					yesNo("responsiveness", "Is the elder responsive to voice and touch?").critical(),
					choice("orientation_check", "Does the elder know their name, location, and date?",
						"Knows all three", "Knows two", "Knows one", "Knows none").critical(),
					yesNo("physical_symptoms", "Are there any physical symptoms (fever, weakness, difficulty speaking)?").critical(),
				},
				CriticalFlags: flags("responsiveness_no", "orientation_check_knows_none", "physical_symptoms_yes"),
				Transitions: []Transition{
					when("responsiveness_no OR orientation_check_knows_none OR physical_symptoms_yes", Emergency),
					when(condition.Keyword, GoTo(2)),
				},
			},
			{
				Number: 2,
				Title:  titleAssessment,
				Questions: []Question{
					choice("confusion_onset", "When did the confusion start?",
						"Suddenly (minutes)", "Gradually (hours)", "Over days", "Chronic/ongoing"),
					yesNo("medication_changes", "Have there been recent medication changes?"),
					yesNo("recent_illness", "Has the elder been ill recently (UTI, infection, etc.)?"),
					yesNo("safety_concerns", "Are there immediate safety concerns (wandering, agitation)?").critical(),
				},
				CriticalFlags: flags("safety_concerns_yes"),
				Transitions: []Transition{
					when("safety_concerns_yes OR confusion_onset_suddenly", Emergency),
					when(condition.Keyword, GoTo(3)),
				},
			},
			{
				Number: 3,
				Title:  titleActionPlan,
				Questions: []Question{
					choice("recommended_care", "Recommended level of care:",
						"Emergency Room", "Urgent Care", "Primary Care Same Day", "Schedule Appointment"),
				},
				Transitions: []Transition{when(condition.Keyword, GoTo(4))},
			},
			{
				Number: 4,
				Title:  titleOutcome,
				Questions: []Question{
					text("action_taken", "Action taken:"),
					yesNo("emergency_called", "Were emergency services called?"),
					text("safety_measures", "What safety measures were implemented?").optional(),
				},
				Transitions: []Transition{when(condition.Keyword, Complete)},
			},
		},
	}
}

// Questions are required unless marked optional.

func yesNo(id, label string) Question {
	return Question{ID: id, Text: label, Kind: models.QuestionYesNo, Required: true}
}

func scale(id, label string) Question {
	return Question{ID: id, Text: label, Kind: models.QuestionScale, Required: true}
}

func choice(id, label string, options ...string) Question {
	return Question{ID: id, Text: label, Kind: models.QuestionMultipleChoice, Required: true, Options: options}
}

func text(id, label string) Question {
	return Question{ID: id, Text: label, Kind: models.QuestionText, Required: true}
}

func (q Question) critical() Question {
	q.Critical = true
	return q
}

func (q Question) optional() Question {
	q.Required = false
	return q
}

func flags(conds ...string) []condition.Expr {
	out := make([]condition.Expr, len(conds))
	for i, c := range conds {
		out[i] = condition.MustParse(c)
	}
	return out
}

func when(cond string, next NextStep) Transition {
	return Transition{Condition: condition.MustParse(cond), Next: next}
}
