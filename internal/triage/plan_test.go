package triage

import (
	"testing"

	"github.com/BTreeMap/CareCircle/internal/models"
)

func TestScenarioPlans(t *testing.T) {
	tests := []struct {
		name       string
		scenario   models.Scenario
		responses  models.Responses
		want       models.Recommendation
		urgency    int
		timeframe  string
		followUps  int
		firstTitle string
	}{
		{"fall high pain", models.ScenarioFall, models.Responses{"pain_level_initial": models.Number(6)},
			models.RecommendUrgentCare, 7, "Within 2 hours", 1, "Arrange urgent care visit"},
		{"fall cannot move", models.ScenarioFall, models.Responses{"pain_level_initial": models.Number(2), "mobility_status": models.Text("No")},
			models.RecommendUrgentCare, 7, "Within 2 hours", 1, "Arrange urgent care visit"},
		{"fall stable", models.ScenarioFall, models.Responses{"pain_level_initial": models.Number(5), "mobility_status": models.Bool(true)},
			models.RecommendMonitor, 4, "Monitor for 24 hours", 1, "Monitor post-fall condition"},
		{"injury high pain", models.ScenarioInjury, models.Responses{"pain_scale": models.Text("7")},
			models.RecommendUrgentCare, 6, "Within 4 hours", 0, ""},
		{"injury moderate bleeding", models.ScenarioInjury, models.Responses{"pain_scale": models.Number(1), "bleeding_severity": models.Text("Moderate bleeding")},
			models.RecommendUrgentCare, 6, "Within 4 hours", 0, ""},
		{"injury minor", models.ScenarioInjury, models.Responses{"pain_scale": models.Number(6), "bleeding_severity": models.Text("Minor bleeding")},
			models.RecommendMonitor, 3, "Monitor closely", 0, ""},
		{"chest pain always urgent care", models.ScenarioChestPain, models.Responses{"chest_pain_severity": models.Number(1)},
			models.RecommendUrgentCare, 8, "Within 1 hour", 1, "Urgent cardiac evaluation"},
		{"confusion sudden onset", models.ScenarioConfusion, models.Responses{"confusion_onset": models.Text("Suddenly (minutes)")},
			models.RecommendUrgentCare, 7, "Within 2 hours", 0, ""},
		{"confusion medication change", models.ScenarioConfusion, models.Responses{"confusion_onset": models.Text("Over days"), "medication_changes": models.Bool(true)},
			models.RecommendUrgentCare, 7, "Within 2 hours", 0, ""},
		{"confusion gradual", models.ScenarioConfusion, models.Responses{"confusion_onset": models.Text("Gradually (hours)"), "medication_changes": models.Text("no")},
			models.RecommendNurseLine, 5, "Within 4 hours", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ScenarioPlan(tt.scenario, tt.responses)
			if err != nil {
				t.Fatalf("ScenarioPlan failed: %v", err)
			}
			if plan.Recommendation != tt.want || plan.UrgencyLevel != tt.urgency || plan.EstimatedTimeframe != tt.timeframe {
				t.Errorf("expected %v/%d/%q, got %v/%d/%q", tt.want, tt.urgency, tt.timeframe,
					plan.Recommendation, plan.UrgencyLevel, plan.EstimatedTimeframe)
			}
			if len(plan.FollowUpTasks) != tt.followUps {
				t.Fatalf("expected %d follow-up tasks, got %d", tt.followUps, len(plan.FollowUpTasks))
			}
			if tt.followUps > 0 && plan.FollowUpTasks[0].Title != tt.firstTitle {
				t.Errorf("expected follow-up %q, got %q", tt.firstTitle, plan.FollowUpTasks[0].Title)
			}
			if plan.CallScript == "" {
				t.Error("expected a call script")
			}
		})
	}
}

func TestScenarioPlanUnknownScenario(t *testing.T) {
	if _, err := ScenarioPlan(models.Scenario(0), nil); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestEmergencyPlan(t *testing.T) {
	for _, s := range Scenarios() {
		plan := EmergencyPlan(s)
		if !plan.IsEmergency() || plan.UrgencyLevel != 10 || plan.EstimatedTimeframe != "Immediate" {
			t.Errorf("%v: unexpected emergency plan %#v", s, plan)
		}
		if plan.CallScript != emergencyScripts[s] {
			t.Errorf("%v: expected scenario-specific script", s)
		}
		if len(plan.FollowUpTasks) != 1 {
			t.Fatalf("%v: expected one follow-up task", s)
		}
		task := plan.FollowUpTasks[0]
		if task.DueInHours != 1 || task.Priority != models.UrgencyUrgent || len(task.Checklist) != 3 {
			t.Errorf("%v: unexpected follow-up task %#v", s, task)
		}
		for _, item := range task.Checklist {
			if !item.Required {
				t.Errorf("%v: checklist item %q should be required", s, item.Text)
			}
		}
	}
	if EmergencyPlan(models.Scenario(0)).CallScript != genericEmergencyScript {
		t.Error("expected generic script for unknown scenario")
	}
}

func TestCriticalFlagForcesEmergencyPlan(t *testing.T) {
	s := newTestSession(t, models.ScenarioChestPain)
	s.RecordResponse("sweating_nausea", models.Text("Yes"))
	plan, err := s.GenerateActionPlan()
	if err != nil {
		t.Fatalf("GenerateActionPlan failed: %v", err)
	}
	if !plan.IsEmergency() {
		t.Errorf("expected emergency plan while a critical flag fires, got %v", plan.Recommendation)
	}
}
