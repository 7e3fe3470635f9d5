package models

import (
	"fmt"
	"strings"
)

// Closed enumerations used by the triage, assignment and outcome modules. Each enum is an int in
// memory; the lowercase wire names below appear only in JSON and database columns.

// Scenario identifies a triage protocol.
type Scenario int

const (
	ScenarioFall Scenario = iota + 1
	ScenarioInjury
	ScenarioChestPain
	ScenarioConfusion
)

var scenarioNames = []string{
	ScenarioFall:      "fall",
	ScenarioInjury:    "injury",
	ScenarioChestPain: "chest_pain",
	ScenarioConfusion: "confusion",
}

// AllScenarios lists every scenario in declaration order.
func AllScenarios() []Scenario {
	return []Scenario{ScenarioFall, ScenarioInjury, ScenarioChestPain, ScenarioConfusion}
}

func (s Scenario) Valid() bool { return validName(scenarioNames, s) }
func (s Scenario) String() string { return enumString("Scenario", scenarioNames, s) }
func ParseScenario(v string) (Scenario, error) {
	return parseName[Scenario]("scenario", scenarioNames, v)
}
func (s Scenario) MarshalText() ([]byte, error) { return marshalName("scenario", scenarioNames, s) }
func (s *Scenario) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseScenario(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// QuestionKind is the answer shape a triage question expects.
type QuestionKind int

const (
	QuestionYesNo QuestionKind = iota + 1
	QuestionScale
	QuestionMultipleChoice
	QuestionText
)

var questionKindNames = []string{
	QuestionYesNo:          "yes_no",
	QuestionScale:          "scale",
	QuestionMultipleChoice: "multiple_choice",
	QuestionText:           "text",
}

func (k QuestionKind) Valid() bool { return validName(questionKindNames, k) }
func (k QuestionKind) String() string { return enumString("QuestionKind", questionKindNames, k) }
func ParseQuestionKind(v string) (QuestionKind, error) {
	return parseName[QuestionKind]("question kind", questionKindNames, v)
}
func (k QuestionKind) MarshalText() ([]byte, error) {
	return marshalName("question kind", questionKindNames, k)
}
func (k *QuestionKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*k = 0
		return nil
	}
	v, err := ParseQuestionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Recommendation is the care level an action plan recommends.
type Recommendation int

const (
	RecommendCall911 Recommendation = iota + 1
	RecommendUrgentCare
	RecommendNurseLine
	RecommendMonitor
)

var recommendationNames = []string{
	RecommendCall911:    "call_911",
	RecommendUrgentCare: "urgent_care",
	RecommendNurseLine:  "nurse_line",
	RecommendMonitor:    "monitor",
}

func (r Recommendation) Valid() bool { return validName(recommendationNames, r) }
func (r Recommendation) String() string { return enumString("Recommendation", recommendationNames, r) }
func ParseRecommendation(v string) (Recommendation, error) {
	return parseName[Recommendation]("recommendation", recommendationNames, v)
}
func (r Recommendation) MarshalText() ([]byte, error) {
	return marshalName("recommendation", recommendationNames, r)
}
func (r *Recommendation) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*r = 0
		return nil
	}
	v, err := ParseRecommendation(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Availability is a caregiver's declared availability. The zero value means unknown.
type Availability int

const (
	AvailabilityUnknown Availability = iota
	AvailabilityFlexible
	AvailabilityWeekends
	AvailabilityLimited
)

var availabilityNames = []string{
	AvailabilityUnknown:  "unknown",
	AvailabilityFlexible: "flexible",
	AvailabilityWeekends: "weekends",
	AvailabilityLimited:  "limited",
}

func (a Availability) Valid() bool { return validName(availabilityNames, a) }
func (a Availability) String() string { return enumString("Availability", availabilityNames, a) }

// ParseAvailability parses a wire name. An empty string parses as AvailabilityUnknown.
func ParseAvailability(v string) (Availability, error) {
	if strings.TrimSpace(v) == "" {
		return AvailabilityUnknown, nil
	}
	return parseName[Availability]("availability", availabilityNames, v)
}
func (a Availability) MarshalText() ([]byte, error) {
	return marshalName("availability", availabilityNames, a)
}
func (a *Availability) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = 0
		return nil
	}
	v, err := ParseAvailability(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Urgency ranks how soon something needs attention. It doubles as a task's priority.
type Urgency int

const (
	UrgencyLow Urgency = iota + 1
	UrgencyMedium
	UrgencyHigh
	UrgencyUrgent
)

var urgencyNames = []string{
	UrgencyLow:    "low",
	UrgencyMedium: "medium",
	UrgencyHigh:   "high",
	UrgencyUrgent: "urgent",
}

func (u Urgency) Valid() bool { return validName(urgencyNames, u) }
func (u Urgency) String() string { return enumString("Urgency", urgencyNames, u) }

// Rank orders urgencies from 0 (low) to 3 (urgent). Invalid values rank as medium.
func (u Urgency) Rank() int {
	if !u.Valid() {
		return int(UrgencyMedium) - 1
	}
	return int(u) - 1
}
func ParseUrgency(v string) (Urgency, error) {
	return parseName[Urgency]("urgency", urgencyNames, v)
}
func (u Urgency) MarshalText() ([]byte, error) { return marshalName("urgency", urgencyNames, u) }
func (u *Urgency) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*u = 0
		return nil
	}
	v, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// OutcomeTemplateType selects an outcome-capture template.
type OutcomeTemplateType int

const (
	OutcomeMedication OutcomeTemplateType = iota + 1
	OutcomeSafety
	OutcomeAppointment
	OutcomeGeneral
)

var outcomeTemplateNames = []string{
	OutcomeMedication:  "medication",
	OutcomeSafety:      "safety",
	OutcomeAppointment: "appointment",
	OutcomeGeneral:     "general",
}

// AllOutcomeTemplateTypes lists every outcome template type in declaration order.
func AllOutcomeTemplateTypes() []OutcomeTemplateType {
	return []OutcomeTemplateType{OutcomeMedication, OutcomeSafety, OutcomeAppointment, OutcomeGeneral}
}

func (t OutcomeTemplateType) Valid() bool { return validName(outcomeTemplateNames, t) }
func (t OutcomeTemplateType) String() string {
	return enumString("OutcomeTemplateType", outcomeTemplateNames, t)
}
func ParseOutcomeTemplateType(v string) (OutcomeTemplateType, error) {
	return parseName[OutcomeTemplateType]("outcome template type", outcomeTemplateNames, v)
}
func (t OutcomeTemplateType) MarshalText() ([]byte, error) {
	return marshalName("outcome template type", outcomeTemplateNames, t)
}
func (t *OutcomeTemplateType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = 0
		return nil
	}
	v, err := ParseOutcomeTemplateType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func validName[T ~int](names []string, v T) bool {
	return int(v) >= 0 && int(v) < len(names) && names[v] != ""
}

func enumString[T ~int](kind string, names []string, v T) string {
	if validName(names, v) {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", kind, int(v))
}

// marshalName renders the zero value of an enum without a name as the empty string so that unset
// fields still serialize; Validate methods reject them.
func marshalName[T ~int](kind string, names []string, v T) ([]byte, error) {
	if v == 0 && !validName(names, v) {
		return []byte{}, nil
	}
	if !validName(names, v) {
		return nil, fmt.Errorf("%w: %s %d", ErrInvalidEnumerated, kind, int(v))
	}
	return []byte(names[v]), nil
}

func parseName[T ~int](kind string, names []string, v string) (T, error) {
	v = strings.TrimSpace(v)
	for i, name := range names {
		if name != "" && strings.EqualFold(name, v) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrInvalidEnumerated, kind, v)
}
