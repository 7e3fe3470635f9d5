// Package triage implements the incident triage protocols: a static registry of per-scenario
// step templates and the session engine that walks a caregiver through them.
package triage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/BTreeMap/CareCircle/internal/condition"
	"github.com/BTreeMap/CareCircle/internal/models"
)

var (
	// ErrInvalidScenario is returned when no template is registered for a scenario.
	ErrInvalidScenario = errors.New("invalid triage scenario")
	// ErrInvalidState is returned when a session points at a step its template does not define.
	ErrInvalidState = errors.New("invalid triage session state")
	// ErrSessionClosed is returned when advancing a session that already reached a terminal state.
	ErrSessionClosed = errors.New("triage session is closed")
)

// Question is a single triage question.
type Question struct {
	ID       string              `json:"id"`
	Text     string              `json:"text"`
	Kind     models.QuestionKind `json:"kind"`
	Required bool                `json:"required"`
	Critical bool                `json:"critical_flag"`
	Options  []string            `json:"options,omitempty"`
}

// Transition moves a session to Next when Condition holds.
type Transition struct {
	Condition condition.Expr
	Next      NextStep
}

// Step is one stage of a protocol. Transitions are evaluated in order and the first match wins.
type Step struct {
	Number        int
	Title         string
	Questions     []Question
	CriticalFlags []condition.Expr
	Transitions   []Transition
}

// Template is the full step sequence for one scenario. Step numbers start at 1 and are contiguous.
type Template struct {
	Scenario models.Scenario
	Steps    []Step
}

// Step returns the step with the given number, or nil.
func (t *Template) Step(n int) *Step {
	if n < 1 || n > len(t.Steps) {
		return nil
	}
	return &t.Steps[n-1]
}

// Terminal names the states a session cannot leave.
type Terminal string

const (
	TerminalEmergency Terminal = "emergency"
	TerminalComplete  Terminal = "complete"
)

// NextStep is either a step number or a terminal state.
type NextStep struct {
	Step     int
	Terminal Terminal
}

// GoTo returns a NextStep pointing at step n.
func GoTo(n int) NextStep { return NextStep{Step: n} }

var (
	Emergency = NextStep{Terminal: TerminalEmergency}
	Complete  = NextStep{Terminal: TerminalComplete}
)

// IsTerminal reports whether n ends the session.
func (n NextStep) IsTerminal() bool { return n.Terminal != "" }

func (n NextStep) String() string {
	if n.IsTerminal() {
		return string(n.Terminal)
	}
	return strconv.Itoa(n.Step)
}

// MarshalJSON renders step numbers as numbers and terminal states as strings.
func (n NextStep) MarshalJSON() ([]byte, error) {
	if n.IsTerminal() {
		return json.Marshal(string(n.Terminal))
	}
	return json.Marshal(n.Step)
}

// UnmarshalJSON accepts the forms produced by MarshalJSON.
func (n *NextStep) UnmarshalJSON(b []byte) error {
	var step int
	if err := json.Unmarshal(b, &step); err == nil {
		*n = GoTo(step)
		return nil
	}
	var term string
	if err := json.Unmarshal(b, &term); err != nil {
		return fmt.Errorf("next step must be a number or terminal state: %w", err)
	}
	switch Terminal(term) {
	case TerminalEmergency, TerminalComplete:
		*n = NextStep{Terminal: Terminal(term)}
		return nil
	}
	return fmt.Errorf("%w: unknown terminal state %q", ErrInvalidState, term)
}

// Lookup returns the registered template for a scenario.
func Lookup(s models.Scenario) (*Template, error) {
	t, ok := registry[s]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidScenario, s)
	}
	return t, nil
}

// Scenarios lists every scenario with a registered template.
func Scenarios() []models.Scenario {
	out := make([]models.Scenario, 0, len(registry))
	for _, s := range models.AllScenarios() {
		if _, ok := registry[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// TemplateView is the serializable form of a template, with conditions rendered back to text.
type TemplateView struct {
	Scenario models.Scenario `json:"scenario"`
	Steps    []StepView      `json:"steps"`
}

type StepView struct {
	Number        int              `json:"step_number"`
	Title         string           `json:"title"`
	Questions     []Question       `json:"questions"`
	CriticalFlags []string         `json:"critical_flags"`
	Transitions   []TransitionView `json:"transitions"`
}

type TransitionView struct {
	Condition string   `json:"condition"`
	Next      NextStep `json:"next_step"`
}

// View converts t to its serializable form.
func (t *Template) View() TemplateView {
	v := TemplateView{Scenario: t.Scenario, Steps: make([]StepView, len(t.Steps))}
	for i, st := range t.Steps {
		sv := StepView{
			Number:        st.Number,
			Title:         st.Title,
			Questions:     st.Questions,
			CriticalFlags: make([]string, len(st.CriticalFlags)),
			Transitions:   make([]TransitionView, len(st.Transitions)),
		}
		for j, f := range st.CriticalFlags {
			sv.CriticalFlags[j] = f.String()
		}
		for j, tr := range st.Transitions {
			sv.Transitions[j] = TransitionView{Condition: tr.Condition.String(), Next: tr.Next}
		}
		v.Steps[i] = sv
	}
	return v
}
