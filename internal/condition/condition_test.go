package condition

import (
	"errors"
	"testing"

	"github.com/BTreeMap/CareCircle/internal/models"
)

func TestEvaluate(t *testing.T) {
	responses := models.Responses{
		"consciousness":      models.Bool(false),
		"severe_injury":      models.Text("No"),
		"pain_level_initial": models.Number(8),
		"pain_scale":         models.Text("6"),
		"bleeding_severity":  models.Text("Moderate bleeding"),
		"mobility_status":    models.Text("yes"),
		"orientation_check":  models.Text("Knows two"),
		"pain_inf":           models.Text("Inf"),
		"pain_nan":           models.Text("NaN"),
	}

	tests := []struct {
		name      string
		condition string
		want      bool
	}{
		{"default", "DEFAULT", true},
		{"default with spaces", "  DEFAULT ", true},
		{"bool false matches no", "consciousness_no", true},
		{"bool false does not match yes", "consciousness_yes", false},
		{"text No matches no case-insensitively", "severe_injury_no", true},
		{"text yes matches yes", "mobility_status_yes", true},
		{"gte at threshold", "pain_level_initial >= 8", true},
		{"gte below threshold", "pain_scale >= 7", false},
		{"lte numeric text", "pain_scale <= 6", true},
		{"lt", "pain_level_initial < 8", false},
		{"gt", "pain_level_initial > 7.5", true},
		{"plus suffix at threshold", "pain_level_initial_8_plus", true},
		{"plus suffix above response", "pain_level_initial_9_plus", false},
		{"plus suffix on numeric text", "pain_scale_6_plus", true},
		{"exact text match", "bleeding_severity_Moderate bleeding", true},
		{"exact text mismatch", "bleeding_severity_Severe bleeding", false},
		{"exact match is case-sensitive", "orientation_check_knows two", false},
		{"or any", "severe_injury_yes OR consciousness_no", true},
		{"or none", "severe_injury_yes OR pain_scale >= 9", false},
		{"and all", "consciousness_no AND pain_level_initial >= 8", true},
		{"and one false", "consciousness_no AND pain_scale >= 9", false},
		{"missing id compares false", "unknown_question >= 1", false},
		{"missing id matches false", "unknown_question_yes", false},
		{"non-numeric response compares false", "bleeding_severity >= 1", false},
		{"boolean response compares false", "consciousness <= 1", false},
		{"infinite text compares false", "pain_inf >= 8", false},
		{"NaN text compares false", "pain_nan <= 8", false},
		{"infinite text is not a plus match", "pain_inf_8_plus", false},
		{"unrecognised form", "bogus_garbage", false},
		{"no underscore", "bogus", false},
		{"empty", "", false},
		{"non-numeric threshold", "pain_scale >= high", false},
		{"mixed connectives are rejected", "consciousness_no OR severe_injury_no AND pain_scale >= 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.condition, responses); got != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tt.condition, got, tt.want)
			}
		})
	}
}

func TestEvaluateEmptyResponses(t *testing.T) {
	for _, c := range []string{"consciousness_no", "pain_level_initial >= 0", "a_1_plus", "x_y OR z_w"} {
		if Evaluate(c, models.Responses{}) {
			t.Errorf("Evaluate(%q) on empty responses should be false", c)
		}
	}
	if !Evaluate("DEFAULT", nil) {
		t.Error("DEFAULT must hold even with nil responses")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		condition string
		wantErr   error
	}{
		{"a_yes OR b_no AND c_yes", ErrAmbiguousCondition},
		{"bogus", ErrMalformedCondition},
		{"pain >= lots", ErrMalformedCondition},
		{">= 3", ErrMalformedCondition},
		{"pain_high_plus", ErrMalformedCondition},
		{"trailing_", ErrMalformedCondition},
	}
	for _, tt := range tests {
		_, err := Parse(tt.condition)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Parse(%q): expected %v, got %v", tt.condition, tt.wantErr, err)
		}
	}
}

func TestParseKeepsWellFormedAlternatives(t *testing.T) {
	expr, err := Parse("consciousness_no OR bogus")
	if err == nil {
		t.Fatal("expected an error for the malformed alternative")
	}
	if !expr.Eval(models.Responses{"consciousness": models.Bool(false)}) {
		t.Error("well-formed alternative should still be evaluated")
	}
}

func TestParseStructure(t *testing.T) {
	expr := MustParse("pain_level_initial_8_plus")
	m, ok := expr.(ExactMatch)
	if !ok {
		t.Fatalf("expected ExactMatch, got %T", expr)
	}
	if m.ID != "pain_level_initial" || m.Suffix != "8_plus" {
		t.Errorf("unexpected parse %#v", m)
	}

	expr = MustParse("consciousness_yes AND severe_injury_no AND pain_level_initial < 8")
	and, ok := expr.(And)
	if !ok || len(and) != 3 {
		t.Fatalf("expected three-term And, got %#v", expr)
	}
	if c, ok := and[2].(Comparison); !ok || c.Op != OpLT || c.Threshold != 8 {
		t.Errorf("unexpected comparison %#v", and[2])
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{
		"DEFAULT",
		"pain_level_initial >= 8",
		"consciousness_no OR severe_injury_yes OR pain_level_initial >= 8",
		"consciousness_yes AND severe_injury_no AND pain_level_initial < 8",
		"chest_pain_severity_7_plus",
		"confusion_onset_Suddenly (minutes)",
	} {
		if got := MustParse(s).String(); got != s {
			t.Errorf("String() = %q, want %q", got, s)
		}
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustParse to panic on malformed input")
		}
	}()
	MustParse("a_yes OR b_no AND c_yes")
}
