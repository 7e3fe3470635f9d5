// Package condition parses and evaluates the small branching language used by triage protocols.
//
// A condition is DEFAULT, a single comparison or exact-match term, or a list of terms joined by
// exactly one connective (" OR " or " AND "):
//
//	DEFAULT
//	pain_level_initial >= 8
//	consciousness_no OR severe_injury_yes
//	pain_level_initial_8_plus
//	bleeding_severity_Moderate bleeding
//
// Conditions are parsed once into an Expr and evaluated against a set of responses. Evaluation is
// total: anything that cannot be understood evaluates to false.
package condition

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BTreeMap/CareCircle/internal/models"
)

// Keyword is the condition that always holds.
const Keyword = "DEFAULT"

const (
	orSep  = " OR "
	andSep = " AND "
	plus   = "_plus"
)

var (
	// ErrMalformedCondition is returned by Parse for conditions that cannot be understood.
	ErrMalformedCondition = errors.New("malformed condition")
	// ErrAmbiguousCondition is returned for conditions that mix AND and OR.
	ErrAmbiguousCondition = fmt.Errorf("%w: AND and OR cannot be mixed", ErrMalformedCondition)
)

// Expr is a parsed condition.
type Expr interface {
	// Eval reports whether the condition holds for the given responses.
	Eval(r models.Responses) bool
	// String renders the condition back to its textual form.
	String() string
}

// Default always holds.
type Default struct{}

func (Default) Eval(models.Responses) bool { return true }
func (Default) String() string             { return Keyword }

// Op is a numeric comparison operator.
type Op int

const (
	OpGTE Op = iota + 1
	OpLTE
	OpGT
	OpLT
)

// operators are matched in this order so that ">=" wins over ">".
var operators = []struct {
	op  Op
	sym string
}{
	{OpGTE, ">="},
	{OpLTE, "<="},
	{OpGT, ">"},
	{OpLT, "<"},
}

func (o Op) String() string {
	for _, e := range operators {
		if e.op == o {
			return e.sym
		}
	}
	return "?"
}

// Comparison compares a numeric response against a threshold.
type Comparison struct {
	ID        string
	Op        Op
	Threshold float64
}

func (c Comparison) Eval(r models.Responses) bool {
	v, ok := r[c.ID]
	if !ok {
		return false
	}
	f, ok := v.Float()
	if !ok {
		return false
	}
	switch c.Op {
	case OpGTE:
		return f >= c.Threshold
	case OpLTE:
		return f <= c.Threshold
	case OpGT:
		return f > c.Threshold
	case OpLT:
		return f < c.Threshold
	}
	return false
}

func (c Comparison) String() string {
	return c.ID + " " + c.Op.String() + " " + formatNumber(c.Threshold)
}

// ExactMatch tests a response against the suffix of an "<id>_<suffix>" term.
//
// The suffixes "yes" and "no" match booleans and the words yes/no in any case. A suffix of the form
// "<n>_plus" matches numeric responses of at least n. Anything else must equal the stringified
// response exactly.
type ExactMatch struct {
	ID     string
	Suffix string
}

func (e ExactMatch) Eval(r models.Responses) bool {
	v, ok := r[e.ID]
	if !ok || v.IsZero() {
		return false
	}
	switch {
	case e.Suffix == "yes":
		return v.IsYes()
	case e.Suffix == "no":
		return v.IsNo()
	case strings.HasSuffix(e.Suffix, plus):
		threshold, err := strconv.ParseFloat(strings.TrimSuffix(e.Suffix, plus), 64)
		if err != nil {
			return false
		}
		f, ok := v.Float()
		return ok && f >= threshold
	default:
		return v.String() == e.Suffix
	}
}

func (e ExactMatch) String() string { return e.ID + "_" + e.Suffix }

// Or holds when any of its terms holds.
type Or []Expr

func (o Or) Eval(r models.Responses) bool {
	for _, e := range o {
		if e.Eval(r) {
			return true
		}
	}
	return false
}

func (o Or) String() string { return join(o, orSep) }

// And holds when all of its terms hold.
type And []Expr

func (a And) Eval(r models.Responses) bool {
	for _, e := range a {
		if !e.Eval(r) {
			return false
		}
	}
	return len(a) > 0
}

func (a And) String() string { return join(a, andSep) }

// Invalid is a term that could not be parsed. It never holds.
type Invalid struct {
	Raw string
	Err error
}

func (Invalid) Eval(models.Responses) bool { return false }
func (i Invalid) String() string           { return i.Raw }

// Parse parses a condition string. On error the returned Expr is still usable: malformed terms are
// replaced by Invalid and evaluate to false, so an OR list keeps its well-formed alternatives.
func Parse(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == Keyword {
		return Default{}, nil
	}

	hasOr := strings.Contains(s, orSep)
	hasAnd := strings.Contains(s, andSep)
	switch {
	case hasOr && hasAnd:
		return Invalid{Raw: s, Err: ErrAmbiguousCondition}, fmt.Errorf("%q: %w", s, ErrAmbiguousCondition)
	case hasOr:
		terms, err := parseTerms(strings.Split(s, orSep))
		return Or(terms), err
	case hasAnd:
		terms, err := parseTerms(strings.Split(s, andSep))
		return And(terms), err
	}

	term := parseTerm(s)
	if inv, ok := term.(Invalid); ok {
		return term, inv.Err
	}
	return term, nil
}

// MustParse is like Parse but panics on any error. It is intended for static protocol tables.
func MustParse(s string) Expr {
	e, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("condition: %v", err))
	}
	return e
}

// Evaluate parses and evaluates s in one step. Malformed conditions are logged and evaluate false.
func Evaluate(s string, r models.Responses) bool {
	e, err := Parse(s)
	if err != nil {
		slog.Warn("condition.Evaluate: malformed condition", "condition", s, "error", err)
	}
	return e.Eval(r)
}

func parseTerms(parts []string) ([]Expr, error) {
	terms := make([]Expr, 0, len(parts))
	var errs []error
	for _, p := range parts {
		t := parseTerm(strings.TrimSpace(p))
		if inv, ok := t.(Invalid); ok {
			errs = append(errs, inv.Err)
		}
		terms = append(terms, t)
	}
	return terms, errors.Join(errs...)
}

func parseTerm(s string) Expr {
	if s == "" {
		return invalid(s, "empty term")
	}
	for _, o := range operators {
		idx := strings.Index(s, o.sym)
		if idx < 0 {
			continue
		}
		id := strings.TrimSpace(s[:idx])
		raw := strings.TrimSpace(s[idx+len(o.sym):])
		if id == "" || strings.ContainsAny(id, " \t") {
			return invalid(s, "comparison needs a question id")
		}
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return invalid(s, "comparison threshold is not a number")
		}
		return Comparison{ID: id, Op: o.op, Threshold: threshold}
	}

	base, suffixTail := s, ""
	if strings.HasSuffix(s, plus) {
		base, suffixTail = strings.TrimSuffix(s, plus), plus
	}
	idx := strings.LastIndex(base, "_")
	if idx <= 0 || idx == len(base)-1 {
		return invalid(s, "expected <id>_<value>")
	}
	m := ExactMatch{ID: base[:idx], Suffix: base[idx+1:] + suffixTail}
	if suffixTail != "" {
		if _, err := strconv.ParseFloat(base[idx+1:], 64); err != nil {
			return invalid(s, "threshold before _plus is not a number")
		}
	}
	return m
}

func invalid(raw, reason string) Invalid {
	return Invalid{Raw: raw, Err: fmt.Errorf("%q: %w: %s", raw, ErrMalformedCondition, reason)}
}

func join(terms []Expr, sep string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, sep)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
