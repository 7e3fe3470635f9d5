package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindBool
	KindNumber
	KindText
)

// Value is a triage answer: a boolean, a number or free text.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
}

// Responses maps question ids to answers.
type Responses map[string]Value

func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }
func Text(s string) Value    { return Value{kind: KindText, s: s} }

func (v Value) Kind() ValueKind { return v.kind }

// IsZero reports whether v holds no answer.
func (v Value) IsZero() bool { return v.kind == KindNone }

// Float coerces v to a finite number. Booleans, non-numeric text, NaN and infinities are not numbers.
func (v Value) Float() (float64, bool) {
	var f float64
	switch v.kind {
	case KindNumber:
		f = v.n
	case KindText:
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsYes reports whether v is boolean true or the text "yes" in any case.
func (v Value) IsYes() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindText:
		return strings.EqualFold(strings.TrimSpace(v.s), "yes")
	}
	return false
}

// IsNo reports whether v is boolean false or the text "no" in any case.
func (v Value) IsNo() bool {
	switch v.kind {
	case KindBool:
		return !v.b
	case KindText:
		return strings.EqualFold(strings.TrimSpace(v.s), "no")
	}
	return false
}

// String renders v the way exact-match conditions compare it.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case KindText:
		return v.s
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindText:
		return json.Marshal(v.s)
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case bool:
		*v = Bool(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnsupportedValue, x)
		}
		*v = Number(f)
	case string:
		*v = Text(x)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedValue, strings.TrimSpace(string(data)))
	}
	return nil
}
