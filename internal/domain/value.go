package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Value is the logical payload of one attribute value row, modeled as a
// tagged union over the eight declared types. Exactly one variant is set per
// value, so the "at most one slot populated" rule holds structurally on the
// Go side; the codec re-checks it against rows read back from storage.
type Value struct {
	kind DeclaredType
	s    string          // string, text, decimal (canonical numeric string)
	i    int64           // integer
	b    bool            // boolean
	t    time.Time       // date, datetime
	js   json.RawMessage // json
}

var decimalPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// StringValue builds a short string value.
func StringValue(v string) Value { return Value{kind: TypeString, s: v} }

// TextValue builds a long-form text value.
func TextValue(v string) Value { return Value{kind: TypeText, s: v} }

// IntegerValue builds an integer value.
func IntegerValue(v int64) Value { return Value{kind: TypeInteger, i: v} }

// BooleanValue builds a boolean value.
func BooleanValue(v bool) Value { return Value{kind: TypeBoolean, b: v} }

// DecimalValue builds an exact decimal value from its canonical string form.
// The string representation preserves precision that float64 would lose. A
// leading plus sign is dropped; NUMERIC does the same on read-back, so keeping
// it would break equality across a store round trip.
func DecimalValue(v string) (Value, error) {
	if !decimalPattern.MatchString(v) {
		return Value{}, fmt.Errorf("invalid decimal literal %q", v)
	}
	return Value{kind: TypeDecimal, s: strings.TrimPrefix(v, "+")}, nil
}

// DateValue builds a calendar date value; the time of day is discarded.
func DateValue(v time.Time) Value {
	y, m, d := v.Date()
	return Value{kind: TypeDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTimeValue builds a timestamp value, stored at UTC.
func DateTimeValue(v time.Time) Value {
	return Value{kind: TypeDateTime, t: v.UTC()}
}

// JSONValue builds a value from a raw JSON document.
func JSONValue(raw json.RawMessage) (Value, error) {
	if !json.Valid(raw) {
		return Value{}, fmt.Errorf("invalid json document")
	}
	return Value{kind: TypeJSON, js: raw}, nil
}

// Kind returns the declared type this value encodes to.
func (v Value) Kind() DeclaredType { return v.kind }

// IsZero reports whether the value carries no variant at all.
func (v Value) IsZero() bool { return v.kind == "" }

// AsString returns the string form shared by string, text and decimal values.
func (v Value) AsString() string { return v.s }

// AsInteger returns the integer variant.
func (v Value) AsInteger() int64 { return v.i }

// AsBoolean returns the boolean variant.
func (v Value) AsBoolean() bool { return v.b }

// AsTime returns the date or datetime variant.
func (v Value) AsTime() time.Time { return v.t }

// AsJSON returns the raw JSON variant.
func (v Value) AsJSON() json.RawMessage { return v.js }

// Equal compares two values variant-wise.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case TypeString, TypeText, TypeDecimal:
		return v.s == other.s
	case TypeInteger:
		return v.i == other.i
	case TypeBoolean:
		return v.b == other.b
	case TypeDate, TypeDateTime:
		return v.t.Equal(other.t)
	case TypeJSON:
		return string(v.js) == string(other.js)
	}
	return v.IsZero() && other.IsZero()
}

func (v Value) String() string {
	switch v.kind {
	case TypeString, TypeText, TypeDecimal:
		return v.s
	case TypeInteger:
		return fmt.Sprintf("%d", v.i)
	case TypeBoolean:
		return fmt.Sprintf("%t", v.b)
	case TypeDate:
		return v.t.Format("2006-01-02")
	case TypeDateTime:
		return v.t.Format(time.RFC3339Nano)
	case TypeJSON:
		return string(v.js)
	}
	return "<unset>"
}

// GroupID correlates the rows of one multi-attribute value group (for
// example the name, quantity and condition rows of a single equipment item).
// It is an application-level convention layered on plain attribute rows: the
// correlator is written as an ordinary string attribute and the stores attach
// no semantics to it.
type GroupID string

// NewGroupID returns a fresh lexicographically sortable correlator.
func NewGroupID() GroupID {
	return GroupID(ulid.Make().String())
}

func (g GroupID) String() string { return string(g) }
