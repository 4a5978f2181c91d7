// Package codec is the single place that knows how a declared attribute type
// maps onto the physical slot columns of a value row. Every storage form
// (the generic polymorphic table and each entity-specific table) encodes and
// decodes through it; the forms differ only in physical layout.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// Slot column names shared by every value table.
const (
	ColumnString   = "value_string"
	ColumnInteger  = "value_integer"
	ColumnDecimal  = "value_decimal"
	ColumnBoolean  = "value_boolean"
	ColumnDate     = "value_date"
	ColumnDateTime = "value_datetime"
	ColumnText     = "value_text"
	ColumnJSON     = "value_json"
)

// SlotColumns lists the eight slot columns in canonical DDL order.
func SlotColumns() []string {
	return []string{
		ColumnString, ColumnInteger, ColumnDecimal, ColumnBoolean,
		ColumnDate, ColumnDateTime, ColumnText, ColumnJSON,
	}
}

// SlotColumn returns the slot column a declared type occupies.
func SlotColumn(t domain.DeclaredType) (string, error) {
	switch t {
	case domain.TypeString:
		return ColumnString, nil
	case domain.TypeInteger:
		return ColumnInteger, nil
	case domain.TypeDecimal:
		return ColumnDecimal, nil
	case domain.TypeBoolean:
		return ColumnBoolean, nil
	case domain.TypeDate:
		return ColumnDate, nil
	case domain.TypeDateTime:
		return ColumnDateTime, nil
	case domain.TypeText:
		return ColumnText, nil
	case domain.TypeJSON:
		return ColumnJSON, nil
	}
	return "", fmt.Errorf("unsupported declared type %q", t)
}

// Slots mirrors the eight nullable slot columns of one value row. At most one
// field is non-nil on any row produced by Encode.
type Slots struct {
	String   *string
	Integer  *int64
	Decimal  *string
	Boolean  *bool
	Date     *time.Time
	DateTime *time.Time
	Text     *string
	JSON     []byte
}

// PopulatedCount returns how many slots are set. Valid rows answer 0 or 1.
func (s Slots) PopulatedCount() int {
	n := 0
	if s.String != nil {
		n++
	}
	if s.Integer != nil {
		n++
	}
	if s.Decimal != nil {
		n++
	}
	if s.Boolean != nil {
		n++
	}
	if s.Date != nil {
		n++
	}
	if s.DateTime != nil {
		n++
	}
	if s.Text != nil {
		n++
	}
	if s.JSON != nil {
		n++
	}
	return n
}

// Encode maps a logical value onto the single slot demanded by the declared
// type, leaving the other seven unset. A value whose kind disagrees with the
// declared type is rejected with domain.ErrTypeMismatch.
func Encode(declared domain.DeclaredType, v domain.Value) (Slots, error) {
	if v.IsZero() {
		return Slots{}, fmt.Errorf("%w: empty value for declared type %s", domain.ErrTypeMismatch, declared)
	}
	if v.Kind() != declared {
		return Slots{}, fmt.Errorf("%w: %s value written to %s attribute", domain.ErrTypeMismatch, v.Kind(), declared)
	}

	var slots Slots
	switch declared {
	case domain.TypeString:
		s := v.AsString()
		slots.String = &s
	case domain.TypeInteger:
		i := v.AsInteger()
		slots.Integer = &i
	case domain.TypeDecimal:
		d := v.AsString()
		slots.Decimal = &d
	case domain.TypeBoolean:
		b := v.AsBoolean()
		slots.Boolean = &b
	case domain.TypeDate:
		t := v.AsTime()
		slots.Date = &t
	case domain.TypeDateTime:
		t := v.AsTime()
		slots.DateTime = &t
	case domain.TypeText:
		s := v.AsString()
		slots.Text = &s
	case domain.TypeJSON:
		slots.JSON = append([]byte(nil), v.AsJSON()...)
	default:
		return Slots{}, fmt.Errorf("unsupported declared type %q", declared)
	}
	return slots, nil
}

// Decode reads a row's slots back into a logical value. It verifies the
// single-slot invariant and that the populated slot is the one the declared
// type selects; a row with no populated slot decodes to the zero Value.
func Decode(declared domain.DeclaredType, slots Slots) (domain.Value, error) {
	if n := slots.PopulatedCount(); n > 1 {
		return domain.Value{}, fmt.Errorf("%w: %d slots populated on one row", domain.ErrTypeMismatch, n)
	}
	if slots.PopulatedCount() == 0 {
		return domain.Value{}, nil
	}

	switch declared {
	case domain.TypeString:
		if slots.String == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.StringValue(*slots.String), nil
	case domain.TypeInteger:
		if slots.Integer == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.IntegerValue(*slots.Integer), nil
	case domain.TypeDecimal:
		if slots.Decimal == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.DecimalValue(*slots.Decimal)
	case domain.TypeBoolean:
		if slots.Boolean == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.BooleanValue(*slots.Boolean), nil
	case domain.TypeDate:
		if slots.Date == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.DateValue(*slots.Date), nil
	case domain.TypeDateTime:
		if slots.DateTime == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.DateTimeValue(*slots.DateTime), nil
	case domain.TypeText:
		if slots.Text == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.TextValue(*slots.Text), nil
	case domain.TypeJSON:
		if slots.JSON == nil {
			return domain.Value{}, slotMismatch(declared, slots)
		}
		return domain.JSONValue(json.RawMessage(slots.JSON))
	}
	return domain.Value{}, fmt.Errorf("unsupported declared type %q", declared)
}

func slotMismatch(declared domain.DeclaredType, slots Slots) error {
	populated := "none"
	switch {
	case slots.String != nil:
		populated = ColumnString
	case slots.Integer != nil:
		populated = ColumnInteger
	case slots.Decimal != nil:
		populated = ColumnDecimal
	case slots.Boolean != nil:
		populated = ColumnBoolean
	case slots.Date != nil:
		populated = ColumnDate
	case slots.DateTime != nil:
		populated = ColumnDateTime
	case slots.Text != nil:
		populated = ColumnText
	case slots.JSON != nil:
		populated = ColumnJSON
	}
	return fmt.Errorf("%w: %s attribute stored in %s", domain.ErrTypeMismatch, declared, populated)
}
