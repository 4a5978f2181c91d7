package repository

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/codec"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// Column fragments shared by both value store forms.
const (
	slotInsertColumns = `value_string, value_integer, value_decimal, value_boolean,
		value_date, value_datetime, value_text, value_json`

	slotConflictSet = `value_string = EXCLUDED.value_string,
		value_integer = EXCLUDED.value_integer,
		value_decimal = EXCLUDED.value_decimal,
		value_boolean = EXCLUDED.value_boolean,
		value_date = EXCLUDED.value_date,
		value_datetime = EXCLUDED.value_datetime,
		value_text = EXCLUDED.value_text,
		value_json = EXCLUDED.value_json`
)

// slotArgs returns the eight slot values in insert column order.
func slotArgs(s codec.Slots) []any {
	var jsonArg any
	if s.JSON != nil {
		jsonArg = s.JSON
	}
	return []any{s.String, s.Integer, s.Decimal, s.Boolean, s.Date, s.DateTime, s.Text, jsonArg}
}

// scanValueRow reads one (name, declared_type, slots) projection and decodes
// it through the codec.
func scanValueRow(rows pgx.Rows) (string, domain.Value, error) {
	var name, declaredType string
	var slots codec.Slots
	if err := rows.Scan(
		&name, &declaredType,
		&slots.String, &slots.Integer, &slots.Decimal, &slots.Boolean,
		&slots.Date, &slots.DateTime, &slots.Text, &slots.JSON,
	); err != nil {
		return "", domain.Value{}, fmt.Errorf("failed to scan value row: %w", err)
	}

	value, err := codec.Decode(domain.DeclaredType(declaredType), slots)
	if err != nil {
		return "", domain.Value{}, fmt.Errorf("attribute %q: %w", name, err)
	}
	return name, value, nil
}

// querySlotColumn maps an exact-match query value onto the indexed slot it
// addresses. Only string and boolean lookups are supported.
func querySlotColumn(value domain.Value) (string, any, error) {
	switch value.Kind() {
	case domain.TypeString:
		return codec.ColumnString, value.AsString(), nil
	case domain.TypeBoolean:
		return codec.ColumnBoolean, value.AsBoolean(), nil
	}
	return "", nil, fmt.Errorf("value lookup not supported for %s attributes", value.Kind())
}
