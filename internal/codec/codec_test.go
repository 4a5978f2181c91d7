package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

func mustDecimal(t *testing.T, s string) domain.Value {
	t.Helper()
	v, err := domain.DecimalValue(s)
	require.NoError(t, err)
	return v
}

func mustJSON(t *testing.T, s string) domain.Value {
	t.Helper()
	v, err := domain.JSONValue(json.RawMessage(s))
	require.NoError(t, err)
	return v
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()

	cases := []struct {
		name     string
		declared domain.DeclaredType
		value    domain.Value
	}{
		{"string", domain.TypeString, domain.StringValue("hello")},
		{"empty string", domain.TypeString, domain.StringValue("")},
		{"integer", domain.TypeInteger, domain.IntegerValue(42)},
		{"zero integer", domain.TypeInteger, domain.IntegerValue(0)},
		{"negative integer", domain.TypeInteger, domain.IntegerValue(-7)},
		{"decimal", domain.TypeDecimal, mustDecimal(t, "19.99")},
		{"max precision decimal", domain.TypeDecimal, mustDecimal(t, "12345678901234567890.123456789012345678")},
		{"boolean", domain.TypeBoolean, domain.BooleanValue(true)},
		{"false boolean", domain.TypeBoolean, domain.BooleanValue(false)},
		{"epoch date", domain.TypeDate, domain.DateValue(epoch)},
		{"date", domain.TypeDate, domain.DateValue(time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC))},
		{"datetime", domain.TypeDateTime, domain.DateTimeValue(time.Date(2025, 3, 14, 18, 30, 12, 0, time.UTC))},
		{"text", domain.TypeText, domain.TextValue("a much longer body of text")},
		{"json", domain.TypeJSON, mustJSON(t, `{"sets":[{"reps":10}]}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			slots, err := Encode(tc.declared, tc.value)
			require.NoError(t, err)
			assert.Equal(t, 1, slots.PopulatedCount(), "encode must populate exactly one slot")

			decoded, err := Decode(tc.declared, slots)
			require.NoError(t, err)
			assert.True(t, tc.value.Equal(decoded), "round trip changed value: %s -> %s", tc.value, decoded)
		})
	}
}

func TestEncodeRejectsKindMismatch(t *testing.T) {
	cases := []struct {
		name     string
		declared domain.DeclaredType
		value    domain.Value
	}{
		{"string into integer", domain.TypeInteger, domain.StringValue("12")},
		{"integer into string", domain.TypeString, domain.IntegerValue(12)},
		{"boolean into json", domain.TypeJSON, domain.BooleanValue(true)},
		{"date into datetime", domain.TypeDateTime, domain.DateValue(time.Now())},
		{"empty value", domain.TypeString, domain.Value{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.declared, tc.value)
			assert.ErrorIs(t, err, domain.ErrTypeMismatch)
		})
	}
}

func TestDecodeRejectsMultiplePopulatedSlots(t *testing.T) {
	s := "x"
	i := int64(1)
	_, err := Decode(domain.TypeString, Slots{String: &s, Integer: &i})
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)
}

func TestDecodeRejectsWrongSlot(t *testing.T) {
	i := int64(5)
	_, err := Decode(domain.TypeString, Slots{Integer: &i})
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)
}

func TestDecodeEmptyRowYieldsZeroValue(t *testing.T) {
	v, err := Decode(domain.TypeString, Slots{})
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestSlotColumnCoversEveryDeclaredType(t *testing.T) {
	seen := make(map[string]domain.DeclaredType)
	for _, declared := range domain.AllDeclaredTypes() {
		column, err := SlotColumn(declared)
		require.NoError(t, err)
		if prev, dup := seen[column]; dup {
			t.Fatalf("column %s claimed by both %s and %s", column, prev, declared)
		}
		seen[column] = declared
	}
	assert.Len(t, seen, len(SlotColumns()))
}

func TestSlotColumnRejectsUnknownType(t *testing.T) {
	_, err := SlotColumn(domain.DeclaredType("uuid"))
	assert.Error(t, err)
}
