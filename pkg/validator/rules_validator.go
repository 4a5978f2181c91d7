// Package validator interprets the validation_rules metadata attached to
// attribute definitions. The storage layer treats those rules as opaque and
// enforces only type-slot correctness; callers that want min/max/pattern/enum
// checks run them here before writing.
package validator

import (
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// RuleSet is the recognized shape of an attribute's validation_rules document.
// Unknown keys are ignored so rule documents can carry caller-private
// metadata alongside.
type RuleSet struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   *string  `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Enum      []string `json:"enum,omitempty"`
}

// ValidationError reports one failed rule.
type ValidationError struct {
	Attribute string `json:"attribute"`
	Rule      string `json:"rule"`
	Message   string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Attribute, e.Message)
}

// RulesValidator checks values against their definition's rules.
type RulesValidator struct{}

// NewRulesValidator creates a rules validator.
func NewRulesValidator() *RulesValidator {
	return &RulesValidator{}
}

// Validate applies the definition's rules to the value and returns every
// failure. A definition with no rules, or rules that do not apply to the
// declared type, validates everything.
func (v *RulesValidator) Validate(def domain.AttributeDefinition, value domain.Value) ([]ValidationError, error) {
	rules, err := ParseRules(def.ValidationRules)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", def.Name, err)
	}

	var failures []ValidationError
	fail := func(rule, format string, args ...any) {
		failures = append(failures, ValidationError{
			Attribute: def.Name,
			Rule:      rule,
			Message:   fmt.Sprintf(format, args...),
		})
	}

	switch value.Kind() {
	case domain.TypeString, domain.TypeText:
		s := value.AsString()
		if rules.MinLength != nil && len(s) < *rules.MinLength {
			fail("min_length", "length %d is below the minimum of %d", len(s), *rules.MinLength)
		}
		if rules.MaxLength != nil && len(s) > *rules.MaxLength {
			fail("max_length", "length %d exceeds the maximum of %d", len(s), *rules.MaxLength)
		}
		if rules.Pattern != nil {
			re, err := regexp.Compile(*rules.Pattern)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: invalid pattern rule: %w", def.Name, err)
			}
			if !re.MatchString(s) {
				fail("pattern", "value does not match %q", *rules.Pattern)
			}
		}
		if len(rules.Enum) > 0 && !contains(rules.Enum, s) {
			fail("enum", "value %q is not one of the allowed values", s)
		}

	case domain.TypeInteger:
		n := float64(value.AsInteger())
		if rules.Min != nil && n < *rules.Min {
			fail("min", "value %d is below the minimum of %v", value.AsInteger(), *rules.Min)
		}
		if rules.Max != nil && n > *rules.Max {
			fail("max", "value %d exceeds the maximum of %v", value.AsInteger(), *rules.Max)
		}

	case domain.TypeDecimal:
		// Decimals are compared through big.Float so canonical strings keep
		// their precision during the bound check.
		n, ok := new(big.Float).SetString(value.AsString())
		if !ok {
			return nil, fmt.Errorf("attribute %q: unparseable decimal %q", def.Name, value.AsString())
		}
		if rules.Min != nil && n.Cmp(big.NewFloat(*rules.Min)) < 0 {
			fail("min", "value %s is below the minimum of %v", value.AsString(), *rules.Min)
		}
		if rules.Max != nil && n.Cmp(big.NewFloat(*rules.Max)) > 0 {
			fail("max", "value %s exceeds the maximum of %v", value.AsString(), *rules.Max)
		}
	}

	return failures, nil
}

// ParseRules decodes a rules document, tolerating the empty default.
func ParseRules(raw domain.ValidationRules) (RuleSet, error) {
	if len(raw) == 0 {
		return RuleSet{}, nil
	}
	var rules RuleSet
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return RuleSet{}, fmt.Errorf("invalid validation rules: %w", err)
	}
	return rules, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
