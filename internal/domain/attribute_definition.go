package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeclaredType is the declared storage type of a dynamic attribute. Each type
// maps to exactly one physical slot column in the value tables.
type DeclaredType string

const (
	TypeString   DeclaredType = "string"
	TypeInteger  DeclaredType = "integer"
	TypeDecimal  DeclaredType = "decimal"
	TypeBoolean  DeclaredType = "boolean"
	TypeDate     DeclaredType = "date"
	TypeDateTime DeclaredType = "datetime"
	TypeText     DeclaredType = "text"
	TypeJSON     DeclaredType = "json"
)

// AllDeclaredTypes returns the eight supported declared types.
func AllDeclaredTypes() []DeclaredType {
	return []DeclaredType{
		TypeString, TypeInteger, TypeDecimal, TypeBoolean,
		TypeDate, TypeDateTime, TypeText, TypeJSON,
	}
}

// Valid reports whether the declared type is one of the supported eight.
func (t DeclaredType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDecimal, TypeBoolean, TypeDate, TypeDateTime, TypeText, TypeJSON:
		return true
	}
	return false
}

func (t DeclaredType) String() string { return string(t) }

// Cardinality declares whether an attribute holds one value or an ordered set
// of values per owner.
type Cardinality string

const (
	CardinalitySingle Cardinality = "single"
	CardinalityMulti  Cardinality = "multi"
)

// ValidationRules is opaque caller-interpreted metadata (min/max/pattern/enum
// and the like). The storage layer persists it as JSONB and never enforces it;
// only type-slot correctness is enforced at write time.
type ValidationRules json.RawMessage

// AttributeDefinition declares the schema for one dynamic attribute of an
// entity type. Uniqueness of (EntityTypeID, Name) holds among non-deleted
// definitions only, so a name can be redefined after deactivation.
type AttributeDefinition struct {
	ID              uuid.UUID       `json:"id"`
	EntityTypeID    uuid.UUID       `json:"entity_type_id"`
	Name            string          `json:"name"`
	DisplayName     string          `json:"display_name"`
	Description     string          `json:"description"`
	DeclaredType    DeclaredType    `json:"declared_type"`
	IsRequired      bool            `json:"is_required"`
	IsMultiValued   bool            `json:"is_multi_valued"`
	DefaultValue    string          `json:"default_value"`
	ValidationRules ValidationRules `json:"validation_rules,omitempty"`
	SortOrder       int             `json:"sort_order"`
	IsActive        bool            `json:"is_active"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewAttributeDefinition creates an active definition. The name and declared
// type are validated here; everything else is caller metadata.
func NewAttributeDefinition(entityTypeID uuid.UUID, name string, declaredType DeclaredType, cardinality Cardinality, rules ValidationRules, sortOrder int) (AttributeDefinition, error) {
	if name == "" {
		return AttributeDefinition{}, fmt.Errorf("attribute name must not be empty")
	}
	if !declaredType.Valid() {
		return AttributeDefinition{}, fmt.Errorf("unsupported declared type %q", declaredType)
	}
	now := time.Now()
	return AttributeDefinition{
		ID:              uuid.New(),
		EntityTypeID:    entityTypeID,
		Name:            name,
		DisplayName:     name,
		DeclaredType:    declaredType,
		IsMultiValued:   cardinality == CardinalityMulti,
		ValidationRules: rules,
		SortOrder:       sortOrder,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// RulesAsJSONB returns the validation rules in the form stored in the
// validation_rules column, defaulting to an empty object.
func (ad AttributeDefinition) RulesAsJSONB() []byte {
	if len(ad.ValidationRules) == 0 {
		return []byte("{}")
	}
	return []byte(ad.ValidationRules)
}
