package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// EntityTypeRegistry defines the interface for entity type registration
type EntityTypeRegistry interface {
	// Register is idempotent: it returns the existing active registration
	// for the kind when one exists, otherwise creates it.
	Register(ctx context.Context, kind domain.OwnerKind, backingTableName, description string) (domain.EntityType, error)
	Resolve(ctx context.Context, kind domain.OwnerKind) (domain.EntityType, error)
	List(ctx context.Context) ([]domain.EntityType, error)
	// Deactivate soft-deletes the registration. Attribute definitions are
	// kept; the name may be registered again afterwards.
	Deactivate(ctx context.Context, kind domain.OwnerKind) error
}

// AttributeDefinitionCatalog defines the interface for attribute schema
// declarations owned by an entity type.
type AttributeDefinitionCatalog interface {
	// Define is idempotent by (entityTypeID, name) among active rows; an
	// existing definition is returned unmodified, never overwritten.
	Define(ctx context.Context, entityTypeID uuid.UUID, name string, declaredType domain.DeclaredType, cardinality domain.Cardinality, rules domain.ValidationRules, sortOrder int) (domain.AttributeDefinition, error)
	Resolve(ctx context.Context, entityTypeID uuid.UUID, name string) (domain.AttributeDefinition, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.AttributeDefinition, error)
	// List returns active definitions ordered by sort_order, then name.
	List(ctx context.Context, entityTypeID uuid.UUID) ([]domain.AttributeDefinition, error)
	Rename(ctx context.Context, id uuid.UUID, name, displayName string) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// AttributeValues maps attribute names to their decoded values ordered by
// sort order. Single-valued attributes carry one element.
type AttributeValues map[string][]domain.Value

// ValueStore persists attribute values for entity instances. The generic
// (polymorphic) and entity-specific implementations expose identical
// semantics; callers never address typed slot columns directly.
type ValueStore interface {
	// Upsert writes or replaces the value for (owner, attributeID,
	// sortOrder). Multi-valued attributes use distinct sort orders.
	Upsert(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID, value domain.Value, sortOrder int) error
	Get(ctx context.Context, owner domain.OwnerRef) (AttributeValues, error)
	// QueryByValue looks owners up by an exact match on an indexed slot;
	// string and boolean values are supported.
	QueryByValue(ctx context.Context, attributeID uuid.UUID, value domain.Value) ([]domain.OwnerRef, error)
	// Remove discards the values for (owner, attributeID). The generic form
	// soft-deletes; the entity-specific form has no independent deletion
	// primitive and removes rows only via owner cascade.
	Remove(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID) error
}
