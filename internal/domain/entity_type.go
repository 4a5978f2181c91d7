package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerKind identifies a registered kind of business object that may carry
// dynamic attributes. The set is closed: adding a new kind means adding a
// constant here and registering it at bootstrap, so an unregistered owner
// kind is caught at compile time rather than as a stray string tag.
type OwnerKind string

const (
	OwnerKindUser       OwnerKind = "user"
	OwnerKindRole       OwnerKind = "role"
	OwnerKindFacility   OwnerKind = "facility"
	OwnerKindInstructor OwnerKind = "instructor"
	OwnerKindAssessment OwnerKind = "assessment"
)

// AllOwnerKinds returns every supported owner kind in registration order.
func AllOwnerKinds() []OwnerKind {
	return []OwnerKind{
		OwnerKindUser,
		OwnerKindRole,
		OwnerKindFacility,
		OwnerKindInstructor,
		OwnerKindAssessment,
	}
}

// Valid reports whether the kind is one of the closed set.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerKindUser, OwnerKindRole, OwnerKindFacility, OwnerKindInstructor, OwnerKindAssessment:
		return true
	}
	return false
}

func (k OwnerKind) String() string { return string(k) }

// OwnerRef identifies one concrete entity instance across any backing table.
// The polymorphic (owner_type_tag, owner_id) pair in the generic value table
// is the persisted form of this reference.
type OwnerRef struct {
	Kind OwnerKind
	ID   uuid.UUID
}

// NewOwnerRef builds a reference and rejects kinds outside the closed set.
func NewOwnerRef(kind OwnerKind, id uuid.UUID) (OwnerRef, error) {
	if !kind.Valid() {
		return OwnerRef{}, fmt.Errorf("%w: %q", ErrUnknownEntityType, kind)
	}
	return OwnerRef{Kind: kind, ID: id}, nil
}

func (o OwnerRef) String() string {
	return fmt.Sprintf("%s/%s", o.Kind, o.ID)
}

// EntityType is a registered kind of business object eligible for dynamic
// attributes. Soft-deleted rather than removed so attribute definitions stay
// resolvable for audit.
type EntityType struct {
	ID               uuid.UUID  `json:"id"`
	Name             OwnerKind  `json:"name"`
	BackingTableName string     `json:"backing_table_name"`
	Description      string     `json:"description"`
	IsActive         bool       `json:"is_active"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewEntityType creates an active entity type registration.
func NewEntityType(name OwnerKind, backingTableName, description string) EntityType {
	now := time.Now()
	return EntityType{
		ID:               uuid.New(),
		Name:             name,
		BackingTableName: backingTableName,
		Description:      description,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// ValueTableName returns the name of the dedicated attribute value table used
// once this entity type has been migrated off the generic store, e.g.
// "role_attribute_values" for the role kind.
func (et EntityType) ValueTableName() string {
	return string(et.Name) + "_attribute_values"
}
