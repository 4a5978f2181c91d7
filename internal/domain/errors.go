package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the catalog, value stores and migrator. Callers
// match them with errors.Is; repositories wrap them with context via %w.
var (
	// ErrNotFound is returned when a registry or catalog lookup matches no
	// active row.
	ErrNotFound = errors.New("not found")

	// ErrUnknownEntityType is returned when an owner kind has no active
	// registration. It matches ErrNotFound as well.
	ErrUnknownEntityType = fmt.Errorf("unknown entity type: %w", ErrNotFound)

	// ErrUnknownAttribute is returned when a lookup or value write references
	// an attribute definition that does not exist or was deleted. It matches
	// ErrNotFound as well.
	ErrUnknownAttribute = fmt.Errorf("unknown attribute: %w", ErrNotFound)

	// ErrTypeMismatch is returned when a logical value does not encode into
	// the single slot demanded by the attribute's declared type.
	ErrTypeMismatch = errors.New("value type mismatch")

	// ErrMigrationStep is returned when a migration step fails and its
	// transaction has been rolled back.
	ErrMigrationStep = errors.New("migration step failed")
)
