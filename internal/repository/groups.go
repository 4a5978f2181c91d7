package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// GroupEntry is one attribute of a value group.
type GroupEntry struct {
	AttributeID uuid.UUID
	Value       domain.Value
}

// WriteGroup writes the entries of one multi-attribute value group under a
// shared slot index, e.g. the name, quantity and condition of a single
// equipment item. When correlatorAttributeID is non-nil the group id is also
// written under it as an ordinary string value, so the correlation stays a
// convention on plain rows rather than a storage concept.
func WriteGroup(ctx context.Context, store ValueStore, owner domain.OwnerRef, slot int, groupID domain.GroupID, correlatorAttributeID *uuid.UUID, entries []GroupEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("value group must carry at least one entry")
	}

	for _, entry := range entries {
		if err := store.Upsert(ctx, owner, entry.AttributeID, entry.Value, slot); err != nil {
			return fmt.Errorf("group %s: %w", groupID, err)
		}
	}

	if correlatorAttributeID != nil {
		if err := store.Upsert(ctx, owner, *correlatorAttributeID, domain.StringValue(groupID.String()), slot); err != nil {
			return fmt.Errorf("group %s: %w", groupID, err)
		}
	}
	return nil
}
