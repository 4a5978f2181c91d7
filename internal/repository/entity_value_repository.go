package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/codec"
	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// entityValueRepository implements ValueStore over one entity type's
// dedicated value table. The owner is a direct foreign key into the backing
// table, so value lifecycle is bound to the owner row by cascade and there is
// no soft delete and no denormalized type column.
type entityValueRepository struct {
	conn       *db.Connection
	entityType domain.EntityType
	table      string
}

// NewEntityValueRepository creates the value store bound to one migrated
// entity type.
func NewEntityValueRepository(conn *db.Connection, entityType domain.EntityType) ValueStore {
	return &entityValueRepository{
		conn:       conn,
		entityType: entityType,
		table:      pgx.Identifier{entityType.ValueTableName()}.Sanitize(),
	}
}

func (r *entityValueRepository) Upsert(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID, value domain.Value, sortOrder int) error {
	if err := r.checkOwner(owner); err != nil {
		return err
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		declared, err := resolveDeclaredType(ctx, tx, attributeID)
		if err != nil {
			return err
		}

		slots, err := codec.Encode(declared, value)
		if err != nil {
			return err
		}

		args := append([]any{owner.ID, attributeID}, slotArgs(slots)...)
		args = append(args, sortOrder)

		_, err = tx.Exec(ctx, `
			INSERT INTO `+r.table+`
				(owner_id, attribute_id, `+slotInsertColumns+`, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (owner_id, attribute_id, sort_order)
			DO UPDATE SET `+slotConflictSet,
			args...,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert attribute value: %w", err)
		}
		return nil
	})
}

func (r *entityValueRepository) Get(ctx context.Context, owner domain.OwnerRef) (AttributeValues, error) {
	if err := r.checkOwner(owner); err != nil {
		return nil, err
	}

	// Declared type is not stored here; it is derived via the join.
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT ad.name, ad.declared_type, `+slotSelectColumnsAliased("v")+`
		FROM `+r.table+` v
		JOIN attribute_definitions ad ON ad.id = v.attribute_id
		WHERE v.owner_id = $1
		ORDER BY ad.sort_order, ad.name, v.sort_order`,
		owner.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute values: %w", err)
	}
	defer rows.Close()

	return collectValues(rows)
}

func (r *entityValueRepository) QueryByValue(ctx context.Context, attributeID uuid.UUID, value domain.Value) ([]domain.OwnerRef, error) {
	column, arg, err := querySlotColumn(value)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Pool.Query(ctx, `
		SELECT DISTINCT owner_id
		FROM `+r.table+`
		WHERE attribute_id = $1 AND `+column+` = $2
		ORDER BY owner_id`,
		attributeID, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query by value: %w", err)
	}
	defer rows.Close()

	var owners []domain.OwnerRef
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, domain.OwnerRef{Kind: r.entityType.Name, ID: id})
	}
	return owners, rows.Err()
}

// Remove is deliberately a no-op: the entity-specific form has no independent
// deletion primitive. Rows disappear only when the owning row is deleted and
// the foreign key cascades.
func (r *entityValueRepository) Remove(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID) error {
	return r.checkOwner(owner)
}

func (r *entityValueRepository) checkOwner(owner domain.OwnerRef) error {
	if owner.Kind != r.entityType.Name {
		return fmt.Errorf("%w: store for %q cannot address %q owners",
			domain.ErrUnknownEntityType, r.entityType.Name, owner.Kind)
	}
	return nil
}
