package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/codec"
	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// genericValueRepository implements ValueStore over the polymorphic
// attribute_values table. Owner identity is the (owner_type_tag, owner_id)
// pair; rows are soft-deleted and uniqueness holds among live rows only.
type genericValueRepository struct {
	conn *db.Connection
}

// NewGenericValueRepository creates the generic (polymorphic) value store
func NewGenericValueRepository(conn *db.Connection) ValueStore {
	return &genericValueRepository{conn: conn}
}

func (r *genericValueRepository) Upsert(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID, value domain.Value, sortOrder int) error {
	if !owner.Kind.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, owner.Kind)
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

		args := append([]any{attributeID, string(owner.Kind), owner.ID, string(declared)}, slotArgs(slots)...)
		args = append(args, sortOrder)

		_, err = tx.Exec(ctx, `
			INSERT INTO attribute_values
				(attribute_id, owner_type_tag, owner_id, declared_type, `+slotInsertColumns+`, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (owner_type_tag, owner_id, attribute_id, sort_order) WHERE deleted_at IS NULL
			DO UPDATE SET declared_type = EXCLUDED.declared_type, `+slotConflictSet+`, updated_at = now()`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert attribute value: %w", err)
		}
		return nil
	})
}

func (r *genericValueRepository) Get(ctx context.Context, owner domain.OwnerRef) (AttributeValues, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT ad.name, ad.declared_type, `+slotSelectColumnsAliased("av")+`
		FROM attribute_values av
		JOIN attribute_definitions ad ON ad.id = av.attribute_id
		WHERE av.owner_type_tag = $1 AND av.owner_id = $2 AND av.deleted_at IS NULL
		ORDER BY ad.sort_order, ad.name, av.sort_order`,
		string(owner.Kind), owner.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attribute values: %w", err)
	}
	defer rows.Close()

	return collectValues(rows)
}

func (r *genericValueRepository) QueryByValue(ctx context.Context, attributeID uuid.UUID, value domain.Value) ([]domain.OwnerRef, error) {
	column, arg, err := querySlotColumn(value)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Pool.Query(ctx, `
		SELECT DISTINCT owner_type_tag, owner_id
		FROM attribute_values
		WHERE attribute_id = $1 AND `+column+` = $2 AND deleted_at IS NULL
		ORDER BY owner_type_tag, owner_id`,
		attributeID, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query by value: %w", err)
	}
	defer rows.Close()

	var owners []domain.OwnerRef
	for rows.Next() {
		var tag string
		var id uuid.UUID
		if err := rows.Scan(&tag, &id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, domain.OwnerRef{Kind: domain.OwnerKind(tag), ID: id})
	}
	return owners, rows.Err()
}

func (r *genericValueRepository) Remove(ctx context.Context, owner domain.OwnerRef, attributeID uuid.UUID) error {
	_, err := r.conn.Pool.Exec(ctx, `
		UPDATE attribute_values
		SET deleted_at = now(), updated_at = now()
		WHERE owner_type_tag = $1 AND owner_id = $2 AND attribute_id = $3 AND deleted_at IS NULL`,
		string(owner.Kind), owner.ID, attributeID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove attribute value: %w", err)
	}
	return nil
}

// resolveDeclaredType loads the declared type for a live attribute definition
// inside the caller's transaction.
func resolveDeclaredType(ctx context.Context, tx pgx.Tx, attributeID uuid.UUID) (domain.DeclaredType, error) {
	var declared string
	err := tx.QueryRow(ctx, `
		SELECT declared_type FROM attribute_definitions
		WHERE id = $1 AND deleted_at IS NULL`,
		attributeID,
	).Scan(&declared)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("attribute %s: %w", attributeID, domain.ErrUnknownAttribute)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve declared type: %w", err)
	}
	return domain.DeclaredType(declared), nil
}

// collectValues folds decoded rows into the name-keyed result map, keeping
// the query's sort order within each attribute.
func collectValues(rows pgx.Rows) (AttributeValues, error) {
	values := make(AttributeValues)
	for rows.Next() {
		name, value, err := scanValueRow(rows)
		if err != nil {
			return nil, err
		}
		values[name] = append(values[name], value)
	}
	return values, rows.Err()
}

// slotSelectColumnsAliased prefixes every slot column with the table alias.
// The decimal slot is selected as text so precision survives the round trip
// unchanged.
func slotSelectColumnsAliased(alias string) string {
	return alias + `.value_string, ` + alias + `.value_integer, ` + alias + `.value_decimal::text, ` +
		alias + `.value_boolean, ` + alias + `.value_date, ` + alias + `.value_datetime, ` +
		alias + `.value_text, ` + alias + `.value_json`
}
