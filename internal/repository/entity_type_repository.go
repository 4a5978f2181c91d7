package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// entityTypeRepository implements EntityTypeRegistry over the entity_types
// table.
type entityTypeRepository struct {
	conn *db.Connection
}

// NewEntityTypeRepository creates a new entity type registry
func NewEntityTypeRepository(conn *db.Connection) EntityTypeRegistry {
	return &entityTypeRepository{conn: conn}
}

const entityTypeColumns = `id, name, backing_table_name, description, is_active, deleted_at, created_at, updated_at`

func (r *entityTypeRepository) Register(ctx context.Context, kind domain.OwnerKind, backingTableName, description string) (domain.EntityType, error) {
	if !kind.Valid() {
		return domain.EntityType{}, fmt.Errorf("%w: %q", domain.ErrUnknownEntityType, kind)
	}

	existing, err := r.Resolve(ctx, kind)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.EntityType{}, err
	}

	// The partial unique index serializes racing registrations; the loser's
	// insert matches the conflict target and we fall back to the winner's row.
	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO entity_types (name, backing_table_name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) WHERE deleted_at IS NULL DO NOTHING
		RETURNING `+entityTypeColumns,
		string(kind), backingTableName, description,
	)
	created, err := scanEntityType(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.EntityType{}, fmt.Errorf("failed to register entity type: %w", err)
	}

	return r.Resolve(ctx, kind)
}

func (r *entityTypeRepository) Resolve(ctx context.Context, kind domain.OwnerKind) (domain.EntityType, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+entityTypeColumns+`
		FROM entity_types
		WHERE name = $1 AND deleted_at IS NULL`,
		string(kind),
	)
	et, err := scanEntityType(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntityType{}, fmt.Errorf("entity type %q: %w", kind, domain.ErrUnknownEntityType)
	}
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("failed to resolve entity type: %w", err)
	}
	return et, nil
}

func (r *entityTypeRepository) List(ctx context.Context) ([]domain.EntityType, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+entityTypeColumns+`
		FROM entity_types
		WHERE deleted_at IS NULL
		ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity types: %w", err)
	}
	defer rows.Close()

	var result []domain.EntityType
	for rows.Next() {
		et, err := scanEntityType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity type: %w", err)
		}
		result = append(result, et)
	}
	return result, rows.Err()
}

func (r *entityTypeRepository) Deactivate(ctx context.Context, kind domain.OwnerKind) error {
	tag, err := r.conn.Pool.Exec(ctx, `
		UPDATE entity_types
		SET deleted_at = now(), is_active = FALSE, updated_at = now()
		WHERE name = $1 AND deleted_at IS NULL`,
		string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate entity type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity type %q: %w", kind, domain.ErrUnknownEntityType)
	}
	return nil
}

func scanEntityType(row pgx.Row) (domain.EntityType, error) {
	var et domain.EntityType
	var name string
	err := row.Scan(&et.ID, &name, &et.BackingTableName, &et.Description, &et.IsActive, &et.DeletedAt, &et.CreatedAt, &et.UpdatedAt)
	if err != nil {
		return domain.EntityType{}, err
	}
	et.Name = domain.OwnerKind(name)
	return et, nil
}
