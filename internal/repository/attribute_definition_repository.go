package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

// attributeDefinitionRepository implements AttributeDefinitionCatalog over
// the attribute_definitions table.
type attributeDefinitionRepository struct {
	conn *db.Connection
}

// NewAttributeDefinitionRepository creates a new attribute definition catalog
func NewAttributeDefinitionRepository(conn *db.Connection) AttributeDefinitionCatalog {
	return &attributeDefinitionRepository{conn: conn}
}

const attributeDefinitionColumns = `id, entity_type_id, name, display_name, description, declared_type,
	is_required, is_multi_valued, default_value, validation_rules, sort_order,
	is_active, deleted_at, created_at, updated_at`

func (r *attributeDefinitionRepository) Define(ctx context.Context, entityTypeID uuid.UUID, name string, declaredType domain.DeclaredType, cardinality domain.Cardinality, rules domain.ValidationRules, sortOrder int) (domain.AttributeDefinition, error) {
	def, err := domain.NewAttributeDefinition(entityTypeID, name, declaredType, cardinality, rules, sortOrder)
	if err != nil {
		return domain.AttributeDefinition{}, err
	}

	existing, err := r.Resolve(ctx, entityTypeID, name)
	if err == nil {
		// Definitions are never silently overwritten.
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.AttributeDefinition{}, err
	}

	row := r.conn.Pool.QueryRow(ctx, `
		INSERT INTO attribute_definitions
			(entity_type_id, name, display_name, declared_type, is_multi_valued, validation_rules, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type_id, name) WHERE deleted_at IS NULL DO NOTHING
		RETURNING `+attributeDefinitionColumns,
		def.EntityTypeID, def.Name, def.DisplayName, string(def.DeclaredType),
		def.IsMultiValued, def.RulesAsJSONB(), def.SortOrder,
	)
	created, err := scanAttributeDefinition(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.AttributeDefinition{}, fmt.Errorf("failed to define attribute: %w", err)
	}

	// Lost a race with a concurrent Define for the same name.
	return r.Resolve(ctx, entityTypeID, name)
}

func (r *attributeDefinitionRepository) Resolve(ctx context.Context, entityTypeID uuid.UUID, name string) (domain.AttributeDefinition, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+attributeDefinitionColumns+`
		FROM attribute_definitions
		WHERE entity_type_id = $1 AND name = $2 AND deleted_at IS NULL`,
		entityTypeID, name,
	)
	def, err := scanAttributeDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttributeDefinition{}, fmt.Errorf("attribute %q: %w", name, domain.ErrUnknownAttribute)
	}
	if err != nil {
		return domain.AttributeDefinition{}, fmt.Errorf("failed to resolve attribute: %w", err)
	}
	return def, nil
}

func (r *attributeDefinitionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.AttributeDefinition, error) {
	row := r.conn.Pool.QueryRow(ctx, `
		SELECT `+attributeDefinitionColumns+`
		FROM attribute_definitions
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	def, err := scanAttributeDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AttributeDefinition{}, fmt.Errorf("attribute %s: %w", id, domain.ErrUnknownAttribute)
	}
	if err != nil {
		return domain.AttributeDefinition{}, fmt.Errorf("failed to get attribute: %w", err)
	}
	return def, nil
}

func (r *attributeDefinitionRepository) List(ctx context.Context, entityTypeID uuid.UUID) ([]domain.AttributeDefinition, error) {
	rows, err := r.conn.Pool.Query(ctx, `
		SELECT `+attributeDefinitionColumns+`
		FROM attribute_definitions
		WHERE entity_type_id = $1 AND deleted_at IS NULL
		ORDER BY sort_order, name`,
		entityTypeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attribute definitions: %w", err)
	}
	defer rows.Close()

	var result []domain.AttributeDefinition
	for rows.Next() {
		def, err := scanAttributeDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attribute definition: %w", err)
		}
		result = append(result, def)
	}
	return result, rows.Err()
}

func (r *attributeDefinitionRepository) Rename(ctx context.Context, id uuid.UUID, name, displayName string) error {
	if name == "" {
		return fmt.Errorf("attribute name must not be empty")
	}
	tag, err := r.conn.Pool.Exec(ctx, `
		UPDATE attribute_definitions
		SET name = $2, display_name = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id, name, displayName,
	)
	if err != nil {
		return fmt.Errorf("failed to rename attribute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attribute %s: %w", id, domain.ErrUnknownAttribute)
	}
	return nil
}

func (r *attributeDefinitionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(ctx, `
		UPDATE attribute_definitions
		SET deleted_at = now(), is_active = FALSE, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate attribute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attribute %s: %w", id, domain.ErrUnknownAttribute)
	}
	return nil
}

func scanAttributeDefinition(row pgx.Row) (domain.AttributeDefinition, error) {
	var def domain.AttributeDefinition
	var declaredType string
	var rules []byte
	err := row.Scan(
		&def.ID, &def.EntityTypeID, &def.Name, &def.DisplayName, &def.Description, &declaredType,
		&def.IsRequired, &def.IsMultiValued, &def.DefaultValue, &rules, &def.SortOrder,
		&def.IsActive, &def.DeletedAt, &def.CreatedAt, &def.UpdatedAt,
	)
	if err != nil {
		return domain.AttributeDefinition{}, err
	}
	def.DeclaredType = domain.DeclaredType(declaredType)
	def.ValidationRules = domain.ValidationRules(rules)
	return def, nil
}
