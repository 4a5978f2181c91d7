package migrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
)

const singleSlotCheck = `num_nonnulls(value_string, value_integer, value_decimal, value_boolean,
	value_date, value_datetime, value_text, value_json) <= 1`

// BootstrapStep creates the generic polymorphic value table and its indexes.
// It is the first step of every sequence and a no-op when the table exists.
type BootstrapStep struct{}

// NewBootstrapStep returns the generic-table bootstrap step.
func NewBootstrapStep() BootstrapStep { return BootstrapStep{} }

func (BootstrapStep) Name() string { return "bootstrap_generic_store" }

func (BootstrapStep) Apply(ctx context.Context, tx pgx.Tx) (Result, error) {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS attribute_values (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			attribute_id UUID NOT NULL REFERENCES attribute_definitions(id) ON DELETE CASCADE,
			owner_type_tag TEXT NOT NULL,
			owner_id UUID NOT NULL,
			declared_type TEXT NOT NULL,
			value_string TEXT,
			value_integer BIGINT,
			value_decimal NUMERIC,
			value_boolean BOOLEAN,
			value_date DATE,
			value_datetime TIMESTAMPTZ,
			value_text TEXT,
			value_json JSONB,
			sort_order INTEGER NOT NULL DEFAULT 0,
			deleted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		// Uniqueness among live rows only; soft-deleted rows fall out of it.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_attribute_values_owner_attr
			ON attribute_values (owner_type_tag, owner_id, attribute_id, sort_order)
			WHERE deleted_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_values_owner
			ON attribute_values (owner_type_tag, owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_values_attribute
			ON attribute_values (attribute_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_values_string
			ON attribute_values (attribute_id, value_string) WHERE value_string IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_attribute_values_boolean
			ON attribute_values (attribute_id, value_boolean) WHERE value_boolean IS NOT NULL`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return Result{}, fmt.Errorf("bootstrap DDL failed: %w", err)
		}
	}
	return Result{}, nil
}

func (BootstrapStep) Revert(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `DROP TABLE IF EXISTS attribute_values`); err != nil {
		return fmt.Errorf("failed to drop generic value table: %w", err)
	}
	return nil
}

// IntroduceStep creates one entity type's dedicated value table and copies
// its rows out of the generic table. Generic rows are kept: both forms run in
// parallel until retirement so the application layer can still fall back.
type IntroduceStep struct {
	kind domain.OwnerKind
}

// NewIntroduceStep returns the parallel-operation introduction step for one
// entity type.
func NewIntroduceStep(kind domain.OwnerKind) IntroduceStep {
	return IntroduceStep{kind: kind}
}

func (s IntroduceStep) Name() string {
	return fmt.Sprintf("introduce_%s_store", s.kind)
}

func (s IntroduceStep) Apply(ctx context.Context, tx pgx.Tx) (Result, error) {
	et, err := lookupEntityType(ctx, tx, s.kind)
	if err != nil {
		return Result{}, err
	}
	table := pgx.Identifier{et.ValueTableName()}.Sanitize()
	backing := pgx.Identifier{et.BackingTableName}.Sanitize()

	// The primary key includes sort_order so multi-valued attributes keep
	// one row per slot, mirroring the generic form's live-row uniqueness.
	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		owner_id UUID NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
		attribute_id UUID NOT NULL REFERENCES attribute_definitions(id) ON DELETE CASCADE,
		value_string TEXT,
		value_integer BIGINT,
		value_decimal NUMERIC,
		value_boolean BOOLEAN,
		value_date DATE,
		value_datetime TIMESTAMPTZ,
		value_text TEXT,
		value_json JSONB,
		sort_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (owner_id, attribute_id, sort_order)
	)`, table, backing)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return Result{}, fmt.Errorf("failed to create %s: %w", et.ValueTableName(), err)
	}

	indexSQL := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (attribute_id, value_string) WHERE value_string IS NOT NULL`,
			pgx.Identifier{"idx_" + et.ValueTableName() + "_string"}.Sanitize(), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (attribute_id, value_boolean) WHERE value_boolean IS NOT NULL`,
			pgx.Identifier{"idx_" + et.ValueTableName() + "_boolean"}.Sanitize(), table),
	}
	for _, stmt := range indexSQL {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return Result{}, fmt.Errorf("failed to index %s: %w", et.ValueTableName(), err)
		}
	}

	// Copy rows whose owner still exists. The upsert makes re-runs
	// idempotent: last writer wins on conflicting slots.
	copySQL := fmt.Sprintf(`
		INSERT INTO %s (owner_id, attribute_id, value_string, value_integer, value_decimal,
			value_boolean, value_date, value_datetime, value_text, value_json, sort_order)
		SELECT av.owner_id, av.attribute_id, av.value_string, av.value_integer, av.value_decimal,
			av.value_boolean, av.value_date, av.value_datetime, av.value_text, av.value_json, av.sort_order
		FROM attribute_values av
		JOIN %s o ON o.id = av.owner_id
		WHERE av.owner_type_tag = $1 AND av.deleted_at IS NULL
		ON CONFLICT (owner_id, attribute_id, sort_order) DO UPDATE SET
			value_string = EXCLUDED.value_string,
			value_integer = EXCLUDED.value_integer,
			value_decimal = EXCLUDED.value_decimal,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			value_datetime = EXCLUDED.value_datetime,
			value_text = EXCLUDED.value_text,
			value_json = EXCLUDED.value_json`, table, backing)
	tag, err := tx.Exec(ctx, copySQL, string(s.kind))
	if err != nil {
		return Result{}, fmt.Errorf("failed to copy rows into %s: %w", et.ValueTableName(), err)
	}

	orphanRows, orphanOwners, err := s.collectOrphans(ctx, tx, backing)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Copied:       tag.RowsAffected(),
		Orphans:      orphanRows,
		OrphanOwners: orphanOwners,
	}, nil
}

// collectOrphans reports generic rows whose owner row no longer exists: the
// live row count, plus the distinct owners behind them for the warn logs.
// Orphans are counted, never migrated; cleanup is a manual decision.
func (s IntroduceStep) collectOrphans(ctx context.Context, tx pgx.Tx, backing string) (int64, []uuid.UUID, error) {
	countSQL := fmt.Sprintf(`
		SELECT count(*)
		FROM attribute_values av
		LEFT JOIN %s o ON o.id = av.owner_id
		WHERE av.owner_type_tag = $1 AND av.deleted_at IS NULL AND o.id IS NULL`, backing)
	var rowCount int64
	if err := tx.QueryRow(ctx, countSQL, string(s.kind)).Scan(&rowCount); err != nil {
		return 0, nil, fmt.Errorf("failed to count orphaned values: %w", err)
	}
	if rowCount == 0 {
		return 0, nil, nil
	}

	orphanSQL := fmt.Sprintf(`
		SELECT DISTINCT av.owner_id
		FROM attribute_values av
		LEFT JOIN %s o ON o.id = av.owner_id
		WHERE av.owner_type_tag = $1 AND av.deleted_at IS NULL AND o.id IS NULL
		ORDER BY av.owner_id`, backing)
	rows, err := tx.Query(ctx, orphanSQL, string(s.kind))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to detect orphaned values: %w", err)
	}
	defer rows.Close()

	var orphans []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, nil, fmt.Errorf("failed to scan orphan owner: %w", err)
		}
		orphans = append(orphans, id)
	}
	return rowCount, orphans, rows.Err()
}

func (s IntroduceStep) Revert(ctx context.Context, tx pgx.Tx) error {
	et, err := lookupEntityType(ctx, tx, s.kind)
	if err != nil {
		return err
	}

	exists, err := tableExists(ctx, tx, et.ValueTableName())
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	// The copy phase never touched the generic rows, so restoring the
	// pre-step state is just emptying the dedicated table.
	table := pgx.Identifier{et.ValueTableName()}.Sanitize()
	if _, err := tx.Exec(ctx, `TRUNCATE `+table); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", et.ValueTableName(), err)
	}
	return nil
}

// RetireStep finishes the migration of one entity type: it verifies the
// dedicated table carries everything the generic one did, enforces the
// single-slot rule at the schema level, and drops the entity type's rows from
// the generic table. Once no generic rows remain at all, the redundant
// denormalized declared_type column is dropped; the type is then derivable
// only via the join to attribute_definitions.
type RetireStep struct {
	kind domain.OwnerKind
}

// NewRetireStep returns the retirement step for one entity type. It must be
// sequenced after the type's IntroduceStep.
func NewRetireStep(kind domain.OwnerKind) RetireStep {
	return RetireStep{kind: kind}
}

func (s RetireStep) Name() string {
	return fmt.Sprintf("retire_generic_%s_rows", s.kind)
}

func (s RetireStep) Apply(ctx context.Context, tx pgx.Tx) (Result, error) {
	et, err := lookupEntityType(ctx, tx, s.kind)
	if err != nil {
		return Result{}, err
	}
	table := pgx.Identifier{et.ValueTableName()}.Sanitize()
	backing := pgx.Identifier{et.BackingTableName}.Sanitize()

	var genericCount, specificCount int64
	countSQL := fmt.Sprintf(`
		SELECT count(*) FROM attribute_values av
		JOIN %s o ON o.id = av.owner_id
		WHERE av.owner_type_tag = $1 AND av.deleted_at IS NULL`, backing)
	if err := tx.QueryRow(ctx, countSQL, string(s.kind)).Scan(&genericCount); err != nil {
		return Result{}, fmt.Errorf("failed to count generic rows: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM `+table).Scan(&specificCount); err != nil {
		return Result{}, fmt.Errorf("failed to count dedicated rows: %w", err)
	}
	// The dedicated table may be ahead (new writes land there during the
	// parallel window) but must never be behind.
	if specificCount < genericCount {
		return Result{}, fmt.Errorf("dedicated store for %q holds %d rows but the generic store holds %d; refusing to retire",
			s.kind, specificCount, genericCount)
	}

	if err := ensureCheckConstraint(ctx, tx, et.ValueTableName(), et.ValueTableName()+"_single_slot_chk"); err != nil {
		return Result{}, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM attribute_values WHERE owner_type_tag = $1`, string(s.kind))
	if err != nil {
		return Result{}, fmt.Errorf("failed to drop retired generic rows: %w", err)
	}

	// Final normalization once every entity type has left the generic table.
	var remaining int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM attribute_values`).Scan(&remaining); err != nil {
		return Result{}, fmt.Errorf("failed to count remaining generic rows: %w", err)
	}
	if remaining == 0 {
		if _, err := tx.Exec(ctx, `ALTER TABLE attribute_values DROP COLUMN IF EXISTS declared_type`); err != nil {
			return Result{}, fmt.Errorf("failed to drop denormalized type column: %w", err)
		}
		if err := ensureCheckConstraint(ctx, tx, "attribute_values", "attribute_values_single_slot_chk"); err != nil {
			return Result{}, err
		}
	}

	return Result{Copied: tag.RowsAffected()}, nil
}

func (s RetireStep) Revert(ctx context.Context, tx pgx.Tx) error {
	et, err := lookupEntityType(ctx, tx, s.kind)
	if err != nil {
		return err
	}
	table := pgx.Identifier{et.ValueTableName()}.Sanitize()

	// Restore the denormalized type column and re-derive it for any rows
	// that survived partial retirement.
	if _, err := tx.Exec(ctx, `ALTER TABLE attribute_values ADD COLUMN IF NOT EXISTS declared_type TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to restore declared_type column: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE attribute_values av SET declared_type = ad.declared_type
		FROM attribute_definitions ad
		WHERE ad.id = av.attribute_id AND av.declared_type = ''`); err != nil {
		return fmt.Errorf("failed to re-derive declared types: %w", err)
	}
	if _, err := tx.Exec(ctx, `ALTER TABLE attribute_values DROP CONSTRAINT IF EXISTS attribute_values_single_slot_chk`); err != nil {
		return fmt.Errorf("failed to drop generic single-slot constraint: %w", err)
	}

	restoreSQL := fmt.Sprintf(`
		INSERT INTO attribute_values (attribute_id, owner_type_tag, owner_id, declared_type,
			value_string, value_integer, value_decimal, value_boolean,
			value_date, value_datetime, value_text, value_json, sort_order)
		SELECT v.attribute_id, $1, v.owner_id, ad.declared_type,
			v.value_string, v.value_integer, v.value_decimal, v.value_boolean,
			v.value_date, v.value_datetime, v.value_text, v.value_json, v.sort_order
		FROM %s v
		JOIN attribute_definitions ad ON ad.id = v.attribute_id
		ON CONFLICT (owner_type_tag, owner_id, attribute_id, sort_order) WHERE deleted_at IS NULL
		DO UPDATE SET declared_type = EXCLUDED.declared_type,
			value_string = EXCLUDED.value_string,
			value_integer = EXCLUDED.value_integer,
			value_decimal = EXCLUDED.value_decimal,
			value_boolean = EXCLUDED.value_boolean,
			value_date = EXCLUDED.value_date,
			value_datetime = EXCLUDED.value_datetime,
			value_text = EXCLUDED.value_text,
			value_json = EXCLUDED.value_json,
			updated_at = now()`, table)
	if _, err := tx.Exec(ctx, restoreSQL, string(s.kind)); err != nil {
		return fmt.Errorf("failed to restore generic rows for %q: %w", s.kind, err)
	}

	dropConstraint := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`,
		table, pgx.Identifier{et.ValueTableName() + "_single_slot_chk"}.Sanitize())
	if _, err := tx.Exec(ctx, dropConstraint); err != nil {
		return fmt.Errorf("failed to drop dedicated single-slot constraint: %w", err)
	}
	return nil
}

// lookupEntityType resolves an active registration inside the step's own
// transaction so the step sees a consistent snapshot.
func lookupEntityType(ctx context.Context, tx pgx.Tx, kind domain.OwnerKind) (domain.EntityType, error) {
	var et domain.EntityType
	var name string
	err := tx.QueryRow(ctx, `
		SELECT id, name, backing_table_name FROM entity_types
		WHERE name = $1 AND deleted_at IS NULL`,
		string(kind),
	).Scan(&et.ID, &name, &et.BackingTableName)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntityType{}, fmt.Errorf("%w: %q is not registered", domain.ErrUnknownEntityType, kind)
	}
	if err != nil {
		return domain.EntityType{}, fmt.Errorf("failed to look up entity type: %w", err)
	}
	et.Name = domain.OwnerKind(name)
	return et, nil
}

func tableExists(ctx context.Context, tx pgx.Tx, name string) (bool, error) {
	var regclass *string
	if err := tx.QueryRow(ctx, `SELECT to_regclass($1)::text`, name).Scan(&regclass); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return regclass != nil, nil
}

// ensureCheckConstraint adds the single-slot CHECK when it is not already
// present, keeping re-runs idempotent.
func ensureCheckConstraint(ctx context.Context, tx pgx.Tx, tableName, constraintName string) error {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = $1)`,
		constraintName,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check constraint %s: %w", constraintName, err)
	}
	if exists {
		return nil
	}

	stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)`,
		pgx.Identifier{tableName}.Sanitize(),
		pgx.Identifier{constraintName}.Sanitize(),
		singleSlotCheck,
	)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to add constraint %s: %w", constraintName, err)
	}
	return nil
}
