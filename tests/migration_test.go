package tests

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/migrator"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

// seedUserValues prepares a registered user entity type with a backing table,
// two live owners with one value each, and one orphaned generic row.
func seedUserValues(t *testing.T, conn *db.Connection) (def domain.AttributeDefinition, owners []domain.OwnerRef, orphanID uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	bootstrapGenericStore(t, conn)
	_, def = registerWithAttribute(t, conn, domain.OwnerKindUser, "nickname", domain.TypeString)
	insertOwner := createBackingTable(t, conn, "users")

	store := repository.NewGenericValueRepository(conn)
	for _, nick := range []string{"Flip", "Torpedo"} {
		owner, err := domain.NewOwnerRef(domain.OwnerKindUser, insertOwner())
		require.NoError(t, err)
		require.NoError(t, store.Upsert(ctx, owner, def.ID, domain.StringValue(nick), 0))
		owners = append(owners, owner)
	}

	// One generic row whose owner does not exist in the backing table.
	orphan, err := domain.NewOwnerRef(domain.OwnerKindUser, uuid.New())
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, orphan, def.ID, domain.StringValue("Ghost"), 0))
	orphanID = orphan.ID
	return def, owners, orphanID
}

func TestIntroduceStepCopiesRowsAndReportsOrphans(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	_, owners, orphanID := seedUserValues(t, conn)

	// A second attribute for the same missing owner: the orphan counter
	// reports rows, while the warn log fires once per owner.
	registry := repository.NewEntityTypeRepository(conn)
	et, err := registry.Resolve(ctx, domain.OwnerKindUser)
	require.NoError(t, err)
	catalog := repository.NewAttributeDefinitionRepository(conn)
	motto, err := catalog.Define(ctx, et.ID, "motto", domain.TypeString, domain.CardinalitySingle, nil, 1)
	require.NoError(t, err)
	store := repository.NewGenericValueRepository(conn)
	orphan, err := domain.NewOwnerRef(domain.OwnerKindUser, orphanID)
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, orphan, motto.ID, domain.StringValue("just keep swimming"), 0))

	core, logs := observer.New(zap.InfoLevel)
	m := migrator.New(conn, zap.New(core),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	var copied int
	err = conn.Pool.QueryRow(ctx, `SELECT count(*) FROM user_attribute_values`).Scan(&copied)
	require.NoError(t, err)
	assert.Equal(t, len(owners), copied, "live rows are copied, orphans are not")

	var orphansReported int64
	for _, entry := range logs.FilterMessage("applied migration step").All() {
		fields := entry.ContextMap()
		if fields["step"] == "introduce_user_store" {
			orphansReported = fields["orphans"].(int64)
		}
	}
	assert.EqualValues(t, 2, orphansReported, "both rows of the missing owner count")

	warnings := logs.FilterMessage("orphaned attribute values left in generic table").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, orphanID.String(), warnings[0].ContextMap()["owner_id"])

	// The orphaned generic rows are reported but untouched.
	var orphanRows int
	err = conn.Pool.QueryRow(ctx,
		`SELECT count(*) FROM attribute_values WHERE owner_id = $1 AND deleted_at IS NULL`,
		orphanID,
	).Scan(&orphanRows)
	require.NoError(t, err)
	assert.Equal(t, 2, orphanRows)
}

func TestParallelWindowStoresAreEquivalent(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	def, owners, _ := seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	registry := repository.NewEntityTypeRepository(conn)
	et, err := registry.Resolve(ctx, domain.OwnerKindUser)
	require.NoError(t, err)

	generic := repository.NewGenericValueRepository(conn)
	specific := repository.NewEntityValueRepository(conn, et)

	for _, owner := range owners {
		fromGeneric, err := generic.Get(ctx, owner)
		require.NoError(t, err)
		fromSpecific, err := specific.Get(ctx, owner)
		require.NoError(t, err)

		require.Equal(t, len(fromGeneric), len(fromSpecific))
		for name, genericValues := range fromGeneric {
			specificValues := fromSpecific[name]
			require.Len(t, specificValues, len(genericValues), "attribute %s", name)
			for i := range genericValues {
				assert.True(t, genericValues[i].Equal(specificValues[i]),
					"attribute %s slot %d differs between forms", name, i)
			}
		}
	}

	// Lookups agree as well.
	genericOwners, err := generic.QueryByValue(ctx, def.ID, domain.StringValue("Flip"))
	require.NoError(t, err)
	specificOwners, err := specific.QueryByValue(ctx, def.ID, domain.StringValue("Flip"))
	require.NoError(t, err)
	require.Len(t, genericOwners, 1)
	require.Len(t, specificOwners, 1)
	assert.Equal(t, genericOwners[0], specificOwners[0])
}

func TestRetireStepRefusesWhenDedicatedStoreIsBehind(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	def, owners, _ := seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	// A generic-only write for a live owner during the parallel window makes
	// the dedicated table fall behind.
	generic := repository.NewGenericValueRepository(conn)
	require.NoError(t, generic.Upsert(ctx, owners[0], def.ID, domain.StringValue("late write"), 7))

	retiring := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
		migrator.NewRetireStep(domain.OwnerKindUser),
	)
	err := retiring.Up(ctx)
	require.ErrorIs(t, err, domain.ErrMigrationStep)
	assert.ErrorContains(t, err, "refusing to retire")

	// The failed step left no journal entry and no data change.
	applied, err := retiring.Status(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	var genericRows int
	require.NoError(t, conn.Pool.QueryRow(ctx,
		`SELECT count(*) FROM attribute_values WHERE deleted_at IS NULL`).Scan(&genericRows))
	assert.Equal(t, 4, genericRows, "two seeded, one orphan, one late write")
}

func TestRetireStepNormalizesGenericTable(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	_, owners, orphanID := seedUserValues(t, conn)

	// Retirement requires the orphan to be resolved first; clear it so the
	// generic table can empty out completely.
	_, err := conn.Pool.Exec(ctx, `DELETE FROM attribute_values WHERE owner_id = $1`, orphanID)
	require.NoError(t, err)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
		migrator.NewRetireStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	var genericRows int
	require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM attribute_values`).Scan(&genericRows))
	assert.Zero(t, genericRows)

	// declared_type is gone once the generic table has fully emptied.
	var hasColumn bool
	require.NoError(t, conn.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'attribute_values' AND column_name = 'declared_type'
		)`).Scan(&hasColumn))
	assert.False(t, hasColumn)

	// Both tables carry the single-slot CHECK.
	for _, name := range []string{"attribute_values_single_slot_chk", "user_attribute_values_single_slot_chk"} {
		var exists bool
		require.NoError(t, conn.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = $1)`, name).Scan(&exists))
		assert.True(t, exists, "missing constraint %s", name)
	}

	// Values survived the move.
	registry := repository.NewEntityTypeRepository(conn)
	et, err := registry.Resolve(ctx, domain.OwnerKindUser)
	require.NoError(t, err)
	specific := repository.NewEntityValueRepository(conn, et)
	got, err := specific.Get(ctx, owners[0])
	require.NoError(t, err)
	require.Len(t, got["nickname"], 1)
	assert.Equal(t, "Flip", got["nickname"][0].AsString())
}

func TestRetireStepRevertRestoresGenericRows(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	_, owners, orphanID := seedUserValues(t, conn)
	_, err := conn.Pool.Exec(ctx, `DELETE FROM attribute_values WHERE owner_id = $1`, orphanID)
	require.NoError(t, err)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
		migrator.NewRetireStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Down(ctx))

	applied, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2, "only the retirement was reverted")

	generic := repository.NewGenericValueRepository(conn)
	got, err := generic.Get(ctx, owners[0])
	require.NoError(t, err)
	require.Len(t, got["nickname"], 1)
	assert.Equal(t, "Flip", got["nickname"][0].AsString())
}

func TestIntroduceStepRevertEmptiesDedicatedTable(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Down(ctx))

	var rows int
	require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM user_attribute_values`).Scan(&rows))
	assert.Zero(t, rows)

	// Generic rows were never touched by the copy, so nothing else changed.
	require.NoError(t, conn.Pool.QueryRow(ctx,
		`SELECT count(*) FROM attribute_values WHERE deleted_at IS NULL`).Scan(&rows))
	assert.Equal(t, 3, rows)

	// Reverting the bootstrap drops the generic table entirely.
	require.NoError(t, m.Down(ctx))
	var regclass *string
	require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT to_regclass('attribute_values')::text`).Scan(&regclass))
	assert.Nil(t, regclass)

	// Nothing left to revert.
	require.NoError(t, m.Down(ctx))
}

func TestMigratorUpIsIdempotent(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	before, err := m.Status(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Up(ctx))
	after, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMigratorRejectsChangedStepSequence(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	createBackingTable(t, conn, "roles")
	registerWithAttribute(t, conn, domain.OwnerKindRole, "scope", domain.TypeString)

	reordered := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindRole),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	err := reordered.Up(ctx)
	assert.ErrorContains(t, err, "journal mismatch")
}

func TestOwnerDeletionCascadesDedicatedRows(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	_, owners, _ := seedUserValues(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindUser),
	)
	require.NoError(t, m.Up(ctx))

	victim := owners[0]
	_, err := conn.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, victim.ID)
	require.NoError(t, err)

	var dedicated int
	require.NoError(t, conn.Pool.QueryRow(ctx,
		`SELECT count(*) FROM user_attribute_values WHERE owner_id = $1`, victim.ID).Scan(&dedicated))
	assert.Zero(t, dedicated, "dedicated rows follow the owner by cascade")

	// The generic form has no foreign key to the owner: its rows stay and
	// become orphans.
	var generic int
	require.NoError(t, conn.Pool.QueryRow(ctx,
		`SELECT count(*) FROM attribute_values WHERE owner_id = $1 AND deleted_at IS NULL`, victim.ID).Scan(&generic))
	assert.Equal(t, 1, generic)
}

func TestIntroduceStepRequiresRegisteredEntityType(t *testing.T) {
	conn := newConn(t)
	bootstrapGenericStore(t, conn)

	m := migrator.New(conn, zap.NewNop(),
		migrator.NewBootstrapStep(),
		migrator.NewIntroduceStep(domain.OwnerKindFacility),
	)
	err := m.Up(context.Background())
	require.ErrorIs(t, err, domain.ErrMigrationStep)
}
