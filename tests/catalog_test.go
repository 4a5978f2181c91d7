package tests

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

func TestRegisterEntityTypeIsIdempotent(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	registry := repository.NewEntityTypeRepository(conn)

	first, err := registry.Register(ctx, domain.OwnerKindUser, "users", "platform users")
	require.NoError(t, err)

	second, err := registry.Register(ctx, domain.OwnerKindUser, "users_v2", "changed description")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeat registration must return the existing row")
	assert.Equal(t, "users", second.BackingTableName, "repeat registration must not overwrite")

	all, err := registry.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestResolveUnknownEntityType(t *testing.T) {
	conn := newConn(t)
	registry := repository.NewEntityTypeRepository(conn)

	_, err := registry.Resolve(context.Background(), domain.OwnerKindFacility)
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)
}

func TestDeactivateFreesTheNameForReRegistration(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	registry := repository.NewEntityTypeRepository(conn)

	first, err := registry.Register(ctx, domain.OwnerKindRole, "roles", "")
	require.NoError(t, err)

	require.NoError(t, registry.Deactivate(ctx, domain.OwnerKindRole))
	_, err = registry.Resolve(ctx, domain.OwnerKindRole)
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)

	again, err := registry.Register(ctx, domain.OwnerKindRole, "roles", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, again.ID, "re-registration creates a fresh row")
}

func TestDeactivateUnknownEntityType(t *testing.T) {
	conn := newConn(t)
	registry := repository.NewEntityTypeRepository(conn)

	err := registry.Deactivate(context.Background(), domain.OwnerKindAssessment)
	assert.ErrorIs(t, err, domain.ErrUnknownEntityType)
}

func TestDefineAttributeIsIdempotent(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	et, def := registerWithAttribute(t, conn, domain.OwnerKindInstructor, "hire_date", domain.TypeDate)

	catalog := repository.NewAttributeDefinitionRepository(conn)
	again, err := catalog.Define(ctx, et.ID, "hire_date", domain.TypeDateTime, domain.CardinalityMulti, nil, 9)
	require.NoError(t, err)
	assert.Equal(t, def.ID, again.ID)
	assert.Equal(t, domain.TypeDate, again.DeclaredType, "existing definition is returned unmodified")
	assert.False(t, again.IsMultiValued)
}

func TestAttributeListOrdering(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	et, _ := registerWithAttribute(t, conn, domain.OwnerKindFacility, "pool_length", domain.TypeInteger)

	catalog := repository.NewAttributeDefinitionRepository(conn)
	_, err := catalog.Define(ctx, et.ID, "address", domain.TypeText, domain.CardinalitySingle, nil, 2)
	require.NoError(t, err)
	_, err = catalog.Define(ctx, et.ID, "indoor", domain.TypeBoolean, domain.CardinalitySingle, nil, 1)
	require.NoError(t, err)

	defs, err := catalog.List(ctx, et.ID)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "pool_length", defs[0].Name, "sort_order 0 first")
	assert.Equal(t, "indoor", defs[1].Name)
	assert.Equal(t, "address", defs[2].Name)
}

func TestResolveUnknownAttribute(t *testing.T) {
	conn := newConn(t)
	et, _ := registerWithAttribute(t, conn, domain.OwnerKindUser, "nickname", domain.TypeString)

	catalog := repository.NewAttributeDefinitionRepository(conn)
	_, err := catalog.Resolve(context.Background(), et.ID, "shoe_size")
	assert.ErrorIs(t, err, domain.ErrUnknownAttribute)

	_, err = catalog.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrUnknownAttribute)
}

func TestRenameAttribute(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	et, def := registerWithAttribute(t, conn, domain.OwnerKindUser, "emergency_contact", domain.TypeString)

	catalog := repository.NewAttributeDefinitionRepository(conn)
	require.NoError(t, catalog.Rename(ctx, def.ID, "emergency_phone", "Emergency phone"))

	renamed, err := catalog.Resolve(ctx, et.ID, "emergency_phone")
	require.NoError(t, err)
	assert.Equal(t, def.ID, renamed.ID)
	assert.Equal(t, "Emergency phone", renamed.DisplayName)

	_, err = catalog.Resolve(ctx, et.ID, "emergency_contact")
	assert.ErrorIs(t, err, domain.ErrUnknownAttribute)
}

func TestDeactivateAttributeAllowsRedefinition(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	et, def := registerWithAttribute(t, conn, domain.OwnerKindAssessment, "score_scale", domain.TypeString)

	catalog := repository.NewAttributeDefinitionRepository(conn)
	require.NoError(t, catalog.Deactivate(ctx, def.ID))

	redefined, err := catalog.Define(ctx, et.ID, "score_scale", domain.TypeInteger, domain.CardinalitySingle, nil, 0)
	require.NoError(t, err)
	assert.NotEqual(t, def.ID, redefined.ID)
	assert.Equal(t, domain.TypeInteger, redefined.DeclaredType)
}
