package tests

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/importer"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

func TestImportCSVEndToEnd(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	bootstrapGenericStore(t, conn)
	registerWithAttribute(t, conn, domain.OwnerKindUser, "nickname", domain.TypeString)

	store := repository.NewGenericValueRepository(conn)
	service := importer.NewService(
		repository.NewEntityTypeRepository(conn),
		repository.NewAttributeDefinitionRepository(conn),
		store,
		zap.NewNop(),
	)

	ownerID := uuid.New()
	csv := fmt.Sprintf("entity_type,owner_id,attribute,value\nuser,%s,nickname,Flip\n", ownerID)

	report, err := service.Import(ctx, importer.Request{
		FileName: "users.csv",
		Data:     strings.NewReader(csv),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Empty(t, report.Errors)

	owner, err := domain.NewOwnerRef(domain.OwnerKindUser, ownerID)
	require.NoError(t, err)
	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, got["nickname"], 1)
	assert.Equal(t, "Flip", got["nickname"][0].AsString())
}

func TestImportXLSXEndToEnd(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	bootstrapGenericStore(t, conn)
	registerWithAttribute(t, conn, domain.OwnerKindFacility, "pool_length", domain.TypeInteger)

	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	ownerID := uuid.New()
	rows := [][]any{
		{"entity_type", "owner_id", "attribute", "value"},
		{"facility", ownerID.String(), "pool_length", "50"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, book.Write(&buf))

	store := repository.NewGenericValueRepository(conn)
	service := importer.NewService(
		repository.NewEntityTypeRepository(conn),
		repository.NewAttributeDefinitionRepository(conn),
		store,
		zap.NewNop(),
	)

	report, err := service.Import(ctx, importer.Request{
		FileName: "facilities.xlsx",
		Data:     &buf,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Empty(t, report.Errors)

	owner, err := domain.NewOwnerRef(domain.OwnerKindFacility, ownerID)
	require.NoError(t, err)
	got, err := store.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, got["pool_length"], 1)
	assert.EqualValues(t, 50, got["pool_length"][0].AsInteger())
}

func TestImportDryRunCommitsNothing(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	bootstrapGenericStore(t, conn)
	registerWithAttribute(t, conn, domain.OwnerKindUser, "nickname", domain.TypeString)

	store := repository.NewGenericValueRepository(conn)
	service := importer.NewService(
		repository.NewEntityTypeRepository(conn),
		repository.NewAttributeDefinitionRepository(conn),
		store,
		zap.NewNop(),
	)

	csv := fmt.Sprintf("entity_type,owner_id,attribute,value\nuser,%s,nickname,Flip\n", uuid.New())
	report, err := service.Import(ctx, importer.Request{
		FileName: "users.csv",
		Data:     strings.NewReader(csv),
		DryRun:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)

	var rows int
	require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM attribute_values`).Scan(&rows))
	assert.Zero(t, rows)
}
