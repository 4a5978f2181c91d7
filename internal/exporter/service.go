// Package exporter dumps an entity type's attribute values to tabular files,
// the inverse of the importer. Output rows use the same column layout the
// importer accepts, so an export can be re-imported as-is.
package exporter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Philodoescode/UUMS-sub003/internal/codec"
	"github.com/Philodoescode/UUMS-sub003/internal/db"
	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

// header matches the importer's required columns.
var header = []string{"entity_type", "owner_id", "attribute", "value", "sort_order"}

// Service streams attribute values out of whichever store currently holds
// them for an entity type.
type Service struct {
	conn     *db.Connection
	registry repository.EntityTypeRegistry
	log      *zap.Logger
}

// NewService creates an export service.
func NewService(conn *db.Connection, registry repository.EntityTypeRegistry, log *zap.Logger) *Service {
	return &Service{conn: conn, registry: registry, log: log}
}

// Export writes every live attribute value of the kind to w. The format is
// chosen by the file name extension (.csv or .xlsx). Values come from the
// dedicated table once the kind has been introduced there, otherwise from the
// generic table.
func (s *Service) Export(ctx context.Context, w io.Writer, kind domain.OwnerKind, fileName string) (int, error) {
	et, err := s.registry.Resolve(ctx, kind)
	if err != nil {
		return 0, err
	}

	records, err := s.collectRecords(ctx, et)
	if err != nil {
		return 0, err
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		err = writeCSV(w, records)
	case ".xlsx":
		err = writeXLSX(w, records)
	default:
		return 0, fmt.Errorf("unsupported export format %q", fileName)
	}
	if err != nil {
		return 0, err
	}

	dataRows := len(records) - 1 // minus the header
	s.log.Info("export finished",
		zap.String("entity_type", string(kind)),
		zap.String("file", fileName),
		zap.Int("rows", dataRows),
	)
	return dataRows, nil
}

func (s *Service) collectRecords(ctx context.Context, et domain.EntityType) ([][]string, error) {
	dedicated, err := s.dedicatedTableExists(ctx, et)
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if dedicated {
		table := pgx.Identifier{et.ValueTableName()}.Sanitize()
		rows, err = s.conn.Pool.Query(ctx, `
			SELECT v.owner_id, ad.name, ad.declared_type,
				v.value_string, v.value_integer, v.value_decimal::text, v.value_boolean,
				v.value_date, v.value_datetime, v.value_text, v.value_json, v.sort_order
			FROM `+table+` v
			JOIN attribute_definitions ad ON ad.id = v.attribute_id
			ORDER BY v.owner_id, ad.sort_order, ad.name, v.sort_order`,
		)
	} else {
		rows, err = s.conn.Pool.Query(ctx, `
			SELECT v.owner_id, ad.name, ad.declared_type,
				v.value_string, v.value_integer, v.value_decimal::text, v.value_boolean,
				v.value_date, v.value_datetime, v.value_text, v.value_json, v.sort_order
			FROM attribute_values v
			JOIN attribute_definitions ad ON ad.id = v.attribute_id
			WHERE v.owner_type_tag = $1 AND v.deleted_at IS NULL
			ORDER BY v.owner_id, ad.sort_order, ad.name, v.sort_order`,
			string(et.Name),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute values: %w", err)
	}
	defer rows.Close()

	records := [][]string{header}
	for rows.Next() {
		record, err := scanExportRow(rows, et.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Service) dedicatedTableExists(ctx context.Context, et domain.EntityType) (bool, error) {
	var regclass *string
	err := s.conn.Pool.QueryRow(ctx, `SELECT to_regclass($1)::text`, et.ValueTableName()).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", et.ValueTableName(), err)
	}
	return regclass != nil, nil
}

func writeCSV(w io.Writer, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, records [][]string) error {
	book := excelize.NewFile()
	defer book.Close()

	sheet := book.GetSheetName(0)
	for i, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+1, err)
		}
		row := make([]any, len(record))
		for j, v := range record {
			row[j] = v
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := book.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// scanExportRow decodes one projection into an importer-compatible record.
func scanExportRow(rows pgx.Rows, kind domain.OwnerKind) ([]string, error) {
	var ownerID uuid.UUID
	var name, declaredType string
	var slots codec.Slots
	var sortOrder int
	if err := rows.Scan(
		&ownerID, &name, &declaredType,
		&slots.String, &slots.Integer, &slots.Decimal, &slots.Boolean,
		&slots.Date, &slots.DateTime, &slots.Text, &slots.JSON,
		&sortOrder,
	); err != nil {
		return nil, fmt.Errorf("failed to scan export row: %w", err)
	}

	value, err := codec.Decode(domain.DeclaredType(declaredType), slots)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", name, err)
	}

	return []string{
		string(kind),
		ownerID.String(),
		name,
		value.String(),
		strconv.Itoa(sortOrder),
	}, nil
}
