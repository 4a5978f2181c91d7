// Package importer loads attribute values in bulk from tabular files. It is
// an ordinary caller of the catalog and value store APIs, meant for one-off
// data loads outside request scope.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Philodoescode/UUMS-sub003/internal/domain"
	"github.com/Philodoescode/UUMS-sub003/internal/repository"
)

var (
	// ErrUnsupportedFormat is returned when an input file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"01/02/2006",
	}
)

// Service ingests tabular attribute value data.
type Service struct {
	registry repository.EntityTypeRegistry
	catalog  repository.AttributeDefinitionCatalog
	store    repository.ValueStore
	log      *zap.Logger
}

// NewService creates a new import service writing through the given store.
func NewService(
	registry repository.EntityTypeRegistry,
	catalog repository.AttributeDefinitionCatalog,
	store repository.ValueStore,
	log *zap.Logger,
) *Service {
	return &Service{
		registry: registry,
		catalog:  catalog,
		store:    store,
		log:      log,
	}
}

// Request describes the import input. In dry-run mode every row is resolved
// and parsed but nothing is written.
type Request struct {
	FileName string
	Data     io.Reader
	DryRun   bool
}

// RowError reports one rejected row; the import continues past it.
type RowError struct {
	Row     int
	Message string
}

// Report summarizes an import run.
type Report struct {
	Processed int
	Applied   int
	DryRun    bool
	Errors    []RowError
}

// Expected columns: entity_type, owner_id, attribute, value, and an optional
// sort_order for multi-valued attributes.
var requiredColumns = []string{"entity_type", "owner_id", "attribute", "value"}

// Import reads the file and upserts one attribute value per data row.
func (s *Service) Import(ctx context.Context, req Request) (Report, error) {
	records, err := readRecords(req.FileName, req.Data)
	if err != nil {
		return Report{}, err
	}
	if len(records) == 0 {
		return Report{DryRun: req.DryRun}, nil
	}

	columns, err := mapHeader(records[0])
	if err != nil {
		return Report{}, err
	}

	report := Report{DryRun: req.DryRun}
	for i, record := range records[1:] {
		rowNum := i + 2 // 1-based, after the header
		report.Processed++

		if err := s.importRow(ctx, columns, record, req.DryRun); err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Message: err.Error()})
			continue
		}
		report.Applied++
	}

	s.log.Info("import finished",
		zap.String("file", req.FileName),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("processed", report.Processed),
		zap.Int("applied", report.Applied),
		zap.Int("rejected", len(report.Errors)),
	)
	return report, nil
}

func (s *Service) importRow(ctx context.Context, columns map[string]int, record []string, dryRun bool) error {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	kind := domain.OwnerKind(field("entity_type"))
	ownerID, err := uuid.Parse(field("owner_id"))
	if err != nil {
		return fmt.Errorf("invalid owner_id: %w", err)
	}
	owner, err := domain.NewOwnerRef(kind, ownerID)
	if err != nil {
		return err
	}

	entityType, err := s.registry.Resolve(ctx, kind)
	if err != nil {
		return err
	}

	def, err := s.catalog.Resolve(ctx, entityType.ID, field("attribute"))
	if err != nil {
		return err
	}

	value, err := ParseValue(def.DeclaredType, field("value"))
	if err != nil {
		return err
	}

	sortOrder := 0
	if raw := field("sort_order"); raw != "" {
		sortOrder, err = strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid sort_order: %w", err)
		}
	}

	if dryRun {
		return nil
	}
	return s.store.Upsert(ctx, owner, def.ID, value, sortOrder)
}

// ParseValue converts a raw cell into the logical value demanded by the
// declared type.
func ParseValue(declared domain.DeclaredType, raw string) (domain.Value, error) {
	switch declared {
	case domain.TypeString:
		return domain.StringValue(raw), nil
	case domain.TypeText:
		return domain.TextValue(raw), nil
	case domain.TypeInteger:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("invalid integer %q", raw)
		}
		return domain.IntegerValue(i), nil
	case domain.TypeDecimal:
		return domain.DecimalValue(raw)
	case domain.TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.Value{}, fmt.Errorf("invalid boolean %q", raw)
		}
		return domain.BooleanValue(b), nil
	case domain.TypeDate:
		t, err := parseTime(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.DateValue(t), nil
	case domain.TypeDateTime:
		t, err := parseTime(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.DateTimeValue(t), nil
	case domain.TypeJSON:
		return domain.JSONValue(json.RawMessage(raw))
	}
	return domain.Value{}, fmt.Errorf("unsupported declared type %q", declared)
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func readRecords(fileName string, data io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return readCSV(data)
	case ".xlsx":
		return readXLSX(data)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, fileName)
}

func readCSV(data io.Reader) ([][]string, error) {
	buffered := bufio.NewReader(data)
	// Strip a UTF-8 BOM so the first header cell matches.
	if peeked, err := buffered.Peek(len(byteOrderMark)); err == nil && bytes.Equal(peeked, byteOrderMark) {
		if _, err := buffered.Discard(len(byteOrderMark)); err != nil {
			return nil, fmt.Errorf("failed to skip byte order mark: %w", err)
		}
	}

	reader := csv.NewReader(buffered)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readXLSX(data io.Reader) ([][]string, error) {
	book, err := excelize.OpenReader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		columns[strings.ToLower(strings.TrimSpace(cell))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return columns, nil
}
