package ingestion

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
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/service"
	"github.com/rpattn/yoda/pkg/validator"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// arraySeparator splits multi-valued cells.
const arraySeparator = ";"

// EntityCreator is the part of the entity service an import needs.
type EntityCreator interface {
	Create(ctx context.Context, entityType string, input service.CreateInput, identity auth.Identity) (domain.Identifier, error)
}

// DefinitionLookup resolves entity definitions.
type DefinitionLookup interface {
	Lookup(entityType string) (domain.EntityDefinition, error)
}

// Service imports tabular data as new entities.
type Service struct {
	entities    EntityCreator
	definitions DefinitionLookup
	validator   *validator.FieldValidator
}

// NewService creates a new ingestion service.
func NewService(entities EntityCreator, definitions DefinitionLookup) *Service {
	return &Service{
		entities:    entities,
		definitions: definitions,
		validator:   validator.NewFieldValidator(),
	}
}

// Request describes the ingestion input.
type Request struct {
	EntityType     string
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
	Identity       auth.Identity
}

// RowError reports why one data row was not imported.
type RowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
}

// Summary reports the outcome of an import.
type Summary struct {
	EntityType     string     `json:"entityType"`
	TotalRows      int        `json:"totalRows"`
	ValidRows      int        `json:"validRows"`
	InvalidRows    int        `json:"invalidRows"`
	Created        []string   `json:"created"`
	IgnoredColumns []string   `json:"ignoredColumns"`
	Errors         []RowError `json:"errors"`
}

// PreviewRow captures sample data and validation feedback.
type PreviewRow struct {
	RowNumber int               `json:"rowNumber"`
	Values    map[string]string `json:"values"`
	Errors    []string          `json:"errors,omitempty"`
}

// PreviewResult returns preview metadata back to clients.
type PreviewResult struct {
	TotalRows      int          `json:"totalRows"`
	InvalidRows    int          `json:"invalidRows"`
	Headers        []string     `json:"headers"`
	IgnoredColumns []string     `json:"ignoredColumns"`
	Rows           []PreviewRow `json:"rows"`
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
}

type columnPlan struct {
	fields  map[int]domain.FieldSpec
	idCol   int
	ignored []string
}

// Ingest creates one entity per data row. Header names select the fields;
// an "identifier" column supplies the Primary identifier. Rows that fail
// validation are reported and skipped; an authorization failure aborts the
// import.
func (s *Service) Ingest(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{
		EntityType:     req.EntityType,
		Created:        []string{},
		IgnoredColumns: []string{},
		Errors:         []RowError{},
	}

	def, table, err := s.load(req.EntityType, req.FileName, req.Data, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	plan := planColumns(def, table.headers)
	summary.IgnoredColumns = append(summary.IgnoredColumns, plan.ignored...)
	summary.TotalRows = len(table.rows)

	for rowIdx, row := range table.rows {
		rowNumber := table.headerRowIndex + rowIdx + 2

		input, err := s.buildInput(def, plan, row)
		if err != nil {
			summary.InvalidRows++
			summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
			continue
		}

		id, err := s.entities.Create(ctx, def.Name, input, req.Identity)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) || errors.Is(err, domain.ErrDatabase) {
				return summary, err
			}
			summary.InvalidRows++
			summary.Errors = append(summary.Errors, RowError{RowNumber: rowNumber, Message: err.Error()})
			continue
		}

		summary.ValidRows++
		summary.Created = append(summary.Created, id.Value)
	}

	return summary, nil
}

// Preview validates up to limit rows without creating anything.
func (s *Service) Preview(entityType, fileName string, data io.Reader, headerRowIndex *int, limit int) (PreviewResult, error) {
	result := PreviewResult{Headers: []string{}, IgnoredColumns: []string{}, Rows: []PreviewRow{}}
	if limit <= 0 {
		limit = 20
	}

	def, table, err := s.load(entityType, fileName, data, headerRowIndex)
	if err != nil {
		return result, err
	}
	plan := planColumns(def, table.headers)
	result.Headers = table.headers
	result.IgnoredColumns = append(result.IgnoredColumns, plan.ignored...)
	result.TotalRows = len(table.rows)

	for rowIdx, row := range table.rows {
		preview := PreviewRow{
			RowNumber: table.headerRowIndex + rowIdx + 2,
			Values:    make(map[string]string, len(table.headers)),
		}
		for colIdx, header := range table.headers {
			preview.Values[header] = strings.TrimSpace(row[colIdx])
		}
		if _, err := s.buildInput(def, plan, row); err != nil {
			preview.Errors = append(preview.Errors, err.Error())
			result.InvalidRows++
		}
		if len(result.Rows) < limit {
			result.Rows = append(result.Rows, preview)
		}
	}

	return result, nil
}

func (s *Service) load(entityType, fileName string, data io.Reader, headerRowIndex *int) (domain.EntityDefinition, tableData, error) {
	def, err := s.definitions.Lookup(entityType)
	if err != nil {
		return domain.EntityDefinition{}, tableData{}, err
	}
	if data == nil {
		return domain.EntityDefinition{}, tableData{}, domain.Validationf("data reader is required")
	}

	payload, err := io.ReadAll(data)
	if err != nil {
		return domain.EntityDefinition{}, tableData{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return domain.EntityDefinition{}, tableData{}, domain.Validationf("file is empty")
	}

	table, err := parseTable(fileName, payload, headerRowIndex)
	if err != nil {
		return domain.EntityDefinition{}, tableData{}, err
	}
	if len(table.headers) == 0 {
		return domain.EntityDefinition{}, tableData{}, domain.Validationf("no header row detected")
	}
	return def, table, nil
}

func planColumns(def domain.EntityDefinition, headers []string) columnPlan {
	plan := columnPlan{fields: map[int]domain.FieldSpec{}, idCol: -1, ignored: []string{}}
	for idx, header := range headers {
		name := strings.ToLower(header)
		if name == domain.IdentifierField {
			plan.idCol = idx
			continue
		}
		spec, ok := def.Field(name)
		if !ok || !spec.Constructible {
			plan.ignored = append(plan.ignored, header)
			continue
		}
		plan.fields[idx] = spec
	}
	return plan
}

func (s *Service) buildInput(def domain.EntityDefinition, plan columnPlan, row []string) (service.CreateInput, error) {
	input := service.CreateInput{Fields: map[string]any{}}

	if plan.idCol >= 0 {
		if raw := strings.TrimSpace(row[plan.idCol]); raw != "" {
			primary := domain.Identifier{Value: raw, System: domain.IdentifierSystemYoda, Tier: domain.IdentifierTierPrimary}
			if err := primary.Validate(); err != nil {
				return input, err
			}
			input.Identifiers = []domain.Identifier{primary}
		}
	}

	for colIdx, spec := range plan.fields {
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}
		value, err := cellValue(spec, raw)
		if err != nil {
			return input, err
		}
		input.Fields[spec.Name] = value
	}

	_, result := s.validator.ValidateFields(def, input.Fields)
	if err := result.Err(); err != nil {
		return input, err
	}
	return input, nil
}

// cellValue turns a cell into the value the field validator expects. JSON
// shaped cells are decoded; array cells are split on semicolons.
func cellValue(spec domain.FieldSpec, raw string) (any, error) {
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, domain.Validationf("field %s: invalid JSON cell: %v", spec.Name, err)
		}
		return decoded, nil
	}
	if !spec.Array {
		return raw, nil
	}
	parts := strings.Split(raw, arraySeparator)
	values := make([]any, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values, nil
}

func parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %w: %s", domain.ErrValidation, ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, domain.Validationf("failed to read csv: %v", err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, domain.Validationf("failed to open xlsx: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, domain.Validationf("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, domain.Validationf("failed to read rows from xlsx: %v", err)
	}
	return normalizeTable(rows, headerRowIndex)
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, domain.Validationf("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	headerIndex := -1

	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, domain.Validationf("header row index %d out of range", *headerRowIndex)
		}
		if len(cleanRow(records[*headerRowIndex])) == 0 {
			return tableData{}, domain.Validationf("selected header row %d is empty", *headerRowIndex+1)
		}
		headerRow = records[*headerRowIndex]
		headerIndex = *headerRowIndex
		dataRows = append(dataRows, records[*headerRowIndex+1:]...)
	} else {
		for idx, row := range records {
			if len(cleanRow(row)) == 0 {
				continue
			}
			if headerRow == nil {
				headerRow = row
				headerIndex = idx
				continue
			}
			dataRows = append(dataRows, row)
		}
	}

	if headerRow == nil {
		return tableData{}, domain.Validationf("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers:        headers,
		rows:           filterEmptyRows(dataRows),
		headerRowIndex: headerIndex,
	}, nil
}

func cleanRow(row []string) []string {
	var cleaned []string
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			cleaned = append(cleaned, cell)
		}
	}
	return cleaned
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

func filterEmptyRows(rows [][]string) [][]string {
	var filtered [][]string
	for _, row := range rows {
		if len(cleanRow(row)) > 0 {
			filtered = append(filtered, row)
		}
	}
	return filtered
}
