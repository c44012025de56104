package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
	"github.com/rpattn/fieldlog/pkg/valuecodec"
)

// Format is a history export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

const sheetName = "History"

var header = []string{"id", "created_at", "field", "old_value", "new_value", "created", "related", "extra_data"}

// ErrUnknownFormat is returned for formats other than xlsx and csv.
var ErrUnknownFormat = errors.New("unknown export format")

// Service renders the field log history of one entity as a spreadsheet.
type Service struct {
	logs    repository.FieldLogRepository
	codec   valuecodec.Codec
	maxRows int
	log     *zap.Logger
}

type Option func(*Service)

// WithMaxRows caps the number of logs in one export.
func WithMaxRows(rows int) Option {
	return func(s *Service) {
		if rows > 0 {
			s.maxRows = rows
		}
	}
}

func WithCodec(codec valuecodec.Codec) Option {
	return func(s *Service) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(logs repository.FieldLogRepository, opts ...Option) *Service {
	service := &Service{
		logs:    logs,
		codec:   valuecodec.NewJSONCodec(),
		maxRows: 10000,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Request selects the history to export.
type Request struct {
	EntityType string
	EntityID   uuid.UUID
	Field      string
	Format     Format
}

// FileName returns the download name of the export.
func (r Request) FileName() string {
	parts := []string{sanitizeFileComponent(r.EntityType), r.EntityID.String()}
	if r.Field != "" {
		parts = append(parts, sanitizeFileComponent(r.Field))
	}
	return strings.Join(parts, "-") + "." + string(r.Format)
}

// ContentType returns the MIME type of format.
func ContentType(format Format) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Write renders the history selected by req to w, newest first, and returns
// the number of logs written.
func (s *Service) Write(ctx context.Context, w io.Writer, req Request) (int, error) {
	if req.EntityID == uuid.Nil {
		return 0, errors.New("entity id is required")
	}

	logs, err := s.logs.ListByEntity(ctx, req.EntityType, req.EntityID, domain.FieldLogFilter{
		Field: req.Field,
		Limit: s.maxRows,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list field logs: %w", err)
	}

	rows := make([][]string, 0, len(logs))
	for _, entry := range logs {
		row, err := s.row(entry)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	switch req.Format {
	case FormatXLSX:
		err = writeXLSX(w, rows)
	case FormatCSV:
		err = writeCSV(w, rows)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, req.Format)
	}
	if err != nil {
		return 0, err
	}

	s.log.Debug("exported field log history",
		zap.String("entity_type", req.EntityType),
		zap.Stringer("entity_id", req.EntityID),
		zap.String("format", string(req.Format)),
		zap.Int("rows", len(rows)),
	)
	return len(rows), nil
}

func (s *Service) row(entry domain.FieldLog) ([]string, error) {
	oldValue, err := s.codec.Decode(entry.OldValue)
	if err != nil {
		return nil, fmt.Errorf("log %d: %w", entry.ID, err)
	}
	newValue, err := s.codec.Decode(entry.NewValue)
	if err != nil {
		return nil, fmt.Errorf("log %d: %w", entry.ID, err)
	}

	var extra any
	if len(entry.ExtraData) > 0 {
		extra = entry.ExtraData
	}
	return []string{
		strconv.FormatInt(entry.ID, 10),
		formatValue(entry.CreatedAt),
		entry.Field,
		formatValue(oldValue),
		formatValue(newValue),
		formatValue(entry.Created),
		formatValue(entry.Related),
		formatValue(extra),
	}, nil
}

func writeXLSX(w io.Writer, rows [][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	for i, row := range append([][]string{header}, rows...) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, value := range row {
			values[j] = value
		}
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func writeCSV(w io.Writer, rows [][]string) error {
	buffered := bufio.NewWriter(w)
	csvWriter := csv.NewWriter(buffered)
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv rows: %w", err)
	}
	return buffered.Flush()
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "export"
	}
	return result
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
