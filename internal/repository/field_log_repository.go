package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/db"
	"github.com/rpattn/fieldlog/internal/domain"
)

const fieldLogColumns = `id, entity_type, entity_id, field, old_value, new_value, related, created, created_at, extra_data`

type fieldLogRepository struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewFieldLogRepository wires a repository backed by pgxpool.
func NewFieldLogRepository(pool *pgxpool.Pool, log *zap.Logger) FieldLogRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &fieldLogRepository{pool: pool, log: log}
}

// InTx implements Transactor.
func (r *fieldLogRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, r.log, fn)
}

func (r *fieldLogRepository) Create(ctx context.Context, entry domain.FieldLog) (domain.FieldLog, error) {
	if r.pool == nil {
		return domain.FieldLog{}, fmt.Errorf("field log repository not initialized")
	}

	extra := entry.ExtraData
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := gojson.Marshal(extra)
	if err != nil {
		return domain.FieldLog{}, fmt.Errorf("failed to marshal extra data: %w", err)
	}

	row := db.ExecutorFrom(ctx, r.pool).QueryRow(
		ctx,
		`INSERT INTO field_logs (entity_type, entity_id, field, old_value, new_value, related, created, extra_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+fieldLogColumns,
		entry.EntityType,
		entry.EntityID,
		entry.Field,
		nullableJSON(entry.OldValue),
		nullableJSON(entry.NewValue),
		entry.Related,
		entry.Created,
		extraJSON,
	)
	created, err := scanFieldLog(row)
	if err != nil {
		return domain.FieldLog{}, fmt.Errorf("failed to record field log: %w", err)
	}
	return created, nil
}

func (r *fieldLogRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, filter domain.FieldLogFilter) ([]domain.FieldLog, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("field log repository not initialized")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	var field any
	if filter.Field != "" {
		field = filter.Field
	}
	var created any
	if filter.Created != nil {
		created = *filter.Created
	}

	rows, err := db.ExecutorFrom(ctx, r.pool).Query(
		ctx,
		`SELECT `+fieldLogColumns+`
		 FROM field_logs
		 WHERE entity_type = $1
		   AND entity_id = $2
		   AND ($3::text IS NULL OR field = $3)
		   AND ($4::boolean IS NULL OR created = $4)
		 ORDER BY id DESC
		 LIMIT $5`,
		entityType,
		entityID,
		field,
		created,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list field logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.FieldLog{}
	for rows.Next() {
		entry, scanErr := scanFieldLog(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan field log: %w", scanErr)
		}
		logs = append(logs, entry)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate field logs: %w", rowsErr)
	}
	return logs, nil
}

func (r *fieldLogRepository) Previous(ctx context.Context, entry domain.FieldLog) (domain.FieldLog, error) {
	if r.pool == nil {
		return domain.FieldLog{}, fmt.Errorf("field log repository not initialized")
	}

	row := db.ExecutorFrom(ctx, r.pool).QueryRow(
		ctx,
		`SELECT `+fieldLogColumns+`
		 FROM field_logs
		 WHERE entity_type = $1 AND entity_id = $2 AND field = $3 AND id < $4
		 ORDER BY id DESC
		 LIMIT 1`,
		entry.EntityType,
		entry.EntityID,
		entry.Field,
		entry.ID,
	)
	previous, err := scanFieldLog(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FieldLog{}, fmt.Errorf("previous log of %s: %w", entry.Field, ErrNotFound)
	}
	if err != nil {
		return domain.FieldLog{}, fmt.Errorf("failed to get previous field log: %w", err)
	}
	return previous, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func scanFieldLog(row pgx.Row) (domain.FieldLog, error) {
	var (
		entry     domain.FieldLog
		oldValue  []byte
		newValue  []byte
		extraJSON []byte
		createdAt time.Time
	)
	if err := row.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.Field,
		&oldValue,
		&newValue,
		&entry.Related,
		&entry.Created,
		&createdAt,
		&extraJSON,
	); err != nil {
		return domain.FieldLog{}, err
	}

	entry.OldValue = nullValue(oldValue)
	entry.NewValue = nullValue(newValue)
	entry.CreatedAt = createdAt
	entry.ExtraData = map[string]any{}
	if len(extraJSON) > 0 {
		if err := gojson.Unmarshal(extraJSON, &entry.ExtraData); err != nil {
			return domain.FieldLog{}, fmt.Errorf("failed to decode extra data: %w", err)
		}
	}
	return entry, nil
}

// nullValue maps SQL NULL to the JSON null literal so callers always see a
// decodable value.
func nullValue(raw []byte) json.RawMessage {
	if raw == nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
