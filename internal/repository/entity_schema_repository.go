package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/fieldlog/internal/db"
	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/schema/validator"
)

const schemaColumns = `id, name, description, fields, status, created_at, updated_at`

// entitySchemaRepository implements EntitySchemaRepository interface
type entitySchemaRepository struct {
	pool *pgxpool.Pool
}

// NewEntitySchemaRepository creates a new entity schema repository
func NewEntitySchemaRepository(pool *pgxpool.Pool) EntitySchemaRepository {
	return &entitySchemaRepository{pool: pool}
}

// Create validates and inserts a schema.
func (r *entitySchemaRepository) Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if r.pool == nil {
		return domain.EntitySchema{}, fmt.Errorf("entity schema repository not initialized")
	}
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("invalid schema %s: %w", schema.Name, err)
	}
	if schema.ID == uuid.Nil {
		schema.ID = uuid.New()
	}
	if schema.Status == "" {
		schema.Status = domain.SchemaStatusActive
	}

	fieldsJSON, err := schema.GetFieldsAsJSONB()
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	row := db.ExecutorFrom(ctx, r.pool).QueryRow(
		ctx,
		`INSERT INTO entity_schemas (id, name, description, fields, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+schemaColumns,
		schema.ID,
		schema.Name,
		schema.Description,
		fieldsJSON,
		string(schema.Status),
	)
	created, err := scanSchema(row)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to insert entity schema: %w", err)
	}
	return created, nil
}

// GetByName retrieves an entity schema by name
func (r *entitySchemaRepository) GetByName(ctx context.Context, name string) (domain.EntitySchema, error) {
	if r.pool == nil {
		return domain.EntitySchema{}, fmt.Errorf("entity schema repository not initialized")
	}

	row := db.ExecutorFrom(ctx, r.pool).QueryRow(ctx, `SELECT `+schemaColumns+` FROM entity_schemas WHERE name = $1`, name)
	schema, err := scanSchema(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntitySchema{}, fmt.Errorf("entity schema %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to get entity schema by name: %w", err)
	}
	return schema, nil
}

// List retrieves all entity schemas ordered by name
func (r *entitySchemaRepository) List(ctx context.Context) ([]domain.EntitySchema, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("entity schema repository not initialized")
	}

	rows, err := db.ExecutorFrom(ctx, r.pool).Query(ctx, `SELECT `+schemaColumns+` FROM entity_schemas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity schemas: %w", err)
	}
	defer rows.Close()

	result := []domain.EntitySchema{}
	for rows.Next() {
		schema, err := scanSchema(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity schema: %w", err)
		}
		result = append(result, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity schemas: %w", err)
	}
	return result, nil
}

// Update replaces the description, fields and status of a schema.
func (r *entitySchemaRepository) Update(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if r.pool == nil {
		return domain.EntitySchema{}, fmt.Errorf("entity schema repository not initialized")
	}
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("invalid schema %s: %w", schema.Name, err)
	}

	fieldsJSON, err := schema.GetFieldsAsJSONB()
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to marshal fields: %w", err)
	}

	row := db.ExecutorFrom(ctx, r.pool).QueryRow(
		ctx,
		`UPDATE entity_schemas
		 SET description = $2, fields = $3, status = $4, updated_at = NOW()
		 WHERE name = $1
		 RETURNING `+schemaColumns,
		schema.Name,
		schema.Description,
		fieldsJSON,
		string(schema.Status),
	)
	updated, err := scanSchema(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EntitySchema{}, fmt.Errorf("entity schema %s: %w", schema.Name, ErrNotFound)
	}
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to update entity schema: %w", err)
	}
	return updated, nil
}

func scanSchema(row pgx.Row) (domain.EntitySchema, error) {
	var (
		schema     domain.EntitySchema
		fieldsJSON []byte
		status     string
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&schema.ID, &schema.Name, &schema.Description, &fieldsJSON, &status, &createdAt, &updatedAt); err != nil {
		return domain.EntitySchema{}, err
	}

	fields, err := domain.FromJSONBFields(fieldsJSON)
	if err != nil {
		return domain.EntitySchema{}, fmt.Errorf("failed to unmarshal fields for schema %s: %w", schema.Name, err)
	}
	schema.Fields = fields
	schema.Status = domain.SchemaStatus(status)
	schema.CreatedAt = createdAt
	schema.UpdatedAt = updatedAt
	return schema, nil
}
