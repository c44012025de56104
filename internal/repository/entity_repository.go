package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/fieldlog/internal/db"
	"github.com/rpattn/fieldlog/internal/domain"
)

const entityColumns = `id, entity_type, properties, version, created_at, updated_at`

// entityRepository implements EntityRepository on a pgx pool. Queries run on
// the transaction carried by the context when there is one.
type entityRepository struct {
	pool *pgxpool.Pool
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(pool *pgxpool.Pool) EntityRepository {
	return &entityRepository{pool: pool}
}

func (r *entityRepository) exec(ctx context.Context) (db.Executor, error) {
	if r.pool == nil {
		if tx, ok := db.TxFromContext(ctx); ok {
			return tx, nil
		}
		return nil, fmt.Errorf("entity repository not initialized")
	}
	return db.ExecutorFrom(ctx, r.pool), nil
}

// Create creates a new entity
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	ex, err := r.exec(ctx)
	if err != nil {
		return domain.Entity{}, err
	}
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}

	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := ex.QueryRow(
		ctx,
		`INSERT INTO entities (id, entity_type, properties, version)
		 VALUES ($1, $2, $3, 1)
		 RETURNING `+entityColumns,
		entity.ID,
		entity.EntityType,
		propertiesJSON,
	)
	created, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return created, nil
}

// CreateBatch inserts all entities in one round trip.
func (r *entityRepository) CreateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	if len(entities) == 0 {
		return []domain.Entity{}, nil
	}
	ex, err := r.exec(ctx)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for i := range entities {
		if entities[i].ID == uuid.Nil {
			entities[i].ID = uuid.New()
		}
		propertiesJSON, err := entities[i].GetPropertiesAsJSONB()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties: %w", err)
		}
		batch.Queue(
			`INSERT INTO entities (id, entity_type, properties, version)
			 VALUES ($1, $2, $3, 1)
			 RETURNING `+entityColumns,
			entities[i].ID,
			entities[i].EntityType,
			propertiesJSON,
		)
	}

	return runEntityBatch(ctx, ex, batch, len(entities), "create")
}

// GetByID retrieves an entity by ID
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	ex, err := r.exec(ctx)
	if err != nil {
		return domain.Entity{}, err
	}

	row := ex.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	entity, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// GetByIDs retrieves multiple entities by their IDs.
func (r *entityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}
	ex, err := r.exec(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := ex.Query(
		ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = ANY($1) ORDER BY created_at, id`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	return collectEntities(rows)
}

// ListByType retrieves all entities of one type in creation order.
func (r *entityRepository) ListByType(ctx context.Context, entityType string) ([]domain.Entity, error) {
	ex, err := r.exec(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := ex.Query(
		ctx,
		`SELECT `+entityColumns+` FROM entities WHERE entity_type = $1 ORDER BY created_at, id`,
		entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities by type: %w", err)
	}
	return collectEntities(rows)
}

// ListReferencing finds ownerType entities whose reference field points at
// any of targetIDs. References are stored as id strings or arrays of them.
func (r *entityRepository) ListReferencing(ctx context.Context, ownerType, field string, targetIDs []uuid.UUID) ([]domain.Entity, error) {
	if len(targetIDs) == 0 {
		return []domain.Entity{}, nil
	}
	ex, err := r.exec(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(targetIDs))
	for i, id := range targetIDs {
		ids[i] = id.String()
	}

	rows, err := ex.Query(
		ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE entity_type = $1
		   AND (
		     (jsonb_typeof(properties -> $2) = 'string' AND properties ->> $2 = ANY($3::text[]))
		     OR (jsonb_typeof(properties -> $2) = 'array' AND (properties -> $2) ?| $3::text[])
		   )
		 ORDER BY created_at, id`,
		ownerType,
		field,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list referencing entities: %w", err)
	}
	return collectEntities(rows)
}

// Related implements EntityStore.
func (r *entityRepository) Related(ctx context.Context, entity domain.Entity, path domain.RelationPath) ([]domain.Entity, error) {
	return FollowPath(ctx, r, entity, path)
}

// FilterByRelation implements EntityStore.
func (r *entityRepository) FilterByRelation(ctx context.Context, ownerType string, path domain.RelationPath, targetID uuid.UUID) ([]domain.Entity, error) {
	return InvertPath(ctx, r, ownerType, path, targetID)
}

// Update replaces the stored properties and bumps the version.
func (r *entityRepository) Update(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	ex, err := r.exec(ctx)
	if err != nil {
		return domain.Entity{}, err
	}

	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := ex.QueryRow(
		ctx,
		`UPDATE entities
		 SET properties = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+entityColumns,
		entity.ID,
		propertiesJSON,
	)
	updated, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", entity.ID, ErrNotFound)
	}
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to update entity: %w", err)
	}
	return updated, nil
}

// UpdateBatch updates all entities in one round trip.
func (r *entityRepository) UpdateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	if len(entities) == 0 {
		return []domain.Entity{}, nil
	}
	ex, err := r.exec(ctx)
	if err != nil {
		return nil, err
	}

	batch := &pgx.Batch{}
	for i := range entities {
		propertiesJSON, err := entities[i].GetPropertiesAsJSONB()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal properties: %w", err)
		}
		batch.Queue(
			`UPDATE entities
			 SET properties = $2, version = version + 1, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+entityColumns,
			entities[i].ID,
			propertiesJSON,
		)
	}

	return runEntityBatch(ctx, ex, batch, len(entities), "update")
}

// Delete removes an entity
func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ex, err := r.exec(ctx)
	if err != nil {
		return err
	}

	tag, err := ex.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	return nil
}

func runEntityBatch(ctx context.Context, ex db.Executor, batch *pgx.Batch, n int, op string) ([]domain.Entity, error) {
	results := ex.SendBatch(ctx, batch)
	defer results.Close()

	entities := make([]domain.Entity, 0, n)
	for i := 0; i < n; i++ {
		entity, err := scanEntity(results.QueryRow())
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to %s entity batch item %d: %w", op, i, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to %s entity batch item %d: %w", op, i, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func collectEntities(rows pgx.Rows) ([]domain.Entity, error) {
	defer rows.Close()

	entities := []domain.Entity{}
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		id             uuid.UUID
		entityType     string
		propertiesJSON []byte
		version        int64
		createdAt      time.Time
		updatedAt      time.Time
	)
	if err := row.Scan(&id, &entityType, &propertiesJSON, &version, &createdAt, &updatedAt); err != nil {
		return domain.Entity{}, err
	}
	return buildEntity(id, entityType, propertiesJSON, version, createdAt, updatedAt)
}

func buildEntity(
	id uuid.UUID,
	entityType string,
	propertiesJSON json.RawMessage,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) (domain.Entity, error) {
	properties, err := domain.FromJSONBProperties(propertiesJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode properties for entity %s: %w", id, err)
	}

	return domain.Entity{
		ID:         id,
		EntityType: entityType,
		Properties: properties,
		Version:    version,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}
