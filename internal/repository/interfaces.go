package repository

import (
	"context"
	"errors"

	"github.com/rpattn/fieldlog/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned (optionally wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// Transactor runs fn inside a storage transaction. Nested calls join the
// transaction already carried by ctx.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EntitySchemaRepository defines the interface for entity schema operations
type EntitySchemaRepository interface {
	Create(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
	GetByName(ctx context.Context, name string) (domain.EntitySchema, error)
	List(ctx context.Context) ([]domain.EntitySchema, error)
	Update(ctx context.Context, schema domain.EntitySchema) (domain.EntitySchema, error)
}

// EntityStore is the read side of the host persistence layer that change
// tracking depends on.
type EntityStore interface {
	// GetByID re-reads the current stored state of one entity.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error)
	// GetByIDs reads many entities in one round trip; missing ids are omitted.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
	// Related follows path forward from entity and returns every entity reached.
	Related(ctx context.Context, entity domain.Entity, path domain.RelationPath) ([]domain.Entity, error)
	// FilterByRelation returns, ordered by creation, every ownerType entity
	// that reaches targetID by following path.
	FilterByRelation(ctx context.Context, ownerType string, path domain.RelationPath, targetID uuid.UUID) ([]domain.Entity, error)
}

// EntityRepository defines the interface for entity operations
type EntityRepository interface {
	EntityStore
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	CreateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error)
	Update(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	UpdateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error)
	ListByType(ctx context.Context, entityType string) ([]domain.Entity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FieldLogRepository stores immutable field logs.
type FieldLogRepository interface {
	Transactor
	Create(ctx context.Context, log domain.FieldLog) (domain.FieldLog, error)
	// ListByEntity returns the logs of one entity, most recent first.
	ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID, filter domain.FieldLogFilter) ([]domain.FieldLog, error)
	// Previous returns the most recent log of the same entity and field
	// written before log.
	Previous(ctx context.Context, log domain.FieldLog) (domain.FieldLog, error)
}
