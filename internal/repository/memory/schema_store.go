package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
	"github.com/rpattn/fieldlog/internal/schema/validator"
)

// SchemaStore implements repository.EntitySchemaRepository in memory.
type SchemaStore struct {
	mu      sync.RWMutex
	schemas map[string]domain.EntitySchema
}

// NewSchemaStore creates a schema store seeded with the given schemas.
func NewSchemaStore(schemas ...domain.EntitySchema) *SchemaStore {
	store := &SchemaStore{schemas: make(map[string]domain.EntitySchema, len(schemas))}
	for _, schema := range schemas {
		store.schemas[schema.Name] = schema
	}
	return store
}

var _ repository.EntitySchemaRepository = (*SchemaStore)(nil)

func (s *SchemaStore) Create(_ context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("invalid schema %s: %w", schema.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schemas[schema.Name]; exists {
		return domain.EntitySchema{}, fmt.Errorf("entity schema %s already exists", schema.Name)
	}
	if schema.ID == uuid.Nil {
		schema.ID = uuid.New()
	}
	if schema.Status == "" {
		schema.Status = domain.SchemaStatusActive
	}
	now := time.Now()
	schema.CreatedAt = now
	schema.UpdatedAt = now
	s.schemas[schema.Name] = schema
	return schema, nil
}

func (s *SchemaStore) GetByName(_ context.Context, name string) (domain.EntitySchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[name]
	if !ok {
		return domain.EntitySchema{}, fmt.Errorf("entity schema %s: %w", name, repository.ErrNotFound)
	}
	return schema, nil
}

func (s *SchemaStore) List(_ context.Context) ([]domain.EntitySchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.EntitySchema, 0, len(s.schemas))
	for _, schema := range s.schemas {
		result = append(result, schema)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *SchemaStore) Update(_ context.Context, schema domain.EntitySchema) (domain.EntitySchema, error) {
	if err := validator.ValidateFields(schema.Fields); err != nil {
		return domain.EntitySchema{}, fmt.Errorf("invalid schema %s: %w", schema.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.schemas[schema.Name]
	if !ok {
		return domain.EntitySchema{}, fmt.Errorf("entity schema %s: %w", schema.Name, repository.ErrNotFound)
	}
	current.Description = schema.Description
	current.Fields = schema.Fields
	if schema.Status != "" {
		current.Status = schema.Status
	}
	current.UpdatedAt = time.Now()
	s.schemas[schema.Name] = current
	return current, nil
}
