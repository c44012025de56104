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
)

type storedEntity struct {
	entity domain.Entity
	seq    int64
}

// EntityStore implements repository.EntityRepository in memory. Returned
// entities never share property maps with the stored copies.
type EntityStore struct {
	mu       sync.RWMutex
	entities map[uuid.UUID]storedEntity
	seq      int64
	now      func() time.Time
}

// NewEntityStore creates an empty in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		entities: make(map[uuid.UUID]storedEntity),
		now:      time.Now,
	}
}

var _ repository.EntityRepository = (*EntityStore)(nil)

func (s *EntityStore) Create(_ context.Context, entity domain.Entity) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entity)
}

func (s *EntityStore) CreateBatch(_ context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entity := range entities {
		if _, exists := s.entities[entity.ID]; exists && entity.ID != uuid.Nil {
			return nil, fmt.Errorf("entity %s already exists", entity.ID)
		}
	}
	created := make([]domain.Entity, 0, len(entities))
	for _, entity := range entities {
		stored, err := s.insertLocked(entity)
		if err != nil {
			return nil, err
		}
		created = append(created, stored)
	}
	return created, nil
}

func (s *EntityStore) insertLocked(entity domain.Entity) (domain.Entity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if _, exists := s.entities[entity.ID]; exists {
		return domain.Entity{}, fmt.Errorf("entity %s already exists", entity.ID)
	}
	now := s.now()
	stored := entity.Clone()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.seq++
	s.entities[stored.ID] = storedEntity{entity: stored, seq: s.seq}
	return stored.Clone(), nil
}

func (s *EntityStore) GetByID(_ context.Context, id uuid.UUID) (domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.entities[id]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", id, repository.ErrNotFound)
	}
	return stored.entity.Clone(), nil
}

func (s *EntityStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make([]storedEntity, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if stored, ok := s.entities[id]; ok {
			found = append(found, stored)
		}
	}
	return sortedClones(found), nil
}

func (s *EntityStore) ListByType(_ context.Context, entityType string) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make([]storedEntity, 0)
	for _, stored := range s.entities {
		if stored.entity.EntityType == entityType {
			found = append(found, stored)
		}
	}
	return sortedClones(found), nil
}

// ListReferencing returns ownerType entities whose field references any of targetIDs.
func (s *EntityStore) ListReferencing(_ context.Context, ownerType, field string, targetIDs []uuid.UUID) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make(map[uuid.UUID]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}

	found := make([]storedEntity, 0)
	for _, stored := range s.entities {
		if stored.entity.EntityType != ownerType {
			continue
		}
		value, ok := stored.entity.Value(field)
		if !ok {
			continue
		}
		for _, id := range domain.ReferenceIDs(value) {
			if _, hit := targets[id]; hit {
				found = append(found, stored)
				break
			}
		}
	}
	return sortedClones(found), nil
}

func (s *EntityStore) Related(ctx context.Context, entity domain.Entity, path domain.RelationPath) ([]domain.Entity, error) {
	return repository.FollowPath(ctx, s, entity, path)
}

func (s *EntityStore) FilterByRelation(ctx context.Context, ownerType string, path domain.RelationPath, targetID uuid.UUID) ([]domain.Entity, error) {
	return repository.InvertPath(ctx, s, ownerType, path, targetID)
}

func (s *EntityStore) Update(_ context.Context, entity domain.Entity) (domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(entity)
}

func (s *EntityStore) UpdateBatch(_ context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entity := range entities {
		if _, ok := s.entities[entity.ID]; !ok {
			return nil, fmt.Errorf("entity %s: %w", entity.ID, repository.ErrNotFound)
		}
	}
	updated := make([]domain.Entity, 0, len(entities))
	for _, entity := range entities {
		stored, err := s.updateLocked(entity)
		if err != nil {
			return nil, err
		}
		updated = append(updated, stored)
	}
	return updated, nil
}

func (s *EntityStore) updateLocked(entity domain.Entity) (domain.Entity, error) {
	current, ok := s.entities[entity.ID]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", entity.ID, repository.ErrNotFound)
	}
	next := current.entity.Clone()
	next.Properties = entity.Clone().Properties
	next.Version++
	next.UpdatedAt = s.now()

	s.entities[entity.ID] = storedEntity{entity: next, seq: current.seq}
	return next.Clone(), nil
}

func (s *EntityStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[id]; !ok {
		return fmt.Errorf("entity %s: %w", id, repository.ErrNotFound)
	}
	delete(s.entities, id)
	return nil
}

func sortedClones(found []storedEntity) []domain.Entity {
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	entities := make([]domain.Entity, len(found))
	for i, stored := range found {
		entities[i] = stored.entity.Clone()
	}
	return entities
}
