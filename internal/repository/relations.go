package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/fieldlog/internal/domain"
)

// referenceReader is implemented by stores that can walk reference fields in
// both directions.
type referenceReader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
	// ListReferencing returns ownerType entities whose field references any of
	// targetIDs, ordered by creation.
	ListReferencing(ctx context.Context, ownerType, field string, targetIDs []uuid.UUID) ([]domain.Entity, error)
}

// FollowPath walks path forward from start, one reference field per hop, and
// returns the entities reached at the end. Missing targets end their branch.
func FollowPath(ctx context.Context, store referenceReader, start domain.Entity, path domain.RelationPath) ([]domain.Entity, error) {
	current := []domain.Entity{start}
	for _, segment := range path {
		var ids []uuid.UUID
		for _, entity := range current {
			value, ok := entity.Value(segment.Field)
			if !ok {
				continue
			}
			ids = append(ids, domain.ReferenceIDs(value)...)
		}
		if len(ids) == 0 {
			return []domain.Entity{}, nil
		}

		reached, err := store.GetByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to follow relation %s: %w", segment.Field, err)
		}
		current = make([]domain.Entity, 0, len(reached))
		for _, entity := range reached {
			if segment.TargetType == "" || entity.EntityType == segment.TargetType {
				current = append(current, entity)
			}
		}
	}
	return current, nil
}

// InvertPath walks path backwards from targetID and returns every ownerType
// entity that reaches it.
func InvertPath(ctx context.Context, store referenceReader, ownerType string, path domain.RelationPath, targetID uuid.UUID) ([]domain.Entity, error) {
	if path.IsEmpty() {
		return nil, fmt.Errorf("cannot invert an empty relation path")
	}

	ids := []uuid.UUID{targetID}
	var owners []domain.Entity
	for i := len(path) - 1; i >= 0; i-- {
		segment := path[i]
		sourceType := segment.OwnerType
		if i == 0 && ownerType != "" {
			sourceType = ownerType
		}

		found, err := store.ListReferencing(ctx, sourceType, segment.Field, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to invert relation %s: %w", segment.Field, err)
		}
		if len(found) == 0 {
			return []domain.Entity{}, nil
		}

		owners = found
		ids = make([]uuid.UUID, len(found))
		for j, entity := range found {
			ids[j] = entity.ID
		}
	}
	return owners, nil
}
