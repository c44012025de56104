package fieldlog

import (
	"context"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
)

// Change is one field transition attributed to one affected entity, before
// it is written.
type Change struct {
	// Entity is the entity the log is attributed to. For related changes it
	// differs from Source.
	Entity   domain.Entity
	Source   domain.EntityRef
	Field    string
	OldValue any
	NewValue any
	Related  bool
	Created  bool
}

// DiffEngine computes the changes of one mutation.
type DiffEngine struct {
	store repository.EntityStore
}

// NewDiffEngine creates a diff engine that re-reads entities from store.
func NewDiffEngine(store repository.EntityStore) *DiffEngine {
	return &DiffEngine{store: store}
}

// Compute diffs the stored state of entity against pre for every spec. A nil
// pre marks the mutation as a creation. Changes come out in spec order, and
// a related spec yields one change per owner reached by inverting its path.
func (d *DiffEngine) Compute(ctx context.Context, entity domain.Entity, specs []domain.TrackedField, pre *domain.Snapshot, catalog domain.SchemaCatalog) ([]Change, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	current, err := d.store.GetByID(ctx, entity.ID)
	if err != nil {
		return nil, StorageError.Wrap(err)
	}
	return d.compute(ctx, current, specs, pre, catalog)
}

// ComputeCurrent is Compute for an entity that has just been read back.
func (d *DiffEngine) ComputeCurrent(ctx context.Context, current domain.Entity, specs []domain.TrackedField, pre *domain.Snapshot, catalog domain.SchemaCatalog) ([]Change, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	return d.compute(ctx, current, specs, pre, catalog)
}

func (d *DiffEngine) compute(ctx context.Context, current domain.Entity, specs []domain.TrackedField, pre *domain.Snapshot, catalog domain.SchemaCatalog) ([]Change, error) {
	var schema *domain.EntitySchema
	if catalog != nil {
		if s, ok := catalog.Schema(current.EntityType); ok {
			schema = &s
		}
	}

	var changes []Change
	for _, spec := range specs {
		newValue, readable := current.Value(spec.Field)
		if !readable && (schema == nil || !schema.HasField(spec.Field)) {
			continue
		}
		oldValue := pre.Value(spec.Field)
		if domain.ValuesEqual(newValue, oldValue) {
			continue
		}

		affected := []domain.Entity{current}
		if spec.Related() {
			owners, err := d.store.FilterByRelation(ctx, spec.OwnerType, spec.Path, current.ID)
			if err != nil {
				return nil, StorageError.Wrap(err)
			}
			affected = owners
		}

		for _, owner := range affected {
			changes = append(changes, Change{
				Entity:   owner,
				Source:   current.Ref(),
				Field:    spec.LogField(),
				OldValue: oldValue,
				NewValue: newValue,
				Related:  spec.Related(),
				Created:  pre == nil,
			})
		}
	}
	return changes, nil
}
