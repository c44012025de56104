package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/fieldlog/internal/domain"
)

// Reader is the batched read the loader is built on.
type Reader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error)
}

type EntityLoader struct {
	Loader *dataloader.Loader
}

// NewEntityLoader batches entity reads by id. Missing ids resolve to nil data.
func NewEntityLoader(repo Reader, opts ...dataloader.Option) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]uuid.UUID, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				return failAll(len(keys), fmt.Errorf("invalid UUID: %w", err))
			}
			ids[i] = id
		}

		entities, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			return failAll(len(keys), err)
		}

		entityMap := make(map[uuid.UUID]domain.Entity, len(entities))
		for _, e := range entities {
			entityMap[e.ID] = e
		}

		// Results must line up with keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if e, ok := entityMap[id]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	options := append([]dataloader.Option{dataloader.WithWait(5 * time.Millisecond)}, opts...)
	return &EntityLoader{Loader: dataloader.NewBatchedLoader(batchFn, options...)}
}

func failAll(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}

// LoadSnapshots reads the stored state of every id in a single batch and
// returns it keyed by id. Ids without a stored entity are absent from the map.
func LoadSnapshots(ctx context.Context, repo Reader, ids []uuid.UUID) (map[uuid.UUID]domain.Entity, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id.String())
	}

	snapshots := make(map[uuid.UUID]domain.Entity, len(unique))
	if len(unique) == 0 {
		return snapshots, nil
	}

	loader := NewEntityLoader(repo,
		dataloader.WithBatchCapacity(len(unique)),
		dataloader.WithCache(&dataloader.NoCache{}),
	)
	values, errs := loader.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(unique))()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, value := range values {
		if entity, ok := value.(domain.Entity); ok {
			snapshots[entity.ID] = entity
		}
	}
	return snapshots, nil
}
