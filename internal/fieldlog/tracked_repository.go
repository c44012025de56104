package fieldlog

import (
	"context"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
)

// TrackedEntityRepository decorates an entity repository with change
// tracking. Snapshot, mutation and log writes share one transaction;
// callbacks run after it commits.
//
// When a callback of a type with failSilently disabled fails, the write
// methods return the saved entity together with the CallbackError: the data
// change and its logs are already committed at that point.
type TrackedEntityRepository struct {
	repository.EntityRepository

	tracker *Tracker
	tx      repository.Transactor
}

var _ repository.EntityRepository = (*TrackedEntityRepository)(nil)

// NewTrackedEntityRepository wraps inner. tx is usually the field log
// repository, so that log writes join the mutation's transaction.
func NewTrackedEntityRepository(inner repository.EntityRepository, tracker *Tracker, tx repository.Transactor) *TrackedEntityRepository {
	return &TrackedEntityRepository{EntityRepository: inner, tracker: tracker, tx: tx}
}

// Create stores a new entity and logs its tracked fields as created.
func (r *TrackedEntityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	return r.save(ctx, entity, SaveOptions{}, r.EntityRepository.Create)
}

// Update stores entity and logs every tracked field that changed.
func (r *TrackedEntityRepository) Update(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	return r.save(ctx, entity, SaveOptions{}, r.EntityRepository.Update)
}

// UpdateFields writes only the named fields of entity over its stored state
// and tracks only those fields. Both happen in the same transaction.
func (r *TrackedEntityRepository) UpdateFields(ctx context.Context, entity domain.Entity, fields []string) (domain.Entity, error) {
	return r.save(ctx, entity, SaveOptions{UpdateFields: fields}, r.EntityRepository.Update)
}

func (r *TrackedEntityRepository) save(
	ctx context.Context,
	entity domain.Entity,
	opts SaveOptions,
	write func(context.Context, domain.Entity) (domain.Entity, error),
) (domain.Entity, error) {
	var (
		saved  domain.Entity
		result Result
	)
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := r.tracker.BeforeSave(ctx, entity, opts)
		if err != nil {
			return err
		}
		saved, err = write(ctx, m.Apply(entity, opts.UpdateFields))
		if err != nil {
			return err
		}
		result, err = r.tracker.AfterSave(ctx, m, saved)
		return err
	})
	if err != nil {
		return domain.Entity{}, err
	}

	return saved, r.tracker.Dispatch(ctx, result)
}

// CreateBatch is BulkCreate with default options.
func (r *TrackedEntityRepository) CreateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	return r.BulkCreate(ctx, entities, BulkOptions{})
}

// UpdateBatch is BulkUpdate of every field with default options.
func (r *TrackedEntityRepository) UpdateBatch(ctx context.Context, entities []domain.Entity) ([]domain.Entity, error) {
	return r.BulkUpdate(ctx, entities, nil, BulkOptions{})
}

// BulkCreate stores all entities in one batch and logs them as created.
func (r *TrackedEntityRepository) BulkCreate(ctx context.Context, entities []domain.Entity, opts BulkOptions) ([]domain.Entity, error) {
	var (
		created []domain.Entity
		result  Result
	)
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		created, err = r.EntityRepository.CreateBatch(ctx, entities)
		if err != nil || opts.SkipLogFields {
			return err
		}
		result, err = r.tracker.AfterBulkCreate(ctx, created)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.SkipLogFields || opts.SkipCallbacks {
		return created, nil
	}
	return created, r.tracker.Dispatch(ctx, result)
}

// BulkUpdate captures the snapshots of all entities in one read, updates
// them in one batch and logs the changes. A non-empty fields list limits
// both the written and the tracked fields.
func (r *TrackedEntityRepository) BulkUpdate(ctx context.Context, entities []domain.Entity, fields []string, opts BulkOptions) ([]domain.Entity, error) {
	var (
		updated []domain.Entity
		result  Result
	)
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		bm, err := r.tracker.BeforeBulkUpdate(ctx, entities, fields)
		if err != nil {
			return err
		}
		updated, err = r.EntityRepository.UpdateBatch(ctx, bm.Apply(entities, fields))
		if err != nil || opts.SkipLogFields {
			return err
		}
		result, err = r.tracker.AfterBulkUpdate(ctx, bm)
		return err
	})
	if err != nil {
		return nil, err
	}
	if opts.SkipLogFields || opts.SkipCallbacks {
		return updated, nil
	}
	return updated, r.tracker.Dispatch(ctx, result)
}
