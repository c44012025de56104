package fieldlog

import (
	"context"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
)

// Writer persists changes as immutable field logs.
type Writer struct {
	logs    repository.FieldLogRepository
	metrics *Metrics
}

// NewWriter creates a writer on top of logs. metrics may be nil.
func NewWriter(logs repository.FieldLogRepository, metrics *Metrics) *Writer {
	return &Writer{logs: logs, metrics: metrics}
}

// Write stores one log per change, in order, inside one transaction. The
// first failure aborts the remaining writes and rolls back the ones already
// made.
func (w *Writer) Write(ctx context.Context, registry *Registry, changes []Change) ([]domain.FieldLog, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	codec := registry.Codec()

	written := make([]domain.FieldLog, 0, len(changes))
	err := w.logs.InTx(ctx, func(ctx context.Context) error {
		for _, change := range changes {
			oldValue, err := codec.Encode(change.OldValue)
			if err != nil {
				return StorageError.New("encode old value of %s: %v", change.Field, err)
			}
			newValue, err := codec.Encode(change.NewValue)
			if err != nil {
				return StorageError.New("encode new value of %s: %v", change.Field, err)
			}

			var extra map[string]any
			if cfg, ok := registry.configs[change.Entity.EntityType]; ok {
				extra = cfg.ExtraData
			}

			log, err := w.logs.Create(ctx, domain.FieldLog{
				EntityType: change.Entity.EntityType,
				EntityID:   change.Entity.ID,
				Field:      change.Field,
				OldValue:   oldValue,
				NewValue:   newValue,
				Related:    change.Related,
				Created:    change.Created,
				ExtraData:  mergeExtra(extra),
			})
			if err != nil {
				return StorageError.Wrap(err)
			}
			written = append(written, log)
		}
		return nil
	})
	if err != nil {
		if !StorageError.Has(err) {
			err = StorageError.Wrap(err)
		}
		return nil, err
	}

	for _, log := range written {
		w.metrics.changeWritten(log.EntityType)
	}
	return written, nil
}
