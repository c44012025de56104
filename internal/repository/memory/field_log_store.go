package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository"
)

type txKey struct{ store *FieldLogStore }

// pendingTx buffers the logs created inside one InTx call.
type pendingTx struct {
	logs []domain.FieldLog
}

// FieldLogStore implements repository.FieldLogRepository in memory. Logs
// created inside InTx become visible only when fn succeeds.
type FieldLogStore struct {
	mu     sync.RWMutex
	logs   []domain.FieldLog
	nextID int64
	now    func() time.Time

	// FailCreate, when set, is returned by Create before anything is buffered.
	FailCreate error
}

// NewFieldLogStore creates an empty in-memory field log store.
func NewFieldLogStore() *FieldLogStore {
	return &FieldLogStore{now: time.Now}
}

var _ repository.FieldLogRepository = (*FieldLogStore)(nil)

func (s *FieldLogStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	key := txKey{store: s}
	if _, ok := ctx.Value(key).(*pendingTx); ok {
		return fn(ctx)
	}

	tx := &pendingTx{}
	if err := fn(context.WithValue(ctx, key, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, tx.logs...)
	return nil
}

func (s *FieldLogStore) Create(ctx context.Context, entry domain.FieldLog) (domain.FieldLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCreate != nil {
		return domain.FieldLog{}, fmt.Errorf("failed to record field log: %w", s.FailCreate)
	}

	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = s.now()
	entry.ExtraData = copyExtra(entry.ExtraData)

	if tx, ok := ctx.Value(txKey{store: s}).(*pendingTx); ok {
		tx.logs = append(tx.logs, entry)
		return entry, nil
	}
	s.logs = append(s.logs, entry)
	return entry, nil
}

func (s *FieldLogStore) ListByEntity(_ context.Context, entityType string, entityID uuid.UUID, filter domain.FieldLogFilter) ([]domain.FieldLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []domain.FieldLog{}
	for i := len(s.logs) - 1; i >= 0; i-- {
		entry := s.logs[i]
		if entry.EntityType != entityType || entry.EntityID != entityID {
			continue
		}
		if filter.Field != "" && entry.Field != filter.Field {
			continue
		}
		if filter.Created != nil && entry.Created != *filter.Created {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *FieldLogStore) Previous(_ context.Context, entry domain.FieldLog) (domain.FieldLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.logs) - 1; i >= 0; i-- {
		candidate := s.logs[i]
		if candidate.ID >= entry.ID {
			continue
		}
		if candidate.EntityType == entry.EntityType && candidate.EntityID == entry.EntityID && candidate.Field == entry.Field {
			return candidate, nil
		}
	}
	return domain.FieldLog{}, fmt.Errorf("previous log of %s: %w", entry.Field, repository.ErrNotFound)
}

// All returns every committed log in creation order.
func (s *FieldLogStore) All() []domain.FieldLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.FieldLog, len(s.logs))
	copy(result, s.logs)
	return result
}

func copyExtra(extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra))
	for key, value := range extra {
		out[key] = value
	}
	return out
}
