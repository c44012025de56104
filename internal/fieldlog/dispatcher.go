package fieldlog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
)

// Dispatcher runs the configured callbacks for written logs.
type Dispatcher struct {
	log     *zap.Logger
	metrics *Metrics
}

// NewDispatcher creates a dispatcher. log and metrics may be nil.
func NewDispatcher(log *zap.Logger, metrics *Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log, metrics: metrics}
}

type dispatchGroup struct {
	entity domain.Entity
	logs   map[string]domain.FieldLog
}

// Dispatch groups logs by affected entity, in first appearance order, and
// invokes the callbacks of each entity's type once per entity. Callback
// failures are logged and skipped for fail-silent types; otherwise the first
// one stops dispatch and is returned as a CallbackError. Logs are never
// touched.
func (d *Dispatcher) Dispatch(ctx context.Context, registry *Registry, result Result) error {
	if len(result.Logs) == 0 {
		return nil
	}
	defer d.metrics.observeDispatch(time.Now())

	var (
		order  []domain.EntityRef
		groups = make(map[domain.EntityRef]*dispatchGroup)
	)
	for i, log := range result.Logs {
		ref := log.Entity()
		group, ok := groups[ref]
		if !ok {
			group = &dispatchGroup{entity: result.Changes[i].Entity, logs: make(map[string]domain.FieldLog)}
			groups[ref] = group
			order = append(order, ref)
		}
		group.logs[log.Field] = log
	}

	for _, ref := range order {
		cfg, ok := registry.configs[ref.EntityType]
		if !ok {
			continue
		}
		group := groups[ref]

		for _, callback := range cfg.Callbacks {
			err := invoke(ctx, callback, group.entity, group.logs)
			if err == nil {
				continue
			}
			d.metrics.callbackFailed(ref.EntityType, cfg.FailSilently)
			if !cfg.FailSilently {
				return CallbackError.Wrap(fmt.Errorf("%s on %s %s: %w", callback.Name, ref.EntityType, ref.ID, err))
			}
			d.log.Warn("field log callback failed",
				zap.String("callback", callback.Name),
				zap.String("entity_type", ref.EntityType),
				zap.Stringer("entity_id", ref.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// invoke runs one callback, turning a panic into an error.
func invoke(ctx context.Context, callback NamedCallback, entity domain.Entity, logs map[string]domain.FieldLog) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return callback.Fn(ctx, entity, copyLogs(logs))
}

func copyLogs(logs map[string]domain.FieldLog) map[string]domain.FieldLog {
	out := make(map[string]domain.FieldLog, len(logs))
	for field, log := range logs {
		out[field] = log
	}
	return out
}
