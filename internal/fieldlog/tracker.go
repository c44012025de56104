package fieldlog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/entityloader"
	"github.com/rpattn/fieldlog/internal/repository"
)

// SaveOptions narrow what a single save logs.
type SaveOptions struct {
	// UpdateFields, when non-empty, restricts tracking to these fields, for
	// both direct and related specs.
	UpdateFields []string
}

// BulkOptions toggle the work done by bulk operations. The zero value logs
// fields and runs callbacks.
type BulkOptions struct {
	SkipLogFields bool
	SkipCallbacks bool
}

// Result carries what one mutation wrote, in write order. Changes[i] produced
// Logs[i].
type Result struct {
	Changes []Change
	Logs    []domain.FieldLog

	registry *Registry
}

// Mutation is the state captured before a save and consumed after it. It
// belongs to exactly one save call.
type Mutation struct {
	registry *Registry
	entityID uuid.UUID
	specs    []domain.TrackedField
	pre      *domain.Snapshot
	// stored is the state read before a narrowed save, nil otherwise.
	stored *domain.Entity
}

// Created reports whether no stored state existed before the save.
func (m *Mutation) Created() bool {
	return m == nil || m.pre == nil
}

// BulkMutation is the state captured before a bulk update.
type BulkMutation struct {
	registry *Registry
	items    []Mutation
	current  map[uuid.UUID]domain.Entity
}

// Apply returns the entities to write. With updateFields set, only those
// fields are taken from entities and the rest keep their stored values.
func (b *BulkMutation) Apply(entities []domain.Entity, updateFields []string) []domain.Entity {
	if len(updateFields) == 0 {
		return entities
	}

	out := make([]domain.Entity, len(entities))
	for i, entity := range entities {
		base, ok := b.current[entity.ID]
		if !ok {
			out[i] = entity
			continue
		}
		out[i] = mergeFields(base, entity, updateFields)
	}
	return out
}

// Apply returns the entity to write for a single save. With updateFields set,
// only those fields are taken from entity and the rest keep the values read
// by BeforeSave.
func (m *Mutation) Apply(entity domain.Entity, updateFields []string) domain.Entity {
	if m == nil || m.stored == nil || len(updateFields) == 0 {
		return entity
	}
	return mergeFields(*m.stored, entity, updateFields)
}

func mergeFields(base, entity domain.Entity, fields []string) domain.Entity {
	merged := base.Clone()
	if merged.Properties == nil {
		merged.Properties = make(map[string]any, len(fields))
	}
	for _, field := range fields {
		if value, present := entity.Value(field); present {
			merged.Properties[field] = value
		} else {
			delete(merged.Properties, field)
		}
	}
	return merged
}

// Tracker captures snapshots around host mutations, writes the resulting
// logs and dispatches them.
type Tracker struct {
	registry   *RegistryStore
	store      repository.EntityStore
	diff       *DiffEngine
	writer     *Writer
	dispatcher *Dispatcher
	metrics    *Metrics
	log        *zap.Logger
	tracer     trace.Tracer
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = metrics
	}
}

// WithTracer overrides the otel tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tracker) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}

// NewTracker wires the diff engine, writer and dispatcher.
func NewTracker(registry *RegistryStore, store repository.EntityStore, logs repository.FieldLogRepository, opts ...Option) *Tracker {
	t := &Tracker{
		registry: registry,
		store:    store,
		log:      zap.NewNop(),
		tracer:   otel.Tracer("fieldlog"),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.diff = NewDiffEngine(store)
	t.writer = NewWriter(logs, t.metrics)
	t.dispatcher = NewDispatcher(t.log, t.metrics)
	return t
}

// Registry returns the registry currently in effect.
func (t *Tracker) Registry() *Registry {
	return t.registry.Load()
}

// BeforeSave captures the pre-mutation snapshot of entity. It must run
// immediately before the host applies the mutation. With UpdateFields set the
// stored entity is kept so that Mutation.Apply can write only those fields.
func (t *Tracker) BeforeSave(ctx context.Context, entity domain.Entity, opts SaveOptions) (*Mutation, error) {
	registry := t.registry.Load()
	m := &Mutation{
		registry: registry,
		entityID: entity.ID,
		specs:    registry.TrackedFields(entity.EntityType, opts.UpdateFields),
	}
	narrowed := len(opts.UpdateFields) > 0
	if entity.ID == uuid.Nil || (len(m.specs) == 0 && !narrowed) {
		return m, nil
	}

	current, err := t.store.GetByID(ctx, entity.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return nil, StorageError.Wrap(err)
	}
	if narrowed {
		m.stored = &current
	}
	if len(m.specs) > 0 {
		m.pre = domain.NewSnapshot(current, leafFields(m.specs))
	}
	return m, nil
}

// AfterSave diffs the saved entity against the snapshot of m and writes the
// changes. saved must carry the identity the host assigned.
func (t *Tracker) AfterSave(ctx context.Context, m *Mutation, saved domain.Entity) (result Result, err error) {
	if m == nil || len(m.specs) == 0 {
		return Result{registry: t.registry.Load()}, nil
	}

	ctx, span := t.tracer.Start(ctx, "fieldlog.Tracker.AfterSave", trace.WithAttributes(
		attribute.String("entity_type", saved.EntityType),
		attribute.String("entity_id", saved.ID.String()),
		attribute.Bool("created", m.Created()),
	))
	defer func() { endSpan(span, len(result.Logs), err) }()

	changes, err := t.diff.Compute(ctx, saved, m.specs, m.pre, m.registry.Catalog())
	if err != nil {
		return Result{}, err
	}
	logs, err := t.writer.Write(ctx, m.registry, changes)
	if err != nil {
		return Result{}, err
	}
	return Result{Changes: changes, Logs: logs, registry: m.registry}, nil
}

// Dispatch runs the callbacks for result. It must run after the logs of the
// mutation are durable.
func (t *Tracker) Dispatch(ctx context.Context, result Result) error {
	registry := result.registry
	if registry == nil {
		registry = t.registry.Load()
	}
	return t.dispatcher.Dispatch(ctx, registry, result)
}

// BeforeBulkUpdate captures the snapshots of every entity in one batched
// read, before any of them is mutated.
func (t *Tracker) BeforeBulkUpdate(ctx context.Context, entities []domain.Entity, updateFields []string) (*BulkMutation, error) {
	registry := t.registry.Load()

	ids := make([]uuid.UUID, len(entities))
	for i, entity := range entities {
		ids[i] = entity.ID
	}
	current, err := entityloader.LoadSnapshots(ctx, t.store, ids)
	if err != nil {
		return nil, StorageError.Wrap(err)
	}

	bm := &BulkMutation{registry: registry, current: current, items: make([]Mutation, len(entities))}
	for i, entity := range entities {
		item := Mutation{
			registry: registry,
			entityID: entity.ID,
			specs:    registry.TrackedFields(entity.EntityType, updateFields),
		}
		if stored, ok := current[entity.ID]; ok && len(item.specs) > 0 {
			item.pre = domain.NewSnapshot(stored, leafFields(item.specs))
		}
		bm.items[i] = item
	}
	return bm, nil
}

// AfterBulkUpdate diffs every updated entity against its snapshot and writes
// all changes in one transaction.
func (t *Tracker) AfterBulkUpdate(ctx context.Context, bm *BulkMutation) (result Result, err error) {
	if bm == nil {
		return Result{registry: t.registry.Load()}, nil
	}

	ctx, span := t.tracer.Start(ctx, "fieldlog.Tracker.AfterBulkUpdate", trace.WithAttributes(
		attribute.Int("entities", len(bm.items)),
	))
	defer func() { endSpan(span, len(result.Logs), err) }()

	return t.bulkWrite(ctx, bm.registry, bm.items)
}

// AfterBulkCreate logs every field of the created entities. There are no
// snapshots, so every change is a creation.
func (t *Tracker) AfterBulkCreate(ctx context.Context, created []domain.Entity) (result Result, err error) {
	registry := t.registry.Load()

	ctx, span := t.tracer.Start(ctx, "fieldlog.Tracker.AfterBulkCreate", trace.WithAttributes(
		attribute.Int("entities", len(created)),
	))
	defer func() { endSpan(span, len(result.Logs), err) }()

	items := make([]Mutation, len(created))
	for i, entity := range created {
		items[i] = Mutation{
			registry: registry,
			entityID: entity.ID,
			specs:    registry.TrackedFields(entity.EntityType, nil),
		}
	}
	return t.bulkWrite(ctx, registry, items)
}

func (t *Tracker) bulkWrite(ctx context.Context, registry *Registry, items []Mutation) (Result, error) {
	// An id listed twice is diffed once, against its first snapshot.
	seen := make(map[uuid.UUID]struct{}, len(items))
	unique := make([]Mutation, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if len(item.specs) == 0 {
			continue
		}
		if _, dup := seen[item.entityID]; dup {
			continue
		}
		seen[item.entityID] = struct{}{}
		unique = append(unique, item)
		ids = append(ids, item.entityID)
	}
	if len(ids) == 0 {
		return Result{registry: registry}, nil
	}

	current, err := entityloader.LoadSnapshots(ctx, t.store, ids)
	if err != nil {
		return Result{}, StorageError.Wrap(err)
	}

	var changes []Change
	for _, item := range unique {
		entity, ok := current[item.entityID]
		if !ok {
			return Result{}, StorageError.Wrap(repository.ErrNotFound)
		}
		itemChanges, err := t.diff.ComputeCurrent(ctx, entity, item.specs, item.pre, registry.Catalog())
		if err != nil {
			return Result{}, err
		}
		changes = append(changes, itemChanges...)
	}

	logs, err := t.writer.Write(ctx, registry, changes)
	if err != nil {
		return Result{}, err
	}
	return Result{Changes: changes, Logs: logs, registry: registry}, nil
}

func leafFields(specs []domain.TrackedField) []string {
	fields := make([]string, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, ok := seen[spec.Field]; ok {
			continue
		}
		seen[spec.Field] = struct{}{}
		fields = append(fields, spec.Field)
	}
	return fields
}

func endSpan(span trace.Span, written int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("logs_written", written))
	}
	span.End()
}
