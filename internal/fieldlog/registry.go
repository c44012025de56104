package fieldlog

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/pkg/fieldpath"
	"github.com/rpattn/fieldlog/pkg/valuecodec"
)

// EffectiveConfig is the merged configuration of one tracked entity type.
type EffectiveConfig struct {
	EntityType   string
	Enabled      bool
	FailSilently bool
	// TrackedFields are the direct fields, in resolution order.
	TrackedFields []string
	// RelatedFields are the fields of other types this type declared through
	// relation paths.
	RelatedFields []domain.TrackedField
	Callbacks     []NamedCallback
	ExtraData     map[string]any
}

// Registry is the immutable result of Resolve.
type Registry struct {
	configs    map[string]*EffectiveConfig
	order      []string
	dependents map[string][]domain.TrackedField
	catalog    domain.SchemaCatalog
	codec      valuecodec.Codec
}

func newRegistry(catalog domain.SchemaCatalog, codec valuecodec.Codec) *Registry {
	if catalog == nil {
		catalog = domain.NewStaticCatalog()
	}
	if codec == nil {
		codec = valuecodec.NewJSONCodec()
	}
	return &Registry{
		configs:    make(map[string]*EffectiveConfig),
		dependents: make(map[string][]domain.TrackedField),
		catalog:    catalog,
		codec:      codec,
	}
}

// Empty returns a registry that tracks nothing.
func Empty() *Registry {
	return newRegistry(nil, nil)
}

// Config returns a copy of the effective configuration of entityType.
func (r *Registry) Config(entityType string) (EffectiveConfig, bool) {
	cfg, ok := r.configs[entityType]
	if !ok {
		return EffectiveConfig{}, false
	}
	out := *cfg
	out.TrackedFields = append(make([]string, 0, len(cfg.TrackedFields)), cfg.TrackedFields...)
	out.RelatedFields = append(make([]domain.TrackedField, 0, len(cfg.RelatedFields)), cfg.RelatedFields...)
	out.Callbacks = append(make([]NamedCallback, 0, len(cfg.Callbacks)), cfg.Callbacks...)
	out.ExtraData = mergeExtra(cfg.ExtraData)
	return out, true
}

// EntityTypes lists the tracked entity types in declaration order.
func (r *Registry) EntityTypes() []string {
	return append([]string(nil), r.order...)
}

// Dependents returns the related specs of every owner type whose relation
// path ends at targetType.
func (r *Registry) Dependents(targetType string) []domain.TrackedField {
	return append([]domain.TrackedField(nil), r.dependents[targetType]...)
}

// Codec returns the value codec selected by the configuration.
func (r *Registry) Codec() valuecodec.Codec {
	return r.codec
}

// Catalog returns the schema catalog the registry was resolved against.
func (r *Registry) Catalog() domain.SchemaCatalog {
	return r.catalog
}

// TrackedFields returns the specs a mutation of an entityType entity must
// diff: its own direct fields, then every dependent spec whose leaf field
// lives on entityType. A non-empty updateFields narrows both to the named
// fields.
func (r *Registry) TrackedFields(entityType string, updateFields []string) []domain.TrackedField {
	var narrow map[string]struct{}
	if names := fieldpath.NormalizeAll(updateFields); len(names) > 0 {
		narrow = make(map[string]struct{}, len(names))
		for _, name := range names {
			narrow[name] = struct{}{}
		}
	}
	keep := func(field string) bool {
		if narrow == nil {
			return true
		}
		_, ok := narrow[field]
		return ok
	}

	var specs []domain.TrackedField
	if cfg, ok := r.configs[entityType]; ok {
		for _, field := range cfg.TrackedFields {
			if keep(field) {
				specs = append(specs, domain.DirectField(entityType, field))
			}
		}
	}
	for _, spec := range r.dependents[entityType] {
		if keep(spec.Field) {
			specs = append(specs, spec)
		}
	}
	return specs
}

// Loader supplies the raw settings and the schema catalog for a reload.
type Loader func(ctx context.Context) (Settings, domain.SchemaCatalog, error)

// RegistryStore holds the current registry and swaps it atomically on Reload.
type RegistryStore struct {
	current  atomic.Pointer[Registry]
	resolver *Resolver
	loader   Loader
	log      *zap.Logger
}

// NewRegistryStore resolves the initial registry through loader.
func NewRegistryStore(ctx context.Context, resolver *Resolver, loader Loader, log *zap.Logger) (*RegistryStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	store := &RegistryStore{resolver: resolver, loader: loader, log: log}
	if err := store.Reload(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// StaticRegistry wraps an already resolved registry. Reload is a no-op.
func StaticRegistry(registry *Registry) *RegistryStore {
	store := &RegistryStore{log: zap.NewNop()}
	if registry == nil {
		registry = Empty()
	}
	store.current.Store(registry)
	return store
}

// Load returns the current registry.
func (s *RegistryStore) Load() *Registry {
	if registry := s.current.Load(); registry != nil {
		return registry
	}
	return Empty()
}

// Reload rebuilds the registry and swaps it in. On failure the current
// registry stays in place.
func (s *RegistryStore) Reload(ctx context.Context) error {
	if s.loader == nil || s.resolver == nil {
		return nil
	}

	settings, catalog, err := s.loader(ctx)
	if err != nil {
		return ConfigError.Wrap(err)
	}
	registry, err := s.resolver.Resolve(settings, catalog)
	if err != nil {
		return err
	}

	s.current.Store(registry)
	s.log.Info("field logging configuration loaded", zap.Strings("entity_types", registry.EntityTypes()))
	return nil
}
