package fieldlog

import (
	"strings"

	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/pkg/fieldpath"
	"github.com/rpattn/fieldlog/pkg/valuecodec"
)

// Resolver merges the global, group and entity type scopes of Settings into
// a Registry.
type Resolver struct {
	callbacks *CallbackRegistry
	log       *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger that reports dropped configuration entries.
func WithResolverLogger(log *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver creates a resolver that looks callback names up in callbacks.
func NewResolver(callbacks *CallbackRegistry, opts ...ResolverOption) *Resolver {
	r := &Resolver{callbacks: callbacks, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is a shorthand for NewResolver(callbacks).Resolve(settings, catalog).
func Resolve(settings Settings, catalog domain.SchemaCatalog, callbacks *CallbackRegistry) (*Registry, error) {
	return NewResolver(callbacks).Resolve(settings, catalog)
}

// Resolve builds the registry. Unknown entity types, relation paths and
// fields are dropped; an unknown callback name is a ConfigError.
func (r *Resolver) Resolve(settings Settings, catalog domain.SchemaCatalog) (*Registry, error) {
	codec, err := valuecodec.Lookup(strings.TrimSpace(settings.Encoder))
	if err != nil {
		return nil, ConfigError.Wrap(err)
	}
	registry := newRegistry(catalog, codec)

	global := settings.ScopeSettings
	if !flag(global.Enabled) {
		r.log.Debug("field logging disabled globally")
		return registry, nil
	}

	for _, group := range settings.Groups {
		if !flag(group.Enabled) {
			r.log.Debug("skipping disabled group", zap.String("group", group.Name))
			continue
		}

		for _, entityType := range group.EntityTypes {
			name := strings.TrimSpace(entityType.Name)
			if !flag(entityType.Enabled) {
				r.log.Debug("skipping disabled entity type", zap.String("group", group.Name), zap.String("entity_type", name))
				continue
			}

			schema, ok := registry.catalog.Schema(name)
			if !ok {
				r.log.Debug("skipping unknown entity type", zap.String("group", group.Name), zap.String("entity_type", name))
				continue
			}

			callbacks, err := r.callbackChain(global, group.ScopeSettings, entityType.ScopeSettings)
			if err != nil {
				return nil, err
			}

			cfg := &EffectiveConfig{
				EntityType:    schema.Name,
				Enabled:       true,
				FailSilently:  flag(global.FailSilently) && flag(group.FailSilently) && flag(entityType.FailSilently),
				TrackedFields: selectFields(schema, entityType),
				RelatedFields: r.resolveRelated(schema, entityType.RelatedFields, registry.catalog),
				Callbacks:     callbacks,
				ExtraData:     mergeExtra(global.ExtraData, group.ExtraData, entityType.ExtraData),
			}
			registry.merge(cfg)
		}
	}

	registry.indexDependents()
	return registry, nil
}

func (r *Resolver) callbackChain(scopes ...ScopeSettings) ([]NamedCallback, error) {
	var chain []NamedCallback
	for _, scope := range scopes {
		for _, name := range scope.Callbacks {
			name = strings.TrimSpace(name)
			fn, ok := r.callbacks.Lookup(name)
			if !ok {
				return nil, ConfigError.New("unknown callback %q (registered: %s)", name, strings.Join(r.callbacks.Names(), ", "))
			}
			chain = append(chain, NamedCallback{Name: name, Fn: fn})
		}
		for _, named := range scope.CallbackFuncs {
			if named.Fn == nil {
				return nil, ConfigError.New("callback %q has no function", named.Name)
			}
			chain = append(chain, named)
		}
	}
	return chain, nil
}

// selectFields applies the inclusion and exclusion lists to the declared
// fields of schema. Names the schema does not declare are dropped.
func selectFields(schema domain.EntitySchema, settings EntityTypeSettings) []string {
	included := fieldpath.NormalizeAll(settings.Fields)
	excluded := make(map[string]struct{})
	for _, name := range fieldpath.NormalizeAll(settings.ExcludeFields) {
		excluded[name] = struct{}{}
	}

	all := len(included) == 0 && len(excluded) > 0
	for _, name := range included {
		if strings.EqualFold(name, AllFields) {
			all = true
			break
		}
	}
	if all {
		included = schema.FieldNames()
	}

	fields := make([]string, 0, len(included))
	for _, name := range included {
		if _, skip := excluded[name]; skip {
			continue
		}
		if !schema.HasField(name) {
			continue
		}
		fields = append(fields, name)
	}
	return fields
}

// resolveRelated walks every dotted path one relation at a time from owner.
func (r *Resolver) resolveRelated(owner domain.EntitySchema, paths []string, catalog domain.SchemaCatalog) []domain.TrackedField {
	var specs []domain.TrackedField
	for _, raw := range fieldpath.NormalizeAll(paths) {
		spec, ok := resolvePath(owner, raw, catalog)
		if !ok {
			r.log.Debug("dropping unresolvable related field", zap.String("entity_type", owner.Name), zap.String("path", raw))
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

func resolvePath(owner domain.EntitySchema, path string, catalog domain.SchemaCatalog) (domain.TrackedField, bool) {
	prefix, leaf := fieldpath.Split(path)
	if len(prefix) == 0 || leaf == "" {
		return domain.TrackedField{}, false
	}

	current := owner
	relation := make(domain.RelationPath, 0, len(prefix))
	for _, segment := range prefix {
		def, ok := current.Field(segment)
		if !ok || !def.IsRelation() {
			return domain.TrackedField{}, false
		}
		target, ok := catalog.Schema(strings.TrimSpace(def.ReferenceEntityType))
		if !ok {
			return domain.TrackedField{}, false
		}
		relation = append(relation, domain.RelationSegment{
			Field:      segment,
			OwnerType:  current.Name,
			TargetType: target.Name,
			Many:       def.IsToMany(),
		})
		current = target
	}

	if !current.HasField(leaf) {
		return domain.TrackedField{}, false
	}
	return domain.TrackedField{
		OwnerType:  owner.Name,
		Path:       relation,
		Field:      leaf,
		TargetType: relation.Target(owner.Name),
	}, true
}

// merge folds cfg into the registry. A type declared more than once keeps
// the union of its fields and related specs.
func (r *Registry) merge(cfg *EffectiveConfig) {
	existing, ok := r.configs[cfg.EntityType]
	if !ok {
		r.configs[cfg.EntityType] = cfg
		r.order = append(r.order, cfg.EntityType)
		return
	}

	existing.FailSilently = existing.FailSilently && cfg.FailSilently
	for _, field := range cfg.TrackedFields {
		if !containsString(existing.TrackedFields, field) {
			existing.TrackedFields = append(existing.TrackedFields, field)
		}
	}
	for _, spec := range cfg.RelatedFields {
		if !containsSpec(existing.RelatedFields, spec) {
			existing.RelatedFields = append(existing.RelatedFields, spec)
		}
	}
	existing.Callbacks = append(existing.Callbacks, cfg.Callbacks...)
	existing.ExtraData = mergeExtra(existing.ExtraData, cfg.ExtraData)
}

func (r *Registry) indexDependents() {
	for _, entityType := range r.order {
		for _, spec := range r.configs[entityType].RelatedFields {
			r.dependents[spec.TargetType] = append(r.dependents[spec.TargetType], spec)
		}
	}
}

func mergeExtra(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func containsSpec(specs []domain.TrackedField, spec domain.TrackedField) bool {
	for _, s := range specs {
		if s.Key() == spec.Key() {
			return true
		}
	}
	return false
}
