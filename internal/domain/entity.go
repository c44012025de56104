package domain

import (
	"encoding/json"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Entity represents a dynamic entity instance whose fields live in Properties
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	EntityType string         `json:"entity_type"`
	Properties map[string]any `json:"properties"`
	Version    int64          `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// EntityRef identifies an entity by type and surrogate identity only.
type EntityRef struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
}

// NewEntity creates a new entity with immutable pattern
func NewEntity(entityType string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:         uuid.New(),
		EntityType: entityType,
		Properties: copyProperties(properties),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Ref returns the surrogate reference of the entity.
func (e Entity) Ref() EntityRef {
	return EntityRef{ID: e.ID, EntityType: e.EntityType}
}

// Value returns the stored value of a field and whether the record carries it.
func (e Entity) Value(field string) (any, bool) {
	if e.Properties == nil {
		return nil, false
	}
	value, ok := e.Properties[field]
	return value, ok
}

// WithProperty returns a new entity with an added/updated property
func (e Entity) WithProperty(key string, value any) Entity {
	newProperties := copyProperties(e.Properties)
	newProperties[key] = value

	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: newProperties,
		Version:    e.Version,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// WithProperties returns a new entity with the given properties merged over the current ones
func (e Entity) WithProperties(properties map[string]any) Entity {
	newProperties := copyProperties(e.Properties)
	for key, value := range properties {
		newProperties[key] = value
	}

	return Entity{
		ID:         e.ID,
		EntityType: e.EntityType,
		Properties: newProperties,
		Version:    e.Version,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  time.Now(),
	}
}

// Clone returns a copy that shares no property map with the receiver.
func (e Entity) Clone() Entity {
	clone := e
	clone.Properties = copyProperties(e.Properties)
	return clone
}

func (e *Entity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return gojson.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	var properties map[string]any
	if len(propertiesJSON) == 0 {
		return map[string]any{}, nil
	}
	err := gojson.Unmarshal(propertiesJSON, &properties)
	if properties == nil {
		properties = map[string]any{}
	}
	return properties, err
}

// ReferenceIDs extracts the entity identities held by a reference-typed
// property value. Single references and reference arrays are both accepted;
// malformed entries are ignored.
func ReferenceIDs(value any) []uuid.UUID {
	switch v := value.(type) {
	case nil:
		return nil
	case uuid.UUID:
		if v == uuid.Nil {
			return nil
		}
		return []uuid.UUID{v}
	case EntityRef:
		return ReferenceIDs(v.ID)
	case Entity:
		return ReferenceIDs(v.ID)
	case string:
		id, err := uuid.Parse(strings.TrimSpace(v))
		if err != nil || id == uuid.Nil {
			return nil
		}
		return []uuid.UUID{id}
	case []uuid.UUID:
		return uniqueIDs(v)
	case []string:
		ids := make([]uuid.UUID, 0, len(v))
		for _, item := range v {
			ids = append(ids, ReferenceIDs(item)...)
		}
		return uniqueIDs(ids)
	case []EntityRef:
		ids := make([]uuid.UUID, 0, len(v))
		for _, item := range v {
			ids = append(ids, item.ID)
		}
		return uniqueIDs(ids)
	case []any:
		ids := make([]uuid.UUID, 0, len(v))
		for _, item := range v {
			ids = append(ids, ReferenceIDs(item)...)
		}
		return uniqueIDs(ids)
	default:
		return nil
	}
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	var result []uuid.UUID
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// copyProperties creates a copy of the properties map to ensure immutability
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		// Values are shared; callers replace values rather than mutate them.
		newProperties[k] = v
	}
	return newProperties
}
