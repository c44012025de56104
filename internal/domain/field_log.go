package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FieldLog is the immutable record of one field's old to new transition.
// ID is assigned by the store and grows with creation order.
type FieldLog struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id"`
	Field      string          `json:"field"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	Related    bool            `json:"related"`
	Created    bool            `json:"created"`
	CreatedAt  time.Time       `json:"created_at"`
	ExtraData  map[string]any  `json:"extra_data"`
}

// Entity returns the reference of the entity the log is attributed to.
func (l FieldLog) Entity() EntityRef {
	return EntityRef{ID: l.EntityID, EntityType: l.EntityType}
}

// FieldLogFilter narrows history listings.
type FieldLogFilter struct {
	Field   string
	Created *bool
	Limit   int
}
