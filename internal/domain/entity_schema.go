package domain

import (
	"encoding/json"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// FieldType represents the type of a field in an entity schema
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeDuration  FieldType = "duration"
	FieldTypeDecimal   FieldType = "decimal"
	FieldTypeBinary    FieldType = "binary"
	FieldTypeJSON      FieldType = "json"
	// FieldTypeEntityReference holds the identity of exactly one entity of
	// ReferenceEntityType. It is a to-one relation segment.
	FieldTypeEntityReference FieldType = "ENTITY_REFERENCE"
	// FieldTypeEntityReferenceArray holds an ordered list of identities of
	// ReferenceEntityType entities. It is a to-many relation segment.
	FieldTypeEntityReferenceArray FieldType = "ENTITY_REFERENCE_ARRAY"
)

// FieldDefinition represents a field definition in a schema
type FieldDefinition struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
	// ReferenceEntityType names the related entity type for ENTITY_REFERENCE
	// and ENTITY_REFERENCE_ARRAY fields.
	ReferenceEntityType string `json:"referenceEntityType,omitempty"`
}

// IsRelation reports whether the field can be followed as a relation segment.
func (f FieldDefinition) IsRelation() bool {
	if strings.TrimSpace(f.ReferenceEntityType) == "" {
		return false
	}
	return f.Type == FieldTypeEntityReference || f.Type == FieldTypeEntityReferenceArray
}

// IsToMany reports whether following the field may yield several entities.
func (f FieldDefinition) IsToMany() bool {
	return f.Type == FieldTypeEntityReferenceArray
}

// SchemaStatus represents lifecycle status of a schema version.
type SchemaStatus string

const (
	SchemaStatusActive   SchemaStatus = "ACTIVE"
	SchemaStatusArchived SchemaStatus = "ARCHIVED"
)

// EntitySchema represents a schema definition for entity types
type EntitySchema struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Fields      []FieldDefinition `json:"fields"`
	Status      SchemaStatus      `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewEntitySchema creates a new entity schema with immutable pattern
func NewEntitySchema(name, description string, fields []FieldDefinition) EntitySchema {
	now := time.Now()
	return EntitySchema{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Fields:      copyFields(fields), // Deep copy to ensure immutability
		Status:      SchemaStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Field looks up a field definition by exact name.
func (es EntitySchema) Field(name string) (FieldDefinition, bool) {
	for _, field := range es.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// HasField reports whether the schema declares the named field.
func (es EntitySchema) HasField(name string) bool {
	_, ok := es.Field(name)
	return ok
}

// FieldNames returns the declared field names in declaration order.
func (es EntitySchema) FieldNames() []string {
	names := make([]string, 0, len(es.Fields))
	for _, field := range es.Fields {
		names = append(names, field.Name)
	}
	return names
}

// WithField returns a new schema with an added/updated field
func (es EntitySchema) WithField(field FieldDefinition) EntitySchema {
	newFields := copyFields(es.Fields)

	// Check if field already exists and update it, otherwise append
	found := false
	for i, existingField := range newFields {
		if existingField.Name == field.Name {
			newFields[i] = field
			found = true
			break
		}
	}

	if !found {
		newFields = append(newFields, field)
	}

	return EntitySchema{
		ID:          es.ID,
		Name:        es.Name,
		Description: es.Description,
		Fields:      newFields,
		Status:      es.Status,
		CreatedAt:   es.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

// WithoutField returns a new schema without the specified field
func (es EntitySchema) WithoutField(name string) EntitySchema {
	newFields := make([]FieldDefinition, 0, len(es.Fields))
	for _, field := range es.Fields {
		if field.Name != name {
			newFields = append(newFields, field)
		}
	}

	return EntitySchema{
		ID:          es.ID,
		Name:        es.Name,
		Description: es.Description,
		Fields:      newFields,
		Status:      es.Status,
		CreatedAt:   es.CreatedAt,
		UpdatedAt:   time.Now(),
	}
}

// GetFieldsAsJSONB returns the fields as JSONB for database storage
func (es EntitySchema) GetFieldsAsJSONB() (json.RawMessage, error) {
	return gojson.Marshal(es.Fields)
}

// FromJSONBFields decodes field definitions stored as JSONB
func FromJSONBFields(fieldsJSON json.RawMessage) ([]FieldDefinition, error) {
	var fields []FieldDefinition
	err := gojson.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// copyFields creates a deep copy of the fields slice to ensure immutability
func copyFields(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	newFields := make([]FieldDefinition, len(fields))
	copy(newFields, fields)
	return newFields
}
