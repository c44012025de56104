package domain

// SchemaCatalog resolves entity type names to their declared schemas.
type SchemaCatalog interface {
	Schema(entityType string) (EntitySchema, bool)
}

// StaticCatalog is an immutable SchemaCatalog built from a schema list.
// When a name is declared twice the last schema wins.
type StaticCatalog struct {
	schemas map[string]EntitySchema
}

// NewStaticCatalog indexes the given schemas by name. Archived schemas are skipped.
func NewStaticCatalog(schemas ...EntitySchema) StaticCatalog {
	index := make(map[string]EntitySchema, len(schemas))
	for _, schema := range schemas {
		if schema.Status == SchemaStatusArchived {
			continue
		}
		index[schema.Name] = schema
	}
	return StaticCatalog{schemas: index}
}

// Schema implements SchemaCatalog.
func (c StaticCatalog) Schema(entityType string) (EntitySchema, bool) {
	schema, ok := c.schemas[entityType]
	return schema, ok
}
