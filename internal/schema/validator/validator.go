package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/pkg/fieldpath"
)

var knownTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:               {},
	domain.FieldTypeInteger:              {},
	domain.FieldTypeFloat:                {},
	domain.FieldTypeBoolean:              {},
	domain.FieldTypeTimestamp:            {},
	domain.FieldTypeDuration:             {},
	domain.FieldTypeDecimal:              {},
	domain.FieldTypeBinary:               {},
	domain.FieldTypeJSON:                 {},
	domain.FieldTypeEntityReference:      {},
	domain.FieldTypeEntityReferenceArray: {},
}

var referenceCapableTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeEntityReference:      {},
	domain.FieldTypeEntityReferenceArray: {},
}

// ValidateFields ensures schema field definitions can be addressed by dotted
// relation paths and that reference fields name the entity type they point at.
func ValidateFields(fields []domain.FieldDefinition) error {
	seen := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("field name cannot be empty")
		}
		if name != field.Name || fieldpath.Normalize(name) != name || fieldpath.Depth(name) != 1 {
			return fmt.Errorf("field %q cannot contain whitespace or path separators", field.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("field %s is declared more than once", name)
		}
		seen[name] = struct{}{}

		if _, ok := knownTypes[field.Type]; !ok {
			return fmt.Errorf("field %s has unsupported type %s", name, field.Type)
		}

		trimmedRefType := strings.TrimSpace(field.ReferenceEntityType)
		_, isReference := referenceCapableTypes[field.Type]
		if trimmedRefType != "" && !isReference {
			return fmt.Errorf("field %s cannot declare referenceEntityType because type %s does not support references", name, field.Type)
		}
		if isReference && trimmedRefType == "" {
			return fmt.Errorf("field %s must declare referenceEntityType", name)
		}
	}

	return nil
}
