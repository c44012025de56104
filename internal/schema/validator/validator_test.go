package validator

import (
	"testing"

	"github.com/rpattn/fieldlog/internal/domain"
)

func TestValidateFields_AllowsReferenceFields(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString},
		{Name: "site", Type: domain.FieldTypeEntityReference, ReferenceEntityType: "Site"},
		{Name: "owners", Type: domain.FieldTypeEntityReferenceArray, ReferenceEntityType: "Person"},
	}

	if err := ValidateFields(fields); err != nil {
		t.Fatalf("expected validation to pass, got error: %v", err)
	}
}

func TestValidateFields_ReferenceFieldRequiresTarget(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "site", Type: domain.FieldTypeEntityReference},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected error when reference field omits referenceEntityType")
	}
}

func TestValidateFields_InvalidReferenceEntityTypeUsage(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString, ReferenceEntityType: "Site"},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected error when non-reference field declares referenceEntityType")
	}
}

func TestValidateFields_RejectsPathSeparators(t *testing.T) {
	for _, name := range []string{"site.name", "site__name", "site/name", " name", ""} {
		fields := []domain.FieldDefinition{{Name: name, Type: domain.FieldTypeString}}
		if err := ValidateFields(fields); err == nil {
			t.Fatalf("expected error for field name %q", name)
		}
	}
}

func TestValidateFields_RejectsDuplicates(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "a", Type: domain.FieldTypeInteger},
		{Name: "a", Type: domain.FieldTypeString},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected duplicate field names to be rejected")
	}
}

func TestValidateFields_RejectsUnknownType(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "legacy", Type: domain.FieldType("ENTITY_ID")},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected unknown field type to be rejected")
	}
}
