package fieldlog

import (
	"context"
	"errors"
	"sync"

	"github.com/rpattn/fieldlog/internal/domain"
)

func testCatalog() domain.StaticCatalog {
	return domain.NewStaticCatalog(
		domain.NewEntitySchema("Item", "", []domain.FieldDefinition{
			{Name: "a", Type: domain.FieldTypeInteger},
			{Name: "b", Type: domain.FieldTypeString},
			{Name: "notes", Type: domain.FieldTypeString},
			{Name: "site", Type: domain.FieldTypeEntityReference, ReferenceEntityType: "Site"},
			{Name: "tags", Type: domain.FieldTypeEntityReferenceArray, ReferenceEntityType: "Tag"},
		}),
		domain.NewEntitySchema("Site", "", []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldTypeString},
			{Name: "code", Type: domain.FieldTypeString},
			{Name: "owner", Type: domain.FieldTypeEntityReference, ReferenceEntityType: "Person"},
		}),
		domain.NewEntitySchema("Person", "", []domain.FieldDefinition{
			{Name: "email", Type: domain.FieldTypeString},
		}),
		domain.NewEntitySchema("Tag", "", []domain.FieldDefinition{
			{Name: "label", Type: domain.FieldTypeString},
		}),
	)
}

// itemSettings tracks a and b on Item inside one group.
func itemSettings(entityType EntityTypeSettings) Settings {
	if entityType.Name == "" {
		entityType.Name = "Item"
	}
	return Settings{
		Groups: []GroupSettings{{
			Name:        "inventory",
			EntityTypes: []EntityTypeSettings{entityType},
		}},
	}
}

// recorder is a callback that remembers every invocation.
type recorder struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
}

type recordedCall struct {
	entity domain.Entity
	logs   map[string]domain.FieldLog
}

func (r *recorder) callback(_ context.Context, entity domain.Entity, logs map[string]domain.FieldLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{entity: entity, logs: logs})
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var errCallback = errors.New("callback failed")

func failing(_ context.Context, _ domain.Entity, _ map[string]domain.FieldLog) error {
	return errCallback
}
