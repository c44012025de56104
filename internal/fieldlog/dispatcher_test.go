package fieldlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/fieldlog/internal/domain"
)

func logFor(entity domain.Entity, id int64, field string) domain.FieldLog {
	return domain.FieldLog{ID: id, EntityType: entity.EntityType, EntityID: entity.ID, Field: field}
}

func TestDispatcherGroupsLogsByEntity(t *testing.T) {
	rec := &recorder{}
	callbacks := NewCallbackRegistry()
	callbacks.MustRegister("record", rec.callback)

	registry, err := Resolve(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"record"}},
		Fields:        []string{"a", "b"},
	}), testCatalog(), callbacks)
	require.NoError(t, err)

	first := domain.NewEntity("Item", nil)
	second := domain.NewEntity("Item", nil)
	site := domain.NewEntity("Site", nil)
	result := Result{
		Changes: []Change{{Entity: second}, {Entity: first}, {Entity: second}, {Entity: site}},
		Logs: []domain.FieldLog{
			logFor(second, 1, "a"),
			logFor(first, 2, "a"),
			logFor(second, 3, "b"),
			logFor(site, 4, "code"),
		},
	}

	require.NoError(t, NewDispatcher(nil, nil).Dispatch(context.Background(), registry, result))

	require.Len(t, rec.calls, 2, "entities without configuration are skipped")
	assert.Equal(t, second.ID, rec.calls[0].entity.ID)
	assert.Len(t, rec.calls[0].logs, 2)
	assert.Equal(t, int64(3), rec.calls[0].logs["b"].ID)
	assert.Equal(t, first.ID, rec.calls[1].entity.ID)
	assert.Len(t, rec.calls[1].logs, 1)
}

func TestDispatcherCallbacksCannotAlterLogs(t *testing.T) {
	callbacks := NewCallbackRegistry()
	callbacks.MustRegister("mutate", func(_ context.Context, _ domain.Entity, logs map[string]domain.FieldLog) error {
		delete(logs, "a")
		return nil
	})
	rec := &recorder{}
	callbacks.MustRegister("record", rec.callback)

	registry, err := Resolve(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"mutate", "record"}},
		Fields:        []string{"a"},
	}), testCatalog(), callbacks)
	require.NoError(t, err)

	item := domain.NewEntity("Item", nil)
	result := Result{Changes: []Change{{Entity: item}}, Logs: []domain.FieldLog{logFor(item, 1, "a")}}

	require.NoError(t, NewDispatcher(nil, nil).Dispatch(context.Background(), registry, result))
	require.Len(t, rec.calls, 1)
	assert.Contains(t, rec.calls[0].logs, "a")
}

func TestDispatcherLogsSilencedFailures(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	callbacks := NewCallbackRegistry()
	callbacks.MustRegister("broken", failing)

	registry, err := Resolve(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"broken"}},
		Fields:        []string{"a"},
	}), testCatalog(), callbacks)
	require.NoError(t, err)

	item := domain.NewEntity("Item", nil)
	result := Result{Changes: []Change{{Entity: item}}, Logs: []domain.FieldLog{logFor(item, 1, "a")}}

	require.NoError(t, NewDispatcher(zap.New(core), nil).Dispatch(context.Background(), registry, result))

	entries := observed.FilterMessage("field log callback failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "broken", fields["callback"])
	assert.Equal(t, "Item", fields["entity_type"])
	assert.Equal(t, item.ID.String(), fields["entity_id"])
}

func TestDispatcherStopsAtFirstLoudFailure(t *testing.T) {
	rec := &recorder{}
	callbacks := NewCallbackRegistry()
	callbacks.MustRegister("broken", failing)
	callbacks.MustRegister("record", rec.callback)

	settings := itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"broken", "record"}},
		Fields:        []string{"a"},
	})
	settings.FailSilently = Bool(false)
	registry, err := Resolve(settings, testCatalog(), callbacks)
	require.NoError(t, err)

	first := domain.NewEntity("Item", nil)
	second := domain.NewEntity("Item", nil)
	result := Result{
		Changes: []Change{{Entity: first}, {Entity: second}},
		Logs:    []domain.FieldLog{logFor(first, 1, "a"), logFor(second, 2, "a")},
	}

	err = NewDispatcher(nil, nil).Dispatch(context.Background(), registry, result)
	require.Error(t, err)
	assert.True(t, CallbackError.Has(err))
	assert.Contains(t, err.Error(), first.ID.String())
	assert.Zero(t, rec.count())
}
