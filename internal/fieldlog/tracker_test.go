package fieldlog

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository/memory"
)

type TrackerSuite struct {
	suite.Suite

	ctx       context.Context
	entities  *memory.EntityStore
	logs      *memory.FieldLogStore
	callbacks *CallbackRegistry
	metrics   *Metrics
	tracker   *Tracker
	repo      *TrackedEntityRepository
}

func (s *TrackerSuite) SetupTest() {
	s.ctx = context.Background()
	s.entities = memory.NewEntityStore()
	s.logs = memory.NewFieldLogStore()
	s.callbacks = NewCallbackRegistry()
	s.metrics = NewMetrics(prometheus.NewRegistry())
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) configure(settings Settings) {
	registry, err := Resolve(settings, testCatalog(), s.callbacks)
	s.Require().NoError(err)

	s.tracker = NewTracker(StaticRegistry(registry), s.entities, s.logs,
		WithLogger(zap.NewNop()),
		WithMetrics(s.metrics),
	)
	s.repo = NewTrackedEntityRepository(s.entities, s.tracker, s.logs)
}

func (s *TrackerSuite) history(entity domain.Entity, field string) []domain.FieldLog {
	logs, err := s.logs.ListByEntity(s.ctx, entity.EntityType, entity.ID, domain.FieldLogFilter{Field: field})
	s.Require().NoError(err)
	return logs
}

func (s *TrackerSuite) createItem(props map[string]any) domain.Entity {
	item, err := s.repo.Create(s.ctx, domain.NewEntity("Item", props))
	s.Require().NoError(err)
	return item
}

func (s *TrackerSuite) TestCreateLogsEveryTrackedField() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a", "b"}}))

	item := s.createItem(map[string]any{"a": 1, "b": "x", "notes": "ignored"})

	logs := s.history(item, "")
	s.Require().Len(logs, 2)
	for _, log := range logs {
		s.True(log.Created)
		s.False(log.Related)
		s.JSONEq(`null`, string(log.OldValue))
	}
	s.JSONEq(`1`, string(s.history(item, "a")[0].NewValue))
	s.JSONEq(`"x"`, string(s.history(item, "b")[0].NewValue))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ChangesWritten.WithLabelValues("Item")))
}

func (s *TrackerSuite) TestCreateSkipsUnsetFields() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a", "b"}}))

	item := s.createItem(map[string]any{"a": 1})

	logs := s.history(item, "")
	s.Require().Len(logs, 1)
	s.Equal("a", logs[0].Field)
}

func (s *TrackerSuite) TestUpdateLogsOnlyChangedFields() {
	rec := &recorder{}
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"record"}},
		Fields:        []string{"a", "b"},
	}))

	item := s.createItem(map[string]any{"a": 1, "b": "x"})
	s.Equal(1, rec.count())

	updated, err := s.repo.Update(s.ctx, item.WithProperty("b", "y"))
	s.Require().NoError(err)
	s.Equal(int64(2), updated.Version)

	logs := s.history(item, "b")
	s.Require().Len(logs, 2)
	s.False(logs[0].Created)
	s.JSONEq(`"x"`, string(logs[0].OldValue))
	s.JSONEq(`"y"`, string(logs[0].NewValue))
	s.Len(s.history(item, "a"), 1)

	s.Require().Equal(2, rec.count())
	last := rec.calls[1]
	s.Equal(item.ID, last.entity.ID)
	s.Len(last.logs, 1)
	s.Contains(last.logs, "b")

	_, err = s.repo.Update(s.ctx, updated)
	s.Require().NoError(err)
	s.Len(s.history(item, ""), 3, "saving unchanged values writes nothing")
	s.Equal(2, rec.count(), "no logs means no callbacks")
}

func (s *TrackerSuite) TestUnsettingAFieldLogsNull() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"b"}}))

	item := s.createItem(map[string]any{"b": "x"})
	cleared := item.Clone()
	delete(cleared.Properties, "b")

	_, err := s.repo.Update(s.ctx, cleared)
	s.Require().NoError(err)

	logs := s.history(item, "b")
	s.Require().Len(logs, 2)
	s.JSONEq(`"x"`, string(logs[0].OldValue))
	s.JSONEq(`null`, string(logs[0].NewValue))
}

func (s *TrackerSuite) TestHistoryFormsAChain() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a"}}))

	item := s.createItem(map[string]any{"a": 0})
	for i := 1; i <= 4; i++ {
		var err error
		item, err = s.repo.Update(s.ctx, item.WithProperty("a", i))
		s.Require().NoError(err)
	}

	logs := s.history(item, "a")
	s.Require().Len(logs, 5)
	s.JSONEq(`4`, string(logs[0].NewValue))
	for i := 0; i < len(logs)-1; i++ {
		s.Greater(logs[i].ID, logs[i+1].ID)
		s.JSONEq(string(logs[i+1].NewValue), string(logs[i].OldValue))

		previous, err := s.logs.Previous(s.ctx, logs[i])
		s.Require().NoError(err)
		s.Equal(logs[i+1].ID, previous.ID)
	}
	s.True(logs[len(logs)-1].Created)
}

func (s *TrackerSuite) TestUpdateFieldsNarrowsTracking() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a", "b"}}))

	item := s.createItem(map[string]any{"a": 1, "b": "x"})
	changed := item.WithProperties(map[string]any{"a": 2, "b": "y"})

	_, err := s.repo.UpdateFields(s.ctx, changed, []string{"b"})
	s.Require().NoError(err)

	stored, err := s.entities.GetByID(s.ctx, item.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.Properties["a"], "fields outside the update list keep their stored value")
	s.Equal("y", stored.Properties["b"])
	s.Len(s.history(item, "a"), 1)
	s.Len(s.history(item, "b"), 2)

	_, err = s.repo.Update(s.ctx, stored.WithProperty("a", 3))
	s.Require().NoError(err)

	logs := s.history(item, "a")
	s.Require().Len(logs, 2)
	s.JSONEq(`1`, string(logs[0].OldValue))
	s.JSONEq(`3`, string(logs[0].NewValue))
	s.JSONEq(string(logs[1].NewValue), string(logs[0].OldValue))
}

func (s *TrackerSuite) TestDisabledScopesWriteNothing() {
	entityType := EntityTypeSettings{Fields: []string{"a"}}
	scopes := map[string]func(*Settings){
		"global": func(settings *Settings) { settings.Enabled = Bool(false) },
		"group":  func(settings *Settings) { settings.Groups[0].Enabled = Bool(false) },
		"type":   func(settings *Settings) { settings.Groups[0].EntityTypes[0].Enabled = Bool(false) },
	}

	for name, disable := range scopes {
		s.Run(name, func() {
			settings := itemSettings(entityType)
			disable(&settings)
			s.configure(settings)

			item := s.createItem(map[string]any{"a": 1})
			_, err := s.repo.Update(s.ctx, item.WithProperty("a", 2))
			s.Require().NoError(err)
			s.Empty(s.history(item, ""))
		})
	}
}

func (s *TrackerSuite) TestExtraDataIsCopiedIntoLogs() {
	settings := itemSettings(EntityTypeSettings{Fields: []string{"a"}})
	settings.ExtraData = map[string]any{"source": "import"}
	s.configure(settings)

	item := s.createItem(map[string]any{"a": 1})

	logs := s.history(item, "a")
	s.Require().Len(logs, 1)
	s.Equal(map[string]any{"source": "import"}, logs[0].ExtraData)
}

func (s *TrackerSuite) relatedSettings() Settings {
	return Settings{Groups: []GroupSettings{{
		Name: "inventory",
		EntityTypes: []EntityTypeSettings{
			{Name: "Item", RelatedFields: []string{"site.name", "site.owner.email", "tags.label"}},
			{Name: "Site", Fields: []string{"code"}},
		},
	}}}
}

func (s *TrackerSuite) TestRelatedChangeWithoutOwners() {
	s.configure(s.relatedSettings())

	site, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"name": "North"}))
	s.Require().NoError(err)

	_, err = s.repo.Update(s.ctx, site.WithProperty("name", "South"))
	s.Require().NoError(err)
	s.Empty(s.logs.All())
}

func (s *TrackerSuite) TestRelatedChangeFansOutToEveryOwner() {
	rec := &recorder{}
	s.callbacks.MustRegister("record", rec.callback)
	settings := s.relatedSettings()
	settings.Groups[0].EntityTypes[0].Callbacks = []string{"record"}
	s.configure(settings)

	site, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"name": "North", "code": "N1"}))
	s.Require().NoError(err)
	first := s.createItem(map[string]any{"site": site.ID.String()})
	second := s.createItem(map[string]any{"site": site.ID.String()})
	other := s.createItem(map[string]any{})

	_, err = s.repo.Update(s.ctx, site.WithProperties(map[string]any{"name": "South", "code": "S1"}))
	s.Require().NoError(err)

	for _, item := range []domain.Entity{first, second} {
		logs := s.history(item, "site.name")
		s.Require().Len(logs, 1)
		s.True(logs[0].Related)
		s.False(logs[0].Created)
		s.JSONEq(`"North"`, string(logs[0].OldValue))
		s.JSONEq(`"South"`, string(logs[0].NewValue))
	}
	s.Empty(s.history(other, ""))
	s.Len(s.history(site, "code"), 2, "the site's own tracked field is logged as well")

	s.Require().Equal(2, rec.count())
	s.ElementsMatch([]any{first.ID, second.ID}, []any{rec.calls[0].entity.ID, rec.calls[1].entity.ID})
	s.Contains(rec.calls[0].logs, "site.name")
}

func (s *TrackerSuite) TestRelatedChangeAcrossTwoHops() {
	s.configure(s.relatedSettings())

	person, err := s.repo.Create(s.ctx, domain.NewEntity("Person", map[string]any{"email": "a@example.com"}))
	s.Require().NoError(err)
	site, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"owner": person.ID.String()}))
	s.Require().NoError(err)
	item := s.createItem(map[string]any{"site": site.ID.String()})

	_, err = s.repo.Update(s.ctx, person.WithProperty("email", "b@example.com"))
	s.Require().NoError(err)

	logs := s.history(item, "site.owner.email")
	s.Require().Len(logs, 1)
	s.JSONEq(`"b@example.com"`, string(logs[0].NewValue))
}

func (s *TrackerSuite) TestRelatedChangeThroughToManyReference() {
	s.configure(s.relatedSettings())

	tag, err := s.repo.Create(s.ctx, domain.NewEntity("Tag", map[string]any{"label": "fragile"}))
	s.Require().NoError(err)
	tagged := s.createItem(map[string]any{"tags": []any{tag.ID.String()}})
	untagged := s.createItem(map[string]any{"tags": []any{}})

	_, err = s.repo.UpdateFields(s.ctx, tag.WithProperty("label", "heavy"), []string{"label"})
	s.Require().NoError(err)

	s.Len(s.history(tagged, "tags.label"), 1)
	s.Empty(s.history(untagged, ""))
}

func (s *TrackerSuite) TestUpdateFieldsNarrowsRelatedTracking() {
	s.configure(s.relatedSettings())

	site, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"name": "North", "code": "N1"}))
	s.Require().NoError(err)
	item := s.createItem(map[string]any{"site": site.ID.String()})

	_, err = s.repo.UpdateFields(s.ctx, site.WithProperties(map[string]any{"name": "South", "code": "S1"}), []string{"code"})
	s.Require().NoError(err)

	s.Empty(s.history(item, ""))
	s.Len(s.history(site, "code"), 2)
}

func (s *TrackerSuite) TestFailSilentlyKeepsGoing() {
	rec := &recorder{}
	s.callbacks.MustRegister("broken", failing)
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"broken", "record"}},
		Fields:        []string{"a"},
	}))

	item := s.createItem(map[string]any{"a": 1})

	s.Len(s.history(item, "a"), 1)
	s.Equal(1, rec.count(), "callbacks after a silenced failure still run")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CallbackErrors.WithLabelValues("Item", "true")))
}

func (s *TrackerSuite) TestFailLoudlyReturnsCallbackError() {
	rec := &recorder{}
	s.callbacks.MustRegister("broken", failing)
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"broken", "record"}, FailSilently: Bool(false)},
		Fields:        []string{"a"},
	}))

	saved, err := s.repo.Create(s.ctx, domain.NewEntity("Item", map[string]any{"a": 1}))
	s.Require().Error(err)
	s.True(CallbackError.Has(err))
	s.ErrorIs(err, errCallback)

	s.NotEqual(domain.Entity{}, saved)
	stored, getErr := s.entities.GetByID(s.ctx, saved.ID)
	s.Require().NoError(getErr)
	s.Equal(saved.ID, stored.ID)
	s.Len(s.history(saved, "a"), 1, "logs are committed before callbacks run")
	s.Zero(rec.count())
}

func (s *TrackerSuite) TestPanickingCallbackIsAnError() {
	s.callbacks.MustRegister("panics", func(context.Context, domain.Entity, map[string]domain.FieldLog) error {
		panic("boom")
	})
	settings := itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"panics"}},
		Fields:        []string{"a"},
	})
	s.configure(settings)

	_, err := s.repo.Create(s.ctx, domain.NewEntity("Item", map[string]any{"a": 1}))
	s.Require().NoError(err)

	settings.FailSilently = Bool(false)
	s.configure(settings)

	_, err = s.repo.Create(s.ctx, domain.NewEntity("Item", map[string]any{"a": 1}))
	s.Require().Error(err)
	s.Contains(err.Error(), "boom")
}

func (s *TrackerSuite) TestLogFailureRollsBackAndSkipsCallbacks() {
	rec := &recorder{}
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"record"}},
		Fields:        []string{"a", "b"},
	}))
	s.logs.FailCreate = errors.New("disk full")

	_, err := s.repo.Create(s.ctx, domain.NewEntity("Item", map[string]any{"a": 1, "b": "x"}))
	s.Require().Error(err)
	s.True(StorageError.Has(err))
	s.Empty(s.logs.All())
	s.Zero(rec.count())
}

func (s *TrackerSuite) TestBulkCreate() {
	rec := &recorder{}
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"record"}},
		Fields:        []string{"a"},
	}))

	batch := []domain.Entity{
		domain.NewEntity("Item", map[string]any{"a": 1}),
		domain.NewEntity("Item", map[string]any{"a": 2}),
		domain.NewEntity("Item", map[string]any{"b": "no a"}),
	}
	created, err := s.repo.BulkCreate(s.ctx, batch, BulkOptions{})
	s.Require().NoError(err)
	s.Require().Len(created, 3)

	s.Len(s.logs.All(), 2)
	for _, log := range s.logs.All() {
		s.True(log.Created)
	}
	s.Equal(2, rec.count())
}

func (s *TrackerSuite) TestBulkCreateOptions() {
	rec := &recorder{}
	s.callbacks.MustRegister("record", rec.callback)
	s.configure(itemSettings(EntityTypeSettings{
		ScopeSettings: ScopeSettings{Callbacks: []string{"record"}},
		Fields:        []string{"a"},
	}))

	_, err := s.repo.BulkCreate(s.ctx, []domain.Entity{domain.NewEntity("Item", map[string]any{"a": 1})}, BulkOptions{SkipLogFields: true})
	s.Require().NoError(err)
	s.Empty(s.logs.All())
	s.Zero(rec.count())

	_, err = s.repo.BulkCreate(s.ctx, []domain.Entity{domain.NewEntity("Item", map[string]any{"a": 1})}, BulkOptions{SkipCallbacks: true})
	s.Require().NoError(err)
	s.Len(s.logs.All(), 1)
	s.Zero(rec.count())
}

func (s *TrackerSuite) TestBulkUpdate() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a", "b"}}))

	first := s.createItem(map[string]any{"a": 1, "b": "x"})
	second := s.createItem(map[string]any{"a": 2, "b": "y"})
	before := len(s.logs.All())

	updated, err := s.repo.BulkUpdate(s.ctx, []domain.Entity{
		first.WithProperties(map[string]any{"a": 10, "b": "changed"}),
		second.WithProperty("a", 2),
	}, []string{"a"}, BulkOptions{})
	s.Require().NoError(err)
	s.Require().Len(updated, 2)

	stored, err := s.entities.GetByID(s.ctx, first.ID)
	s.Require().NoError(err)
	s.Equal(10, stored.Properties["a"])
	s.Equal("x", stored.Properties["b"], "fields outside the update list keep their stored value")

	s.Len(s.logs.All(), before+1)
	logs := s.history(first, "a")
	s.Require().Len(logs, 2)
	s.JSONEq(`1`, string(logs[0].OldValue))
	s.JSONEq(`10`, string(logs[0].NewValue))
	s.Len(s.history(second, "a"), 1)
}

func (s *TrackerSuite) TestBulkUpdateRepeatedIDLogsOnce() {
	s.configure(itemSettings(EntityTypeSettings{Fields: []string{"a"}}))

	item := s.createItem(map[string]any{"a": 1})
	changed := item.WithProperty("a", 2)

	_, err := s.repo.BulkUpdate(s.ctx, []domain.Entity{changed, changed}, nil, BulkOptions{})
	s.Require().NoError(err)

	logs := s.history(item, "a")
	s.Require().Len(logs, 2)
	s.JSONEq(`1`, string(logs[0].OldValue))
	s.JSONEq(`2`, string(logs[0].NewValue))
}

func (s *TrackerSuite) TestBulkUpdateFansOut() {
	s.configure(s.relatedSettings())

	north, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"name": "North"}))
	s.Require().NoError(err)
	south, err := s.repo.Create(s.ctx, domain.NewEntity("Site", map[string]any{"name": "South"}))
	s.Require().NoError(err)
	item := s.createItem(map[string]any{"site": north.ID.String()})
	unrelated := s.createItem(map[string]any{"site": south.ID.String()})

	_, err = s.repo.UpdateBatch(s.ctx, []domain.Entity{
		north.WithProperty("name", "Northwest"),
		south,
	})
	s.Require().NoError(err)

	s.Len(s.history(item, "site.name"), 1)
	s.Empty(s.history(unrelated, ""))
}
