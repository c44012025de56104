package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/fieldlog/internal/domain"
)

// stubReader answers reference lookups from a fixed set of entities.
type stubReader struct {
	entities []domain.Entity
	err      error
	lookups  int
}

func (s *stubReader) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Entity
	for _, id := range ids {
		for _, entity := range s.entities {
			if entity.ID == id {
				out = append(out, entity)
			}
		}
	}
	return out, nil
}

func (s *stubReader) ListReferencing(_ context.Context, ownerType, field string, targetIDs []uuid.UUID) ([]domain.Entity, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.Entity
	for _, entity := range s.entities {
		if entity.EntityType != ownerType {
			continue
		}
		value, ok := entity.Value(field)
		if !ok {
			continue
		}
		for _, ref := range domain.ReferenceIDs(value) {
			for _, target := range targetIDs {
				if ref == target {
					out = append(out, entity)
				}
			}
		}
	}
	return out, nil
}

func entityOf(entityType string, props map[string]any) domain.Entity {
	entity := domain.NewEntity(entityType, props)
	entity.ID = uuid.New()
	return entity
}

var (
	assetSite = domain.RelationSegment{Field: "site", OwnerType: "Asset", TargetType: "Site"}
	siteOwner = domain.RelationSegment{Field: "owner", OwnerType: "Site", TargetType: "Person"}
)

func TestFollowPath(t *testing.T) {
	ctx := context.Background()
	person := entityOf("Person", map[string]any{"email": "a@example.com"})
	site := entityOf("Site", map[string]any{"name": "North", "owner": person.ID.String()})
	asset := entityOf("Asset", map[string]any{"site": site.ID.String()})
	stray := entityOf("Asset", map[string]any{"site": person.ID.String()})
	store := &stubReader{entities: []domain.Entity{person, site, asset, stray}}

	t.Run("two hops", func(t *testing.T) {
		reached, err := FollowPath(ctx, store, asset, domain.RelationPath{assetSite, siteOwner})
		require.NoError(t, err)
		require.Len(t, reached, 1)
		assert.Equal(t, person.ID, reached[0].ID)
	})

	t.Run("target type mismatch ends the branch", func(t *testing.T) {
		reached, err := FollowPath(ctx, store, stray, domain.RelationPath{assetSite})
		require.NoError(t, err)
		assert.Empty(t, reached)
	})

	t.Run("unset reference stops without a lookup", func(t *testing.T) {
		store.lookups = 0
		reached, err := FollowPath(ctx, store, entityOf("Asset", nil), domain.RelationPath{assetSite})
		require.NoError(t, err)
		assert.Empty(t, reached)
		assert.Zero(t, store.lookups)
	})

	t.Run("storage error", func(t *testing.T) {
		failing := &stubReader{err: errors.New("connection reset")}
		_, err := FollowPath(ctx, failing, asset, domain.RelationPath{assetSite})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to follow relation site")
	})
}

func TestInvertPath(t *testing.T) {
	ctx := context.Background()
	person := entityOf("Person", nil)
	site := entityOf("Site", map[string]any{"owner": person.ID.String()})
	first := entityOf("Asset", map[string]any{"site": site.ID.String()})
	second := entityOf("Asset", map[string]any{"site": site.ID.String()})
	store := &stubReader{entities: []domain.Entity{person, site, first, second}}

	owners, err := InvertPath(ctx, store, "Asset", domain.RelationPath{assetSite, siteOwner}, person.ID)
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, first.ID, owners[0].ID)
	assert.Equal(t, second.ID, owners[1].ID)

	owners, err = InvertPath(ctx, store, "Asset", domain.RelationPath{assetSite}, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, owners)

	_, err = InvertPath(ctx, store, "Asset", nil, person.ID)
	assert.Error(t, err)
}

func TestNullValue(t *testing.T) {
	assert.Equal(t, json.RawMessage("null"), nullValue(nil))
	assert.Equal(t, json.RawMessage(`"x"`), nullValue([]byte(`"x"`)))
	assert.Nil(t, nullableJSON(nil))
	assert.Equal(t, []byte(`1`), nullableJSON(json.RawMessage(`1`)))
}
