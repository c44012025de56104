package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/graph-gophers/dataloader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/repository/memory"
)

func TestLoggingMiddleware(t *testing.T) {
	core, observed := observer.New(zap.DebugLevel)
	handler := LoggingMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/entities", nil))

	entries := observed.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusBadGateway), entries[0].ContextMap()["status"])
	assert.Equal(t, "/entities", entries[0].ContextMap()["path"])
}

func TestDataLoaderMiddleware(t *testing.T) {
	store := memory.NewEntityStore()
	entity, err := store.Create(context.Background(), domain.NewEntity("Asset", map[string]any{"name": "pump"}))
	require.NoError(t, err)

	var loaded any
	handler := DataLoaderMiddleware(store)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		loader := EntityLoaderFromContext(r.Context())
		require.NotNil(t, loader)
		loaded, err = loader.Load(r.Context(), dataloader.StringKey(entity.ID.String()))()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.IsType(t, domain.Entity{}, loaded)
	assert.Equal(t, entity.ID, loaded.(domain.Entity).ID)

	assert.Nil(t, EntityLoaderFromContext(context.Background()))
}
