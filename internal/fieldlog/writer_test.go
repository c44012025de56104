package fieldlog

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rpattn/fieldlog/internal/domain"
	"github.com/rpattn/fieldlog/internal/fieldlog/mocks"
)

func runInline(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func TestWriterStopsAtFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	logs := mocks.NewMockFieldLogRepository(ctrl)
	metrics := NewMetrics(prometheus.NewRegistry())

	item := domain.NewEntity("Item", nil)
	changes := []Change{
		{Entity: item, Field: "a", NewValue: 1, Created: true},
		{Entity: item, Field: "b", NewValue: "x", Created: true},
		{Entity: item, Field: "notes", NewValue: "never written", Created: true},
	}

	errFull := errors.New("disk full")
	logs.EXPECT().InTx(gomock.Any(), gomock.Any()).DoAndReturn(runInline)
	gomock.InOrder(
		logs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, log domain.FieldLog) (domain.FieldLog, error) {
			assert.Equal(t, "a", log.Field)
			log.ID = 1
			return log, nil
		}),
		logs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(domain.FieldLog{}, errFull),
	)

	registry, err := Resolve(itemSettings(EntityTypeSettings{Fields: []string{"a", "b"}}), testCatalog(), nil)
	require.NoError(t, err)

	written, err := NewWriter(logs, metrics).Write(context.Background(), registry, changes)
	require.Error(t, err)
	assert.Nil(t, written)
	assert.True(t, StorageError.Has(err))
	assert.ErrorIs(t, err, errFull)
	assert.Zero(t, testutil.ToFloat64(metrics.ChangesWritten.WithLabelValues("Item")))
}

func TestWriterEncodesValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	logs := mocks.NewMockFieldLogRepository(ctrl)

	site := domain.NewEntity("Site", nil)
	item := domain.NewEntity("Item", nil)

	settings := itemSettings(EntityTypeSettings{Fields: []string{"site"}})
	settings.Groups[0].ExtraData = map[string]any{"team": "ops"}
	registry, err := Resolve(settings, testCatalog(), nil)
	require.NoError(t, err)

	logs.EXPECT().InTx(gomock.Any(), gomock.Any()).DoAndReturn(runInline)
	logs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, log domain.FieldLog) (domain.FieldLog, error) {
		assert.Equal(t, item.ID, log.EntityID)
		assert.JSONEq(t, `null`, string(log.OldValue))
		assert.JSONEq(t, `"`+site.ID.String()+`"`, string(log.NewValue))
		assert.Equal(t, map[string]any{"team": "ops"}, log.ExtraData)
		return log, nil
	})

	written, err := NewWriter(logs, nil).Write(context.Background(), registry, []Change{
		{Entity: item, Field: "site", NewValue: site, Created: true},
	})
	require.NoError(t, err)
	assert.Len(t, written, 1)
}

func TestWriterWithoutChanges(t *testing.T) {
	ctrl := gomock.NewController(t)
	logs := mocks.NewMockFieldLogRepository(ctrl)

	written, err := NewWriter(logs, nil).Write(context.Background(), Empty(), nil)
	require.NoError(t, err)
	assert.Empty(t, written)
}
