package kafka

import (
	"context"
	"errors"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rpattn/fieldlog/internal/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func sampleLogs(entity domain.Entity) map[string]domain.FieldLog {
	return map[string]domain.FieldLog{
		"status":    {ID: 7, EntityType: entity.EntityType, EntityID: entity.ID, Field: "status", OldValue: []byte(`"open"`), NewValue: []byte(`"closed"`)},
		"site.name": {ID: 5, EntityType: entity.EntityType, EntityID: entity.ID, Field: "site.name", OldValue: []byte(`"North"`), NewValue: []byte(`"South"`), Related: true},
	}
}

func TestPublishProducesOneRecordPerEntity(t *testing.T) {
	producer := &fakeProducer{}
	publisher := NewPublisher(producer, "field-logs")

	entity := domain.NewEntity("Asset", nil)
	entity.Version = 3
	require.NoError(t, publisher.Publish(context.Background(), entity, sampleLogs(entity)))

	require.Len(t, producer.records, 1)
	record := producer.records[0]
	assert.Equal(t, "field-logs", record.Topic)
	assert.Equal(t, entity.ID.String(), string(record.Key))
	assert.Equal(t, []kgo.RecordHeader{{Key: "entity_type", Value: []byte("Asset")}}, record.Headers)

	var msg Message
	require.NoError(t, gojson.Unmarshal(record.Value, &msg))
	assert.Equal(t, "Asset", msg.EntityType)
	assert.Equal(t, int64(3), msg.Version)
	require.Len(t, msg.Changes, 2)
	assert.Equal(t, "site.name", msg.Changes[0].Field)
	assert.True(t, msg.Changes[0].Related)
	assert.Equal(t, "status", msg.Changes[1].Field)
	assert.JSONEq(t, `"closed"`, string(msg.Changes[1].NewValue))
}

func TestPublishReturnsProduceErrors(t *testing.T) {
	errBroker := errors.New("broker unavailable")
	publisher := NewPublisher(&fakeProducer{err: errBroker}, "field-logs")

	entity := domain.NewEntity("Asset", nil)
	err := publisher.Publish(context.Background(), entity, sampleLogs(entity))
	require.Error(t, err)
	assert.ErrorIs(t, err, errBroker)
	assert.Contains(t, err.Error(), "field-logs")
}
