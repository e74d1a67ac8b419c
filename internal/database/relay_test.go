package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func testRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		batchSize: 10,
	}
}

func observationEvent(asin string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "product",
		AggregateID:   asin,
		EventType:     "PRICE_OBSERVED",
		Payload:       json.RawMessage(`{"asin":"` + asin + `","price":89.9,"available":true}`),
		TargetStream:  DefaultObservationStream,
	}
}

func TestRelayProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes pending events and marks them processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := testRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{observationEvent("B001TESTAA"), observationEvent("B002TESTAA")}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			event := event
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				values, ok := args.Values.(map[string]interface{})
				return ok &&
					args.Stream == event.TargetStream &&
					values["event_type"] == event.EventType &&
					values["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("marks event failed when redis publish fails", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := testRelay(mockRedis, mockOutbox)

		event := observationEvent("B003TESTAA")
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		require.NoError(t, relay.processEvents(ctx))

		mockOutbox.AssertCalled(t, "MarkFailed", ctx, event.ID, mock.Anything)
		mockOutbox.AssertNotCalled(t, "MarkProcessed", ctx, event.ID)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := testRelay(mockRedis, mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, relay.processEvents(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("one poisoned event does not stop the batch", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := testRelay(mockRedis, mockOutbox)

		bad := observationEvent("B004TESTAA")
		bad.Payload = json.RawMessage(`not json`)
		good := observationEvent("B005TESTAA")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{bad, good}, nil)
		mockOutbox.On("MarkFailed", ctx, bad.ID, mock.Anything).Return(nil)
		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			values, ok := args.Values.(map[string]interface{})
			return ok && values["aggregate_id"] == good.AggregateID
		})).Return(nil)
		mockOutbox.On("MarkProcessed", ctx, good.ID).Return(nil)

		require.NoError(t, relay.processEvents(ctx))
		mockOutbox.AssertCalled(t, "MarkProcessed", ctx, good.ID)
	})
}

func TestRelayStreamDataShape(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockOutbox := new(MockOutboxRepository)
	relay := testRelay(mockRedis, mockOutbox)

	event := observationEvent("B006TESTAA")

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*redis.XAddArgs)
	}).Return(nil)

	require.NoError(t, relay.publishToRedis(context.Background(), event))
	require.NotNil(t, captured)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(captured.Values.(map[string]interface{})["data"].(string)), &data))
	assert.Equal(t, "PRICE_OBSERVED", data["type"])
	assert.Equal(t, "B006TESTAA", data["aggregate_id"])

	payload, ok := data["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 89.9, payload["price"])
}
