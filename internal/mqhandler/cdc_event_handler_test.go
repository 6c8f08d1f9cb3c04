package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/model"
)

type mockRouter struct {
	RouteFunc func(ctx context.Context, ev model.NotificationEvent) error
	routed    []model.NotificationEvent
}

func (m *mockRouter) Route(ctx context.Context, ev model.NotificationEvent) error {
	m.routed = append(m.routed, ev)
	if m.RouteFunc != nil {
		return m.RouteFunc(ctx, ev)
	}
	return nil
}

type mockRetryCounter struct {
	counts map[string]int64
	resets []string
}

func newMockRetryCounter() *mockRetryCounter {
	return &mockRetryCounter{counts: make(map[string]int64)}
}

func (m *mockRetryCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockRetryCounter) Reset(_ context.Context, key string) error {
	m.resets = append(m.resets, key)
	delete(m.counts, key)
	return nil
}

type mockDLQ struct {
	published []dlqEntry
	err       error
}

type dlqEntry struct {
	routingKey string
	payload    []byte
	reason     string
}

func (m *mockDLQ) PublishToDLQ(routingKey string, payload []byte, originalError string) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, dlqEntry{routingKey: routingKey, payload: payload, reason: originalError})
	return nil
}

func newTestHandler(router *mockRouter, retries *mockRetryCounter, dlq *mockDLQ) *CDCEventHandler {
	return NewCDCEventHandler(router, retries, dlq, 3, time.Millisecond, zap.NewNop())
}

func debeziumInsert(t *testing.T, after string) json.RawMessage {
	t.Helper()
	return json.RawMessage(`{"payload":{"op":"c","after":` + after + `}}`)
}

func TestHandleRoutesInsertAfterImage(t *testing.T) {
	router := &mockRouter{}
	retries := newMockRetryCounter()
	dlq := &mockDLQ{}
	h := newTestHandler(router, retries, dlq)

	raw := debeziumInsert(t, `{"id":1,"user_id":7,"message":"hi","created_at":1000}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, router.routed, 1)
	assert.Equal(t, model.NotificationEvent{ID: 1, UserID: 7, Message: "hi", CreatedAt: 1000}, router.routed[0])
	assert.Empty(t, dlq.published)
	assert.Len(t, retries.resets, 1)
}

func TestHandleAcceptsCamelCaseFieldNames(t *testing.T) {
	router := &mockRouter{}
	h := newTestHandler(router, newMockRetryCounter(), &mockDLQ{})

	raw := debeziumInsert(t, `{"id":2,"userId":9,"message":"hello","createdAt":2000}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, router.routed, 1)
	assert.Equal(t, int64(9), router.routed[0].UserID)
	assert.Equal(t, int64(2000), router.routed[0].CreatedAt)
}

func TestHandleTopLevelAfterImage(t *testing.T) {
	// Envelopes without the Debezium payload wrapper are still accepted.
	router := &mockRouter{}
	h := newTestHandler(router, newMockRetryCounter(), &mockDLQ{})

	raw := json.RawMessage(`{"op":"c","after":{"id":3,"user_id":5,"message":"m","created_at":1}}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, router.routed, 1)
}

func TestHandleSkipsEventsWithoutAfterImage(t *testing.T) {
	router := &mockRouter{}
	dlq := &mockDLQ{}
	h := newTestHandler(router, newMockRetryCounter(), dlq)

	for _, raw := range []string{
		`{"payload":{"op":"d","before":{"id":1},"after":null}}`,
		`{"payload":{"op":"d"}}`,
	} {
		err := h.Handle(context.Background(), json.RawMessage(raw))
		require.NoError(t, err)
	}

	assert.Empty(t, router.routed)
	assert.Empty(t, dlq.published)
}

func TestHandleDivertsMalformedPayloadToDLQ(t *testing.T) {
	router := &mockRouter{}
	dlq := &mockDLQ{}
	h := newTestHandler(router, newMockRetryCounter(), dlq)

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	require.NoError(t, err)

	assert.Empty(t, router.routed)
	require.Len(t, dlq.published, 1)
	assert.Equal(t, "cdc.notifications.inserted", dlq.published[0].routingKey)
}

func TestHandleDivertsUnmappableAfterImageToDLQ(t *testing.T) {
	router := &mockRouter{}
	dlq := &mockDLQ{}
	h := newTestHandler(router, newMockRetryCounter(), dlq)

	raw := debeziumInsert(t, `{"id":"not-a-number","user_id":7}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	assert.Empty(t, router.routed)
	assert.Len(t, dlq.published, 1)
}

func TestHandleRequeuesTransientFailure(t *testing.T) {
	router := &mockRouter{
		RouteFunc: func(context.Context, model.NotificationEvent) error {
			return errors.New("dial tcp: connection refused")
		},
	}
	retries := newMockRetryCounter()
	dlq := &mockDLQ{}
	h := newTestHandler(router, retries, dlq)

	raw := debeziumInsert(t, `{"id":10,"user_id":7,"message":"m","created_at":1}`)
	err := h.Handle(context.Background(), raw)
	assert.Error(t, err)
	assert.Empty(t, dlq.published)
	assert.Equal(t, int64(1), retries.counts["retry:cdc_event:10"])
}

func TestHandleDivertsAfterRetriesExhausted(t *testing.T) {
	router := &mockRouter{
		RouteFunc: func(context.Context, model.NotificationEvent) error {
			return errors.New("dial tcp: connection refused")
		},
	}
	retries := newMockRetryCounter()
	dlq := &mockDLQ{}
	h := newTestHandler(router, retries, dlq)

	raw := debeziumInsert(t, `{"id":11,"user_id":7,"message":"m","created_at":1}`)

	// maxRetries is 3: attempts 1..3 requeue, attempt 4 diverts and acks.
	for i := 0; i < 3; i++ {
		err := h.Handle(context.Background(), raw)
		require.Error(t, err)
	}
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, dlq.published, 1)
}

func TestHandleDivertsNonRetryableFailure(t *testing.T) {
	router := &mockRouter{
		RouteFunc: func(context.Context, model.NotificationEvent) error {
			return errors.New("duplicate key value violates unique constraint")
		},
	}
	retries := newMockRetryCounter()
	dlq := &mockDLQ{}
	h := newTestHandler(router, retries, dlq)

	raw := debeziumInsert(t, `{"id":12,"user_id":7,"message":"m","created_at":1}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	assert.Len(t, dlq.published, 1)
	assert.Empty(t, retries.counts)
}

func TestHandleKeepsEventWhenDLQUnavailable(t *testing.T) {
	router := &mockRouter{}
	dlq := &mockDLQ{err: errors.New("broker gone")}
	h := newTestHandler(router, newMockRetryCounter(), dlq)

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	assert.Error(t, err)
}
