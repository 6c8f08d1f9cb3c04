package mqhandler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPusher struct {
	PushFunc func(username string, payload []byte) int
	pushed   []string
}

func (m *mockPusher) Push(username string, payload []byte) int {
	m.pushed = append(m.pushed, username)
	if m.PushFunc != nil {
		return m.PushFunc(username, payload)
	}
	return 1
}

func TestLiveDeliveryPushesToUserSessions(t *testing.T) {
	pusher := &mockPusher{}
	h := NewLiveDeliveryHandler(pusher, zap.NewNop())

	raw := json.RawMessage(`{"id":1,"user_id":9,"username":"bob","message":"hello","created_at":1000}`)
	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)

	require.Len(t, pusher.pushed, 1)
	assert.Equal(t, "bob", pusher.pushed[0])
}

func TestLiveDeliveryDropsPoisonPayload(t *testing.T) {
	pusher := &mockPusher{}
	h := NewLiveDeliveryHandler(pusher, zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`{broken`))
	require.NoError(t, err)
	assert.Empty(t, pusher.pushed)
}

func TestLiveDeliveryNoSessionIsNotAnError(t *testing.T) {
	pusher := &mockPusher{
		PushFunc: func(string, []byte) int { return 0 },
	}
	h := NewLiveDeliveryHandler(pusher, zap.NewNop())

	raw := json.RawMessage(`{"id":2,"user_id":9,"username":"bob","message":"late","created_at":2000}`)
	err := h.Handle(context.Background(), raw)
	assert.NoError(t, err)
}
