package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/presence"
)

// blockingRegistry stalls offline writes until released, exposing the gap
// between the session-count transition and the presence write.
type blockingRegistry struct {
	*presence.MemoryRegistry
	entered chan struct{}
	release chan struct{}
}

func newBlockingRegistry() *blockingRegistry {
	return &blockingRegistry{
		MemoryRegistry: presence.NewMemoryRegistry(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (b *blockingRegistry) SetPresence(ctx context.Context, username string, connected bool) error {
	if !connected {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.MemoryRegistry.SetPresence(ctx, username, connected)
}

type failingRegistry struct{}

func (failingRegistry) SetPresence(context.Context, string, bool) error {
	return errors.New("registry down")
}

func (failingRegistry) IsConnected(context.Context, string) (bool, error) {
	return false, nil
}

func newTestHub() (*Hub, *presence.MemoryRegistry) {
	reg := presence.NewMemoryRegistry()
	return NewHub(reg, zap.NewNop()), reg
}

func TestRegisterFirstSessionSetsPresence(t *testing.T) {
	hub, reg := newTestHub()
	s := NewSession("alice", nil)

	require.NoError(t, hub.Register(context.Background(), s))

	connected, err := reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, 1, hub.SessionCount("alice"))
}

func TestUnregisterLastSessionClearsPresence(t *testing.T) {
	hub, reg := newTestHub()
	s := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), s))

	require.NoError(t, hub.Unregister(context.Background(), s))

	connected, err := reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, connected)
	assert.Equal(t, 0, hub.SessionCount("alice"))
}

func TestSecondSessionDoesNotToggle(t *testing.T) {
	hub, reg := newTestHub()
	desktop := NewSession("alice", nil)
	phone := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), desktop))
	require.NoError(t, hub.Register(context.Background(), phone))
	assert.Equal(t, 2, hub.SessionCount("alice"))

	// Closing one of two sessions must leave the user connected.
	require.NoError(t, hub.Unregister(context.Background(), desktop))

	connected, err := reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, 1, hub.SessionCount("alice"))

	require.NoError(t, hub.Unregister(context.Background(), phone))
	connected, err = reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, connected)
}

func TestPushFansOutToAllSessions(t *testing.T) {
	hub, _ := newTestHub()
	desktop := NewSession("alice", nil)
	phone := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), desktop))
	require.NoError(t, hub.Register(context.Background(), phone))

	delivered := hub.Push("alice", []byte(`{"id":1}`))
	assert.Equal(t, 2, delivered)

	assert.Equal(t, []byte(`{"id":1}`), <-desktop.send)
	assert.Equal(t, []byte(`{"id":1}`), <-phone.send)
}

func TestPushWithoutSessionsReturnsZero(t *testing.T) {
	hub, _ := newTestHub()
	assert.Equal(t, 0, hub.Push("nobody", []byte("x")))
}

func TestPushDropsFrameWhenBufferFull(t *testing.T) {
	hub, _ := newTestHub()
	s := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), s))

	for i := 0; i < sendBuffer; i++ {
		require.True(t, s.Send([]byte("fill")))
	}

	assert.Equal(t, 0, hub.Push("alice", []byte("overflow")))
}

func TestPushDoesNotReachOtherUsers(t *testing.T) {
	hub, _ := newTestHub()
	alice := NewSession("alice", nil)
	bob := NewSession("bob", nil)
	require.NoError(t, hub.Register(context.Background(), alice))
	require.NoError(t, hub.Register(context.Background(), bob))

	hub.Push("alice", []byte("private"))

	assert.Len(t, alice.send, 1)
	assert.Len(t, bob.send, 0)
}

func TestReconnectDuringDisconnectKeepsPresence(t *testing.T) {
	// Reconnect pattern: the old session tears down while the new one
	// attaches. The offline write of the closing session must not land
	// after the new session's online write.
	reg := newBlockingRegistry()
	hub := NewHub(reg, zap.NewNop())
	old := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), old))

	unregistered := make(chan error, 1)
	go func() { unregistered <- hub.Unregister(context.Background(), old) }()
	<-reg.entered // Unregister is inside the offline write

	registered := make(chan error, 1)
	go func() { registered <- hub.Register(context.Background(), NewSession("alice", nil)) }()

	// The new attach must wait for the in-flight presence transition.
	select {
	case err := <-registered:
		t.Fatalf("register completed during presence transition (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(reg.release)
	require.NoError(t, <-unregistered)
	require.NoError(t, <-registered)

	connected, err := reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, connected, "user has an attached session but presence says offline")
	assert.Equal(t, 1, hub.SessionCount("alice"))
}

func TestFailedRegisterLeavesNoSession(t *testing.T) {
	hub := NewHub(failingRegistry{}, zap.NewNop())
	s := NewSession("alice", nil)

	require.Error(t, hub.Register(context.Background(), s))

	assert.Equal(t, 0, hub.SessionCount("alice"))
	assert.Equal(t, 0, hub.Push("alice", []byte("x")))
}

func TestUnregisterUnattachedSessionIsNoOp(t *testing.T) {
	hub, reg := newTestHub()
	attached := NewSession("alice", nil)
	require.NoError(t, hub.Register(context.Background(), attached))

	// A session that never attached (or was rolled back) must not clear
	// the attached one's presence.
	require.NoError(t, hub.Unregister(context.Background(), NewSession("alice", nil)))

	connected, err := reg.IsConnected(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, connected)
	assert.Equal(t, 1, hub.SessionCount("alice"))
}

func TestSendToClosedSessionFails(t *testing.T) {
	s := NewSession("alice", nil)
	s.close()
	assert.False(t, s.Send([]byte("late")))
}
