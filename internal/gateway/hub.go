// Package gateway maps connected users to their live transport sessions
// and pushes routed notifications to them.
package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/presence"
	"github.com/mohamadsalahdarwish/notication-system/pkg/metrics"
)

// Hub owns the username -> sessions mapping. It is the component that
// translates session lifecycle into presence: the first session of a user
// marks them connected, closing the last one marks them offline. A per-user
// lock covers both the session-count transition and the presence write, so
// a reconnect arriving while the old session tears down cannot interleave
// between the two and leave the registry saying offline with a session
// attached. Other sessions of the same user are never affected by one
// session closing.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string][]*Session
	userMu   map[string]*sync.Mutex

	presence presence.Registry
	logger   *zap.Logger
}

func NewHub(registry presence.Registry, logger *zap.Logger) *Hub {
	return &Hub{
		sessions: make(map[string][]*Session),
		userMu:   make(map[string]*sync.Mutex),
		presence: registry,
		logger:   logger,
	}
}

// userLock returns the mutex serializing presence transitions for username.
// Locks are never removed; the map is bounded by the set of users seen.
func (h *Hub) userLock(username string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.userMu[username]
	if !ok {
		l = &sync.Mutex{}
		h.userMu[username] = l
	}
	return l
}

// detach removes s from the session map and reports whether it was
// attached. Caller holds h.mu.
func (h *Hub) detach(s *Session) bool {
	found := false
	remaining := h.sessions[s.username][:0]
	for _, sess := range h.sessions[s.username] {
		if sess == s {
			found = true
			continue
		}
		remaining = append(remaining, sess)
	}
	if len(remaining) == 0 {
		delete(h.sessions, s.username)
	} else {
		h.sessions[s.username] = remaining
	}
	return found
}

// Register attaches a session and marks the user connected on their first
// session. A failed presence write rolls the attach back, so the hub never
// holds a session the registry does not know about.
func (h *Hub) Register(ctx context.Context, s *Session) error {
	lock := h.userLock(s.username)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	existing := h.sessions[s.username]
	h.sessions[s.username] = append(existing, s)
	first := len(existing) == 0
	h.mu.Unlock()

	if first {
		if err := h.presence.SetPresence(ctx, s.username, true); err != nil {
			h.mu.Lock()
			h.detach(s)
			h.mu.Unlock()
			return err
		}
	}

	metrics.OpenSessions.Inc()

	h.logger.Info("Session attached",
		zap.String("username", s.username),
		zap.Bool("first_session", first),
	)
	return nil
}

// Unregister detaches a session; presence is cleared only when this was
// the user's last remaining session. A session that is not attached (an
// already rolled-back or repeated unregister) is a no-op.
func (h *Hub) Unregister(ctx context.Context, s *Session) error {
	lock := h.userLock(s.username)
	lock.Lock()
	defer lock.Unlock()

	h.mu.Lock()
	found := h.detach(s)
	last := len(h.sessions[s.username]) == 0
	h.mu.Unlock()

	if !found {
		return nil
	}

	s.close()
	metrics.OpenSessions.Dec()

	if last {
		if err := h.presence.SetPresence(ctx, s.username, false); err != nil {
			return err
		}
	}

	h.logger.Info("Session detached",
		zap.String("username", s.username),
		zap.Bool("last_session", last),
	)
	return nil
}

// Push fans payload out to every attached session of username and returns
// how many sessions accepted it. Zero attached sessions is the accepted
// live-path loss window, reported to the caller rather than treated as an
// error.
func (h *Hub) Push(username string, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Session, len(h.sessions[username]))
	copy(targets, h.sessions[username])
	h.mu.RUnlock()

	if len(targets) == 0 {
		metrics.IncrementLiveDelivery("no_session")
		return 0
	}

	delivered := 0
	for _, s := range targets {
		if s.Send(payload) {
			delivered++
			metrics.IncrementLiveDelivery("delivered")
		} else {
			// Slow consumer: dropping the frame for this session beats
			// blocking the relay consumer for everyone.
			metrics.IncrementLiveDelivery("session_full")
			h.logger.Warn("Session send buffer full, frame dropped",
				zap.String("username", username),
			)
		}
	}
	return delivered
}

// SessionCount reports the number of attached sessions for a user.
func (h *Hub) SessionCount(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[username])
}
