package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Session is one live WebSocket attachment of a user. Outbound frames go
// through a bounded channel so a stalled socket never blocks the hub.
type Session struct {
	username string
	conn     *websocket.Conn
	send     chan []byte

	closeOnce sync.Once
}

func NewSession(username string, conn *websocket.Conn) *Session {
	return &Session{
		username: username,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
}

// Username returns the authenticated owner of the session.
func (s *Session) Username() string {
	return s.username
}

// Send enqueues a frame without blocking. Returns false when the session
// buffer is full or the session is closed.
func (s *Session) Send(payload []byte) (ok bool) {
	defer func() {
		// Send on a closed channel loses the race with close(); treat it
		// as a failed delivery rather than a crash.
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// WritePump drains the send channel onto the socket. Runs in its own
// goroutine per session and exits when the session closes.
func (s *Session) WritePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, open := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("Session write failed",
					zap.String("username", s.username),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump consumes client frames (only pongs and close matter) and
// deregisters the session when the socket drops. Deregistration runs on a
// fresh context: the request context is already tearing down by then.
func (s *Session) ReadPump(hub *Hub, logger *zap.Logger) {
	defer func() {
		if err := hub.Unregister(context.Background(), s); err != nil {
			logger.Error("Failed to deregister session",
				zap.String("username", s.username),
				zap.Error(err),
			)
		}
	}()

	s.conn.SetReadLimit(1024)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Session closed unexpectedly",
					zap.String("username", s.username),
					zap.Error(err),
				)
			}
			return
		}
	}
}
