package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/internal/gateway"
	"github.com/mohamadsalahdarwish/notication-system/internal/service"
	"github.com/mohamadsalahdarwish/notication-system/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The JWT in the handshake is the access control; origin checks are
	// left to the deployment's proxy configuration.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub       *gateway.Hub
	retrieval *service.RetrievalService
	jwtSecret string
	logger    *zap.Logger
}

func NewWSHandler(
	hub *gateway.Hub,
	retrieval *service.RetrievalService,
	jwtSecret string,
	logger *zap.Logger,
) *WSHandler {
	return &WSHandler{
		hub:       hub,
		retrieval: retrieval,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Serve handles GET /ws?token=..., the session attach point. The token is
// validated during the handshake; the session then counts toward presence
// and immediately receives the offline backlog as a catch-up batch.
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusForbidden, gin.H{"error": "missing token"})
		return
	}

	username, err := util.ParseJWT(token, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed",
			zap.String("username", username),
			zap.Error(err),
		)
		return
	}

	ctx := c.Request.Context()
	session := gateway.NewSession(username, conn)
	if err := h.hub.Register(ctx, session); err != nil {
		h.logger.Error("Failed to register session",
			zap.String("username", username),
			zap.Error(err),
		)
		conn.Close()
		return
	}

	go session.WritePump(h.logger)

	h.pushBacklog(c, session, username)

	// Blocks until the socket drops; deregistration happens inside.
	session.ReadPump(h.hub, h.logger)
}

// pushBacklog drains the offline store and replays it over the fresh
// session, oldest first, before any live traffic lands.
func (h *WSHandler) pushBacklog(c *gin.Context, session *gateway.Session, username string) {
	drained, err := h.retrieval.Drain(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("Failed to drain backlog on attach",
			zap.String("username", username),
			zap.Error(err),
		)
		return
	}

	for _, p := range drained {
		payload, err := json.Marshal(mqcontracts.LiveNotificationPayload{
			ID:        p.ID,
			UserID:    p.UserID,
			Username:  p.Username,
			Message:   p.Message,
			CreatedAt: p.CreatedAt,
		})
		if err != nil {
			continue
		}
		if !session.Send(payload) {
			h.logger.Warn("Catch-up frame dropped, session buffer full",
				zap.String("username", username),
				zap.Int64("notification_id", p.ID),
			)
		}
	}
}
