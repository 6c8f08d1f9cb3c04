package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/repository"
	"github.com/mohamadsalahdarwish/notication-system/internal/service"
)

type NotificationHandler struct {
	notifications *repository.NotificationRepository
	retrieval     *service.RetrievalService
	logger        *zap.Logger
}

func NewNotificationHandler(
	notifications *repository.NotificationRepository,
	retrieval *service.RetrievalService,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		retrieval:     retrieval,
		logger:        logger,
	}
}

// Create handles POST /api/notifications. The row insert and its change
// event commit together; routing happens when the event comes back around
// through the CDC consumer.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req struct {
		UserID  int64  `json:"user_id" binding:"required"`
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, err := h.notifications.Create(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		h.logger.Error("Failed to create notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     n.ID,
		"status": "queued",
	})
}

// Drain handles GET /api/auth/notifications/:username. Returned entries
// are deleted as a side effect; an empty backlog yields an empty array.
func (h *NotificationHandler) Drain(c *gin.Context) {
	username := c.Param("username")

	// Users may only drain their own backlog.
	if c.GetString("username") != username {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot read another user's notifications"})
		return
	}

	drained, err := h.retrieval.Drain(c.Request.Context(), username)
	if err != nil {
		h.logger.Error("Failed to drain pending notifications",
			zap.String("username", username),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}

	out := make([]gin.H, 0, len(drained))
	for _, p := range drained {
		out = append(out, gin.H{
			"id":        p.ID,
			"userId":    p.UserID,
			"message":   p.Message,
			"createdAt": p.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, out)
}
