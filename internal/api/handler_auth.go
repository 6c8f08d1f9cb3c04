package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/model"
	"github.com/mohamadsalahdarwish/notication-system/internal/presence"
	"github.com/mohamadsalahdarwish/notication-system/internal/repository"
	"github.com/mohamadsalahdarwish/notication-system/internal/util"
)

type AuthHandler struct {
	users     *repository.UserRepository
	presence  presence.Registry
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(
	users *repository.UserRepository,
	registry presence.Registry,
	jwtSecret string,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		users:     users,
		presence:  registry,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if _, err := h.users.FindByUsername(c.Request.Context(), req.Username); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "username is already taken"})
		return
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}

	hash, err := util.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}

	u := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := h.users.CreateUser(c.Request.Context(), u); err != nil {
		h.logger.Error("Failed to create user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": u.ID, "username": u.Username})
}

// Login handles POST /api/auth/login. A successful login marks the user
// online, mirroring the session-token issuance the frontend pairs with a
// WebSocket attach.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u, err := h.users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil || !util.CheckPassword(req.Password, u.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect username or password"})
		return
	}

	token, err := util.GenerateJWT(u.Username, h.jwtSecret)
	if err != nil {
		h.logger.Error("Failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to login"})
		return
	}

	if err := h.presence.SetPresence(c.Request.Context(), u.Username, true); err != nil {
		h.logger.Error("Failed to mark user online",
			zap.String("username", u.Username),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"jwt": token})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	username := c.GetString("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no session"})
		return
	}

	if err := h.presence.SetPresence(c.Request.Context(), username, false); err != nil {
		h.logger.Error("Failed to mark user offline",
			zap.String("username", username),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to logout"})
		return
	}

	c.Status(http.StatusOK)
}
