package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/pkg/logger"
)

// SessionPusher fans a payload out to every attached session of a user.
type SessionPusher interface {
	Push(username string, payload []byte) int
}

// LiveDeliveryHandler is the relay consumer feeding the session gateway.
// Delivery here is best-effort: a user with zero attached sessions loses
// the message, and the offline store remains the durability mechanism.
type LiveDeliveryHandler struct {
	hub    SessionPusher
	logger *zap.Logger
}

func NewLiveDeliveryHandler(hub SessionPusher, log *zap.Logger) *LiveDeliveryHandler {
	return &LiveDeliveryHandler{
		hub:    hub,
		logger: log,
	}
}

func (h *LiveDeliveryHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.LiveNotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// Poison on the live path is dropped outright: the relay is a
		// latency optimization, not a correctness-bearing path.
		log.Error("Failed to unmarshal live notification", zap.Error(err))
		return nil
	}

	delivered := h.hub.Push(p.Username, raw)
	if delivered == 0 {
		log.Warn("No attached session for live notification",
			zap.Int64("notification_id", p.ID),
			zap.String("username", p.Username),
		)
		return nil
	}

	log.Info("Live notification delivered",
		zap.Int64("notification_id", p.ID),
		zap.String("username", p.Username),
		zap.Int("sessions", delivered),
	)
	return nil
}
