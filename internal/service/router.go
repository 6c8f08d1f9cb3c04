package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/internal/model"
	"github.com/mohamadsalahdarwish/notication-system/internal/presence"
	"github.com/mohamadsalahdarwish/notication-system/internal/repository"
	"github.com/mohamadsalahdarwish/notication-system/pkg/circuitbreaker"
	"github.com/mohamadsalahdarwish/notication-system/pkg/logger"
	"github.com/mohamadsalahdarwish/notication-system/pkg/metrics"
)

// UserDirectory resolves recipients. Lookup failure with ErrUserNotFound
// means there is no addressable destination at all.
type UserDirectory interface {
	UsernameByID(ctx context.Context, userID int64) (string, error)
}

// OfflineStore holds notifications for disconnected users.
type OfflineStore interface {
	Store(ctx context.Context, p *model.PendingNotification) error
}

// RelayPublisher hands a routed notification to the live-delivery bus.
type RelayPublisher interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

// Router makes the live-vs-offline decision for each notification. The
// decision is made exactly once: the presence read is not repeated after
// the sink is chosen, and the windows that opens are accepted (a user
// connecting right after an offline decision gets the entry on the
// drain-at-connect; a user disconnecting right after an online decision is
// the documented best-effort live-path loss).
type Router struct {
	users    UserDirectory
	presence presence.Registry
	relay    RelayPublisher
	store    OfflineStore
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewRouter(
	users UserDirectory,
	registry presence.Registry,
	relay RelayPublisher,
	store OfflineStore,
	log *zap.Logger,
) *Router {
	return &Router{
		users:    users,
		presence: registry,
		relay:    relay,
		store:    store,
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:   log,
	}
}

// Route delivers ev to its recipient: live when connected, durable when
// not. Unknown recipients are dropped. A transient sink failure is
// returned to the caller so the ingest layer can re-consume the event.
func (r *Router) Route(ctx context.Context, ev model.NotificationEvent) error {
	log := logger.WithTrace(ctx, r.logger)

	username, err := r.users.UsernameByID(ctx, ev.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Warn("Dropping notification for unknown recipient",
				zap.Int64("notification_id", ev.ID),
				zap.Int64("user_id", ev.UserID),
			)
			metrics.IncrementRouted("dropped")
			return nil
		}
		return fmt.Errorf("failed to resolve recipient %d: %w", ev.UserID, err)
	}

	connected, err := r.presence.IsConnected(ctx, username)
	if err != nil {
		// Presence unavailable: fall back to the durable path rather than
		// guessing online and risking a silent live-path drop.
		log.Warn("Presence lookup failed, routing to offline store",
			zap.String("username", username),
			zap.Error(err),
		)
		connected = false
	}

	if connected {
		if err := r.publishLive(ctx, ev, username); err == nil {
			log.Info("Notification routed to live path",
				zap.Int64("notification_id", ev.ID),
				zap.String("username", username),
			)
			metrics.IncrementRouted("live")
			return nil
		} else {
			log.Warn("Live publish failed, falling back to offline store",
				zap.Int64("notification_id", ev.ID),
				zap.String("username", username),
				zap.Error(err),
			)
		}
	}

	pending := &model.PendingNotification{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Username:  username,
		Message:   ev.Message,
		CreatedAt: ev.CreatedAt,
	}
	if err := r.store.Store(ctx, pending); err != nil {
		return fmt.Errorf("failed to store pending notification %d: %w", ev.ID, err)
	}

	metrics.IncrementRouted("offline")
	return nil
}

func (r *Router) publishLive(ctx context.Context, ev model.NotificationEvent, username string) error {
	payload := mqcontracts.LiveNotificationPayload{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Username:  username,
		Message:   ev.Message,
		CreatedAt: ev.CreatedAt,
	}
	return r.breaker.Execute(func() error {
		return r.relay.PublishWithContext(ctx, mqcontracts.LiveRoutingKey(username), payload)
	})
}
