package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "github.com/mohamadsalahdarwish/notication-system/contracts/mq"
	"github.com/mohamadsalahdarwish/notication-system/internal/model"
	"github.com/mohamadsalahdarwish/notication-system/pkg/outbox"
)

type NotificationRepository struct {
	db         *pgxpool.Pool
	outboxRepo *outbox.Repository
	logger     *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:         db,
		outboxRepo: outbox.NewRepository(db),
		logger:     logger,
	}
}

// Create inserts the notification row and its change event in one
// transaction. The outbox dispatcher turns the event into the CDC stream,
// so a committed row is guaranteed to reach the router at least once.
func (r *NotificationRepository) Create(ctx context.Context, userID int64, message string) (*model.Notification, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO notifications (user_id, message)
        VALUES ($1, $2)
        RETURNING id, created_at
    `
	var n model.Notification
	n.UserID = userID
	n.Message = message
	if err := tx.QueryRow(ctx, query, userID, message).Scan(&n.ID, &n.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	envelope := mqcontracts.ChangeEnvelope{
		Payload: &mqcontracts.ChangeBody{
			Op: "c",
			After: mustJSON(map[string]any{
				"id":         n.ID,
				"user_id":    n.UserID,
				"message":    n.Message,
				"created_at": n.CreatedAt.UnixMilli(),
			}),
			TsMs: n.CreatedAt.UnixMilli(),
		},
	}

	if err := outbox.InsertEventInTx(
		ctx, tx, r.outboxRepo,
		"notification", &n.ID,
		mqcontracts.RoutingKeyNotificationInserted,
		envelope,
	); err != nil {
		return nil, fmt.Errorf("failed to insert change event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Notification created",
		zap.Int64("id", n.ID),
		zap.Int64("user_id", n.UserID),
	)
	return &n, nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
