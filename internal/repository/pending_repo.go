package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/model"
)

// PendingNotificationRepository is the offline store: the durable holding
// area for notifications routed while the recipient had no session.
type PendingNotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPendingNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *PendingNotificationRepository {
	return &PendingNotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Store appends a pending notification. A failure here is the one loss the
// offline path cannot tolerate, so the error always propagates.
func (r *PendingNotificationRepository) Store(ctx context.Context, p *model.PendingNotification) error {
	query := `
        INSERT INTO pending_notifications (notification_id, user_id, username, message, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := r.db.Exec(ctx, query, p.ID, p.UserID, p.Username, p.Message, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store pending notification: %w", err)
	}

	r.logger.Info("Notification stored for offline user",
		zap.String("username", p.Username),
		zap.Int64("user_id", p.UserID),
	)
	return nil
}

// DrainByUsername atomically reads and deletes every pending entry for the
// user, oldest first. A single DELETE ... RETURNING keeps concurrent drains
// disjoint: rows go to exactly one caller, the other sees the remainder.
func (r *PendingNotificationRepository) DrainByUsername(ctx context.Context, username string) ([]model.PendingNotification, error) {
	query := `
        WITH drained AS (
            DELETE FROM pending_notifications
            WHERE username = $1
            RETURNING id, notification_id, user_id, username, message, created_at
        )
        SELECT notification_id, user_id, username, message, created_at
        FROM drained
        ORDER BY id ASC
    `

	rows, err := r.db.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to drain pending notifications: %w", err)
	}
	defer rows.Close()

	drained := make([]model.PendingNotification, 0)
	for rows.Next() {
		var p model.PendingNotification
		if err := rows.Scan(&p.ID, &p.UserID, &p.Username, &p.Message, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending notification: %w", err)
		}
		drained = append(drained, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(drained) > 0 {
		r.logger.Info("Drained pending notifications",
			zap.String("username", username),
			zap.Int("count", len(drained)),
		)
	}
	return drained, nil
}
