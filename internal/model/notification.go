package model

import "time"

// Notification is the upstream row whose insert enters the change stream.
type Notification struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt time.Time
}

// NotificationEvent is the immutable record extracted from one change
// event. It exists only for the duration of a routing decision.
type NotificationEvent struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt int64 // epoch milliseconds, as carried on the wire
}

// PendingNotification is a notification held durably for an offline user.
// Username is denormalized at write time so the drain never joins.
type PendingNotification struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}
