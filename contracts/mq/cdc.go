package mq

import "encoding/json"

const (
	// RoutingKeyNotificationInserted is the change stream for notification
	// row inserts.
	RoutingKeyNotificationInserted = "cdc.notifications.inserted"
)

// ChangeEnvelope is the Debezium-style wrapper around a row change. Only the
// after-image is relevant for routing; everything else is ignored.
type ChangeEnvelope struct {
	Payload *ChangeBody `json:"payload"`

	// Producers without the schema wrapper put these at the top level.
	Op    string          `json:"op"`
	After json.RawMessage `json:"after"`
}

// ChangeBody carries the row images of a single change.
type ChangeBody struct {
	Op     string          `json:"op"`
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	TsMs   int64           `json:"ts_ms"`
}

// AfterImage returns the inserted row image, or nil when the event has no
// insert semantics (deletes, tombstones).
func (e *ChangeEnvelope) AfterImage() json.RawMessage {
	var after json.RawMessage
	if e.Payload != nil {
		after = e.Payload.After
	} else {
		after = e.After
	}
	if len(after) == 0 || string(after) == "null" {
		return nil
	}
	return after
}

// NotificationRow is the after-image of a notifications row. Field names
// vary between snake_case and camelCase depending on the connector config,
// so both spellings are mapped; unknown fields are ignored.
type NotificationRow struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt int64 // epoch milliseconds
}

func (r *NotificationRow) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           int64  `json:"id"`
		UserID       *int64 `json:"user_id"`
		UserIDAlt    *int64 `json:"userId"`
		Message      string `json:"message"`
		CreatedAt    *int64 `json:"created_at"`
		CreatedAtAlt *int64 `json:"createdAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.ID = raw.ID
	r.Message = raw.Message
	if raw.UserID != nil {
		r.UserID = *raw.UserID
	} else if raw.UserIDAlt != nil {
		r.UserID = *raw.UserIDAlt
	}
	if raw.CreatedAt != nil {
		r.CreatedAt = *raw.CreatedAt
	} else if raw.CreatedAtAlt != nil {
		r.CreatedAt = *raw.CreatedAtAlt
	}
	return nil
}
