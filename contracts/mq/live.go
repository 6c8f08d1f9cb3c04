package mq

import "fmt"

const (
	// RoutingKeyLivePrefix addresses a live delivery to one user.
	RoutingKeyLivePrefix = "notify.user."
	// RoutingKeyLivePattern is what the session gateway binds to.
	RoutingKeyLivePattern = "notify.user.#"
)

// LiveRoutingKey derives the per-user destination from a username.
func LiveRoutingKey(username string) string {
	return RoutingKeyLivePrefix + username
}

// LiveNotificationPayload is a routed notification on its way to the
// session gateway. Username is resolved at routing time so the gateway
// never needs the user directory.
type LiveNotificationPayload struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	CreatedAt int64  `json:"created_at"`
}

func (p LiveNotificationPayload) String() string {
	return fmt.Sprintf("notification %d for %s", p.ID, p.Username)
}
