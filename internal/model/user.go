package model

import "time"

// User is the directory record routing resolves recipients against.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
