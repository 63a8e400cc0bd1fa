package model

import (
	"errors"
	"time"
)

// User is the minimal slice of the account entity the notification core
// needs: an identity to address deliveries to and an active flag for bulk
// sends. Account management itself lives in another service.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Nickname  string    `db:"nickname" json:"nickname"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ErrUserNotFound is returned when a user cannot be found
var ErrUserNotFound = errors.New("user not found")
