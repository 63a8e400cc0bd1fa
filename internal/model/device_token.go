package model

import (
	"time"
)

// DeviceToken represents a user's registered push-capable device.
// A user can have several devices; a token string belongs to at most one
// active registration at a time.
type DeviceToken struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"-"`
	Token     string    `db:"token" json:"-"` // FCM registration token, hidden from JSON
	Platform  string    `db:"platform" json:"platform"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Platform constants
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
)

// RegisterTokenRequest is the request body for registering a device token.
type RegisterTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"` // "ios", "android" or "web"
}

// UnregisterTokenRequest is the request body for deactivating a device token.
type UnregisterTokenRequest struct {
	Token string `json:"token"`
}
