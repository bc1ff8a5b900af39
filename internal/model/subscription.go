package model

import (
	"errors"
	"time"
)

// Push providers we can deliver through.
const (
	ProviderFCM  = "fcm"
	ProviderExpo = "expo"
)

var (
	ErrInvalidProvider    = errors.New("unknown push provider")
	ErrDeviceTokenMissing = errors.New("device token is required")
)

// ValidProvider reports whether p names a supported push provider.
func ValidProvider(p string) bool {
	return p == ProviderFCM || p == ProviderExpo
}

// PushSubscription binds one (account, device) pair to a provider token.
// At most one live (deleted_at IS NULL) row exists per pair; a later
// subscribe call overwrites the token/provider instead of inserting a
// duplicate.
type PushSubscription struct {
	ID             int64      `db:"id" json:"id"`
	AccountID      int64      `db:"account_id" json:"-"`
	DeviceID       string     `db:"device_id" json:"device_id"`
	DeviceToken    string     `db:"device_token" json:"-"`
	Provider       string     `db:"provider" json:"provider"`
	CountDelivered int64      `db:"count_delivered" json:"count_delivered"`
	LastUsedAt     *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// SubscribeRequest is the request body for registering a device token.
type SubscribeRequest struct {
	DeviceToken string `json:"device_token"`
	Provider    string `json:"provider"`
}
