package repository

import (
	"context"
	"time"

	"pulsegate/internal/model"
)

// NotificationRepository is the persistence boundary for notification
// records.
type NotificationRepository interface {
	// InsertBatch bulk-writes notifications. Rows whose id already exists
	// are skipped, so write-behind retries are safe.
	InsertBatch(ctx context.Context, notifications []*model.Notification) error

	// ListByAccount returns the most recent notifications for an account.
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.Notification, error)

	// MarkViewed stamps viewed_at on the given notifications. Monotonic:
	// an already-viewed notification keeps its original timestamp.
	MarkViewed(ctx context.Context, accountID int64, ids []string) error

	// UnreadCount returns the number of notifications without viewed_at.
	UnreadCount(ctx context.Context, accountID int64) (int, error)
}

// SubscriptionRepository is the persistence boundary for push-subscription
// records.
type SubscriptionRepository interface {
	// Upsert creates or overwrites the live subscription for
	// (accountID, deviceID). A later subscribe call replaces the
	// token/provider rather than inserting a duplicate.
	Upsert(ctx context.Context, accountID int64, deviceID, token, provider string) error

	// SoftDelete marks subscriptions deleted by id. Idempotent.
	SoftDelete(ctx context.Context, ids []int64) error

	// SoftDeleteByDevice removes the live subscription for one device.
	SoftDeleteByDevice(ctx context.Context, accountID int64, deviceID string) error

	// ListByAccounts returns all live subscriptions for the accounts.
	ListByAccounts(ctx context.Context, accountIDs []int64) ([]model.PushSubscription, error)

	// BumpDelivered increments count_delivered and refreshes last_used_at
	// for subscriptions that accepted a push.
	BumpDelivered(ctx context.Context, ids []int64, at time.Time) error
}
