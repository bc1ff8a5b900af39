package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pulsegate/internal/model"
)

type notificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// InsertBatch bulk-inserts notifications in one statement. IDs are
// client-generated UUIDs, so ON CONFLICT DO NOTHING makes a retried
// write-behind batch a no-op for rows that already landed.
func (r *notificationRepository) InsertBatch(ctx context.Context, notifications []*model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := `
		INSERT INTO notifications (id, topic, title, subtitle, content, meta, priority, account_id, created_at)
		VALUES (:id, :topic, :title, :subtitle, :content, :meta, :priority, :account_id, :created_at)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.NamedExecContext(ctx, query, notifications)
	if err != nil {
		return fmt.Errorf("insert notifications: %w", err)
	}
	return nil
}

// ListByAccount returns the account's notifications, newest first.
func (r *notificationRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]model.Notification, error) {
	query := `
		SELECT id, topic, title, subtitle, content, meta, priority, viewed_at, account_id, created_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	var notifications []model.Notification
	err := r.db.SelectContext(ctx, &notifications, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkViewed stamps viewed_at once; rows already viewed keep their
// original timestamp.
func (r *notificationRepository) MarkViewed(ctx context.Context, accountID int64, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE notifications
		SET viewed_at = NOW()
		WHERE account_id = $1 AND id = ANY($2) AND viewed_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, accountID, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark notifications viewed: %w", err)
	}
	return nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, accountID int64) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND viewed_at IS NULL`

	var count int
	err := r.db.GetContext(ctx, &count, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
