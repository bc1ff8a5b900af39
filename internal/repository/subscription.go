package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pulsegate/internal/model"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Upsert creates or overwrites the live subscription for the device.
// Relies on a partial unique index on (account_id, device_id) WHERE
// deleted_at IS NULL.
func (r *subscriptionRepository) Upsert(ctx context.Context, accountID int64, deviceID, token, provider string) error {
	query := `
		INSERT INTO push_subscriptions (account_id, device_id, device_token, provider, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (account_id, device_id) WHERE deleted_at IS NULL DO UPDATE SET
			device_token = EXCLUDED.device_token,
			provider = EXCLUDED.provider,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, accountID, deviceID, token, provider)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

// SoftDelete prunes subscriptions whose tokens a provider reported as
// permanently invalid. Idempotent: already-deleted rows are untouched.
func (r *subscriptionRepository) SoftDelete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE push_subscriptions
		SET deleted_at = NOW()
		WHERE id = ANY($1) AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("soft delete push subscriptions: %w", err)
	}
	return nil
}

// SoftDeleteByDevice removes the live subscription for one device, e.g.
// on logout.
func (r *subscriptionRepository) SoftDeleteByDevice(ctx context.Context, accountID int64, deviceID string) error {
	query := `
		UPDATE push_subscriptions
		SET deleted_at = NOW()
		WHERE account_id = $1 AND device_id = $2 AND deleted_at IS NULL
	`
	_, err := r.db.ExecContext(ctx, query, accountID, deviceID)
	if err != nil {
		return fmt.Errorf("soft delete push subscription by device: %w", err)
	}
	return nil
}

// ListByAccounts returns all live subscriptions for the given accounts.
func (r *subscriptionRepository) ListByAccounts(ctx context.Context, accountIDs []int64) ([]model.PushSubscription, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, account_id, device_id, device_token, provider,
		       count_delivered, last_used_at, deleted_at, created_at, updated_at
		FROM push_subscriptions
		WHERE account_id = ANY($1) AND deleted_at IS NULL
	`
	var subs []model.PushSubscription
	err := r.db.SelectContext(ctx, &subs, query, pq.Array(accountIDs))
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	return subs, nil
}

// BumpDelivered records successful deliveries.
func (r *subscriptionRepository) BumpDelivered(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE push_subscriptions
		SET count_delivered = count_delivered + 1, last_used_at = $2
		WHERE id = ANY($1)
	`
	_, err := r.db.ExecContext(ctx, query, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("bump delivered: %w", err)
	}
	return nil
}
