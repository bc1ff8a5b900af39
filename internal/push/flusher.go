package push

import (
	"context"
	"log"
	"time"

	"pulsegate/internal/flush"
	"pulsegate/internal/model"
	"pulsegate/internal/repository"
)

const defaultFlushInterval = 5 * time.Second

// Flusher periodically drains the engine's write-behind queues into the
// store: pending notification inserts, dead-subscription removals and
// delivery stat bumps. Flush failures leave the batch queued for the
// next tick, so every handler below is idempotent.
type Flusher struct {
	buffer   *flush.Buffer
	notifs   repository.NotificationRepository
	subs     repository.SubscriptionRepository
	interval time.Duration

	done chan struct{}
}

func NewFlusher(buffer *flush.Buffer, notifs repository.NotificationRepository, subs repository.SubscriptionRepository, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Flusher{
		buffer:   buffer,
		notifs:   notifs,
		subs:     subs,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs the drain loop until ctx is cancelled, then performs one
// final drain so shutdown does not drop queued work.
func (f *Flusher) Start(ctx context.Context) {
	go func() {
		defer close(f.done)

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		log.Printf("[Flusher] Started (interval=%v)", f.interval)
		for {
			select {
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), f.interval)
				f.FlushAll(flushCtx)
				cancel()
				log.Printf("[Flusher] Stopped")
				return
			case <-ticker.C:
				f.FlushAll(ctx)
			}
		}
	}()
}

// Wait blocks until the drain loop has exited.
func (f *Flusher) Wait() {
	<-f.done
}

// FlushAll drains all queues once. Failures are logged; the buffer keeps
// the failed batches.
func (f *Flusher) FlushAll(ctx context.Context) {
	err := flush.Flush(ctx, f.buffer, func(ctx context.Context, batch []PendingInsert) error {
		rows := make([]*model.Notification, len(batch))
		for i, item := range batch {
			rows[i] = item.Notification
		}
		return f.notifs.InsertBatch(ctx, rows)
	})
	if err != nil {
		log.Printf("[Flusher] Notification insert flush failed: %v", err)
	}

	err = flush.Flush(ctx, f.buffer, func(ctx context.Context, batch []SubscriptionRemoval) error {
		ids := make([]int64, len(batch))
		for i, item := range batch {
			ids[i] = item.SubscriptionID
		}
		return f.subs.SoftDelete(ctx, ids)
	})
	if err != nil {
		log.Printf("[Flusher] Subscription removal flush failed: %v", err)
	}

	err = flush.Flush(ctx, f.buffer, func(ctx context.Context, batch []DeliveryStat) error {
		ids := make([]int64, len(batch))
		var latest time.Time
		for i, item := range batch {
			ids[i] = item.SubscriptionID
			if item.At.After(latest) {
				latest = item.At
			}
		}
		return f.subs.BumpDelivered(ctx, ids, latest)
	})
	if err != nil {
		log.Printf("[Flusher] Delivery stat flush failed: %v", err)
	}
}
