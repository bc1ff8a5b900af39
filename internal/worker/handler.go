package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"pulsegate/internal/model"
	"pulsegate/internal/queue"
)

// SubscriptionLister loads the live push subscriptions for a set of
// accounts. Abstracts the repository so workers don't depend on the DB
// directly.
type SubscriptionLister interface {
	ListByAccounts(ctx context.Context, accountIDs []int64) ([]model.PushSubscription, error)
}

// FanOuter runs the provider fan-out for one notification. Implemented
// by the push delivery engine.
type FanOuter interface {
	FanOut(ctx context.Context, n *model.Notification, subs []model.PushSubscription)
}

// Handler processes delivery events from the queue.
type Handler struct {
	subs   SubscriptionLister
	engine FanOuter
}

func NewHandler(subs SubscriptionLister, engine FanOuter) *Handler {
	return &Handler{subs: subs, engine: engine}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.DeliveryEvent) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventPushRequested:
		err = h.handlePushRequested(ctx, event)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handlePushRequested loads the target accounts' subscriptions and hands
// them to the engine. The in-band socket push already happened before
// the event was published.
func (h *Handler) handlePushRequested(ctx context.Context, event queue.DeliveryEvent) error {
	if event.Notification == nil {
		return fmt.Errorf("push_requested event without notification")
	}

	subs, err := h.subs.ListByAccounts(ctx, event.AccountIDs)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	log.Printf("[Worker] PushRequested: topic=%s accounts=%d subscriptions=%d",
		event.Notification.Topic, len(event.AccountIDs), len(subs))

	h.engine.FanOut(ctx, event.Notification, subs)
	return nil
}
