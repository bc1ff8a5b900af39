package push

import (
	"context"
	"log"
	"time"

	"pulsegate/internal/flush"
	"pulsegate/internal/hub"
	"pulsegate/internal/model"
)

// Write-behind units fed into the flush buffer by the engine.

// PendingInsert is a notification row awaiting its batched insert.
type PendingInsert struct {
	Notification *model.Notification
}

// SubscriptionRemoval prunes a subscription whose token a provider
// reported permanently invalid.
type SubscriptionRemoval struct {
	SubscriptionID int64
}

// DeliveryStat records one accepted push for count/last-used bookkeeping.
type DeliveryStat struct {
	SubscriptionID int64
	At             time.Time
}

// JobPublisher hands the provider fan-out to the async worker pool.
type JobPublisher interface {
	PublishPushRequested(ctx context.Context, n *model.Notification, accountIDs []int64) (string, error)
}

// Engine is the delivery core: in-band socket push first, write-behind
// persistence, then provider fan-out. Everything past the synchronous
// in-band step is best-effort; provider failures never reach the caller.
type Engine struct {
	registry  *hub.Registry
	providers map[string]Provider
	buffer    *flush.Buffer
	publisher JobPublisher
	threshold int
}

// NewEngine wires the engine. publisher may be nil (tests, setups with
// no worker pool); DeliverBatch then skips the queued provider fan-out
// and only the in-band and persistence steps run.
func NewEngine(registry *hub.Registry, providers []Provider, buffer *flush.Buffer, publisher JobPublisher, highPriorityThreshold int) *Engine {
	table := make(map[string]Provider, len(providers))
	for _, p := range providers {
		table[p.Name()] = p
	}
	if highPriorityThreshold <= 0 {
		highPriorityThreshold = model.DefaultPriority
	}
	return &Engine{
		registry:  registry,
		providers: table,
		buffer:    buffer,
		publisher: publisher,
		threshold: highPriorityThreshold,
	}
}

// Deliver pushes one notification to its account: in-band to any open
// socket first, then out through the providers for the given
// subscriptions.
func (e *Engine) Deliver(ctx context.Context, n *model.Notification, subs []model.PushSubscription) {
	e.sendInBand(n)
	e.FanOut(ctx, n, subs)
}

// DeliverBatch fans one logical notification out to many accounts. The
// immediate in-band step runs synchronously before any provider or store
// I/O: sockets see the notification even when providers are slow or
// down. Rows are persisted write-behind when persist is true, and the
// provider fan-out is queued for the worker pool.
func (e *Engine) DeliverBatch(ctx context.Context, n *model.Notification, accountIDs []int64, persist bool) {
	for _, accountID := range accountIDs {
		clone := n.CloneFor(accountID)
		e.sendInBand(clone)
		if persist {
			flush.Enqueue(e.buffer, PendingInsert{Notification: clone})
		}
	}

	if e.publisher == nil {
		return
	}
	if _, err := e.publisher.PublishPushRequested(ctx, n, accountIDs); err != nil {
		// Best-effort: sockets already got the notification.
		log.Printf("[Engine] Queue publish failed: topic=%s accounts=%d err=%v", n.Topic, len(accountIDs), err)
	}
}

// sendInBand delivers the notification packet to every open socket for
// its account.
func (e *Engine) sendInBand(n *model.Notification) {
	pkt, err := model.NewNotificationPacket(n)
	if err != nil {
		log.Printf("[Engine] In-band encode failed: id=%s err=%v", n.ID, err)
		return
	}
	e.registry.SendToAccount(n.AccountID, pkt)
}

// FanOut groups subscriptions by provider and sends the provider-specific
// payload to each group. One failing token never aborts delivery to the
// rest: invalid tokens queue a pruning item, transient failures are
// logged and dropped for this attempt.
func (e *Engine) FanOut(ctx context.Context, n *model.Notification, subs []model.PushSubscription) {
	if len(subs) == 0 {
		return
	}

	payload := BuildPayload(n, e.threshold)

	byProvider := make(map[string][]Target)
	for _, sub := range subs {
		byProvider[sub.Provider] = append(byProvider[sub.Provider], Target{
			SubscriptionID: sub.ID,
			Token:          sub.DeviceToken,
		})
	}

	for name, targets := range byProvider {
		provider, ok := e.providers[name]
		if !ok {
			log.Printf("[Engine] No transport for provider %q, skipping %d subscriptions", name, len(targets))
			continue
		}

		now := time.Now().UTC()
		for _, result := range provider.Send(ctx, payload, targets) {
			switch result.Outcome {
			case OutcomeOK:
				flush.Enqueue(e.buffer, DeliveryStat{SubscriptionID: result.Target.SubscriptionID, At: now})
			case OutcomeInvalidToken:
				// Prune later; the hot path never waits on the store.
				log.Printf("[Engine] Invalid token, queueing removal: provider=%s sub=%d", name, result.Target.SubscriptionID)
				flush.Enqueue(e.buffer, SubscriptionRemoval{SubscriptionID: result.Target.SubscriptionID})
			case OutcomeTransient:
				log.Printf("[Engine] Transient push failure: provider=%s sub=%d err=%v", name, result.Target.SubscriptionID, result.Err)
			}
		}
	}
}
