package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"pulsegate/internal/flush"
	"pulsegate/internal/hub"
	"pulsegate/internal/model"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeProvider struct {
	name     string
	sends    []sendCall
	outcomes map[string]Outcome // token -> outcome, default OK
}

type sendCall struct {
	payload Payload
	targets []Target
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Send(_ context.Context, payload Payload, targets []Target) []Result {
	p.sends = append(p.sends, sendCall{payload: payload, targets: targets})
	results := make([]Result, len(targets))
	for i, t := range targets {
		outcome := OutcomeOK
		if p.outcomes != nil {
			if o, ok := p.outcomes[t.Token]; ok {
				outcome = o
			}
		}
		results[i] = Result{Target: t, Outcome: outcome}
		if outcome != OutcomeOK {
			results[i].Err = errors.New("provider error")
		}
	}
	return results
}

type publishedJob struct {
	notification *model.Notification
	accountIDs   []int64
}

type fakePublisher struct {
	jobs []publishedJob
	err  error
}

func (p *fakePublisher) PublishPushRequested(_ context.Context, n *model.Notification, accountIDs []int64) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.jobs = append(p.jobs, publishedJob{notification: n, accountIDs: accountIDs})
	return "1-0", nil
}

type fakeSocket struct {
	mu     sync.Mutex
	writes [][]byte
}

func (s *fakeSocket) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, data)
	return nil
}

func (s *fakeSocket) CloseWithReason(string) error { return nil }

func mustNotification(t *testing.T, title, subtitle, content string, priority int) *model.Notification {
	t.Helper()
	n, err := model.NewNotification("chat", title, subtitle, content, model.Meta{"conversation": "c1"}, priority)
	if err != nil {
		t.Fatalf("NewNotification failed: %v", err)
	}
	return n
}

func sub(id, accountID int64, provider, token string) model.PushSubscription {
	return model.PushSubscription{
		ID:          id,
		AccountID:   accountID,
		DeviceID:    "dev",
		DeviceToken: token,
		Provider:    provider,
	}
}

// =============================================================================
// Payload
// =============================================================================

func TestBuildPayload_OmitsEmptyFieldsAndSound(t *testing.T) {
	// Title only, priority below the threshold: alert carries only the
	// title, no sound, normal queueing.
	n := mustNotification(t, "Hi", "", "", 1)
	payload := BuildPayload(n, model.DefaultPriority)

	if payload.Title != "Hi" || payload.Subtitle != "" || payload.Body != "" {
		t.Errorf("Unexpected alert fields: %+v", payload)
	}
	if payload.Sound || payload.HighPriority {
		t.Error("Expected no sound/high-priority below threshold")
	}
	if payload.Data["conversation"] != "c1" {
		t.Error("Expected meta passed through as data")
	}
}

func TestBuildPayload_HighPriorityAtThreshold(t *testing.T) {
	n := mustNotification(t, "Hi", "sub", "body", model.DefaultPriority)
	payload := BuildPayload(n, model.DefaultPriority)

	if !payload.Sound || !payload.HighPriority {
		t.Error("Expected sound and high-priority at threshold")
	}
}

// =============================================================================
// Engine
// =============================================================================

func TestEngine_DeliverBatch_InBandBeforeQueue(t *testing.T) {
	registry := hub.NewRegistry()
	sock := &fakeSocket{}
	registry.TryRegister(hub.NewConnection(hub.Key{AccountID: 7, DeviceID: "d1"}, sock, nil))

	pub := &fakePublisher{}
	e := NewEngine(registry, nil, flush.NewBuffer(), pub, 0)

	n := mustNotification(t, "Hi", "", "", 0)
	e.DeliverBatch(context.Background(), n, []int64{7, 8}, false)

	if len(sock.writes) != 1 {
		t.Fatalf("Expected 1 in-band delivery, got %d", len(sock.writes))
	}
	var pkt model.Packet
	if err := json.Unmarshal(sock.writes[0], &pkt); err != nil {
		t.Fatalf("Invalid in-band frame: %v", err)
	}
	if pkt.Type != model.PacketTypeNotification {
		t.Errorf("Expected notification packet, got %q", pkt.Type)
	}
	var body model.Notification
	if err := json.Unmarshal(pkt.Data, &body); err != nil {
		t.Fatalf("Invalid notification body: %v", err)
	}
	if body.AccountID != 7 || body.Title != "Hi" {
		t.Errorf("Unexpected in-band body: %+v", body)
	}

	if len(pub.jobs) != 1 || len(pub.jobs[0].accountIDs) != 2 {
		t.Fatalf("Expected one queued fan-out job for both accounts, got %+v", pub.jobs)
	}
}

func TestEngine_DeliverBatch_PersistEnqueuesRows(t *testing.T) {
	buffer := flush.NewBuffer()
	e := NewEngine(hub.NewRegistry(), nil, buffer, &fakePublisher{}, 0)

	n := mustNotification(t, "Hi", "", "", 0)
	e.DeliverBatch(context.Background(), n, []int64{1, 2, 3}, true)

	if got := flush.PendingCount[PendingInsert](buffer); got != 3 {
		t.Fatalf("Expected 3 pending inserts, got %d", got)
	}
}

func TestEngine_DeliverBatch_PublishFailureIsSwallowed(t *testing.T) {
	registry := hub.NewRegistry()
	sock := &fakeSocket{}
	registry.TryRegister(hub.NewConnection(hub.Key{AccountID: 1, DeviceID: "d1"}, sock, nil))

	e := NewEngine(registry, nil, flush.NewBuffer(), &fakePublisher{err: errors.New("redis down")}, 0)
	e.DeliverBatch(context.Background(), mustNotification(t, "Hi", "", "", 0), []int64{1}, false)

	// Sockets were still served.
	if len(sock.writes) != 1 {
		t.Error("Expected in-band delivery despite queue failure")
	}
}

func TestEngine_FanOut_GroupsByProvider(t *testing.T) {
	fcm := &fakeProvider{name: model.ProviderFCM}
	expo := &fakeProvider{name: model.ProviderExpo}
	e := NewEngine(hub.NewRegistry(), []Provider{fcm, expo}, flush.NewBuffer(), nil, 0)

	subs := []model.PushSubscription{
		sub(1, 7, model.ProviderFCM, "t1"),
		sub(2, 7, model.ProviderExpo, "t2"),
		sub(3, 8, model.ProviderFCM, "t3"),
	}
	e.FanOut(context.Background(), mustNotification(t, "Hi", "", "", 0), subs)

	if len(fcm.sends) != 1 || len(fcm.sends[0].targets) != 2 {
		t.Errorf("Expected one FCM send with 2 targets, got %+v", fcm.sends)
	}
	if len(expo.sends) != 1 || len(expo.sends[0].targets) != 1 {
		t.Errorf("Expected one Expo send with 1 target, got %+v", expo.sends)
	}
}

func TestEngine_FanOut_InvalidTokenQueuesRemoval(t *testing.T) {
	buffer := flush.NewBuffer()
	fcm := &fakeProvider{
		name: model.ProviderFCM,
		outcomes: map[string]Outcome{
			"dead":  OutcomeInvalidToken,
			"flaky": OutcomeTransient,
		},
	}
	e := NewEngine(hub.NewRegistry(), []Provider{fcm}, buffer, nil, 0)

	subs := []model.PushSubscription{
		sub(1, 7, model.ProviderFCM, "ok1"),
		sub(2, 7, model.ProviderFCM, "dead"),
		sub(3, 7, model.ProviderFCM, "flaky"),
		sub(4, 7, model.ProviderFCM, "ok2"),
	}
	e.FanOut(context.Background(), mustNotification(t, "Hi", "", "", 0), subs)

	// One failing token never aborts the rest.
	if len(fcm.sends[0].targets) != 4 {
		t.Fatalf("Expected all 4 targets attempted, got %d", len(fcm.sends[0].targets))
	}

	if got := flush.PendingCount[SubscriptionRemoval](buffer); got != 1 {
		t.Fatalf("Expected 1 removal queued, got %d", got)
	}
	if got := flush.PendingCount[DeliveryStat](buffer); got != 2 {
		t.Fatalf("Expected 2 delivery stats queued, got %d", got)
	}
}

func TestEngine_FanOut_UnknownProviderSkipped(t *testing.T) {
	e := NewEngine(hub.NewRegistry(), nil, flush.NewBuffer(), nil, 0)
	// No transport registered: must not panic, just skip.
	e.FanOut(context.Background(), mustNotification(t, "Hi", "", "", 0), []model.PushSubscription{
		sub(1, 7, model.ProviderFCM, "t1"),
	})
}

// =============================================================================
// Pruning end-to-end through the flusher
// =============================================================================

type fakeSubscriptionRepo struct {
	mu        sync.Mutex
	deleted   []int64
	bumped    []int64
	deleteErr error
}

func (r *fakeSubscriptionRepo) Upsert(context.Context, int64, string, string, string) error {
	return nil
}

func (r *fakeSubscriptionRepo) SoftDelete(_ context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, ids...)
	return nil
}

func (r *fakeSubscriptionRepo) SoftDeleteByDevice(context.Context, int64, string) error {
	return nil
}

func (r *fakeSubscriptionRepo) ListByAccounts(context.Context, []int64) ([]model.PushSubscription, error) {
	return nil, nil
}

func (r *fakeSubscriptionRepo) BumpDelivered(_ context.Context, ids []int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bumped = append(r.bumped, ids...)
	return nil
}

type fakeNotificationRepo struct {
	inserted []*model.Notification
}

func (r *fakeNotificationRepo) InsertBatch(_ context.Context, rows []*model.Notification) error {
	r.inserted = append(r.inserted, rows...)
	return nil
}

func (r *fakeNotificationRepo) ListByAccount(context.Context, int64, int) ([]model.Notification, error) {
	return nil, nil
}

func (r *fakeNotificationRepo) MarkViewed(context.Context, int64, []string) error { return nil }

func (r *fakeNotificationRepo) UnreadCount(context.Context, int64) (int, error) { return 0, nil }

func TestPruning_InvalidTokenRemovedAfterFlush(t *testing.T) {
	buffer := flush.NewBuffer()
	provider := &fakeProvider{
		name:     model.ProviderExpo,
		outcomes: map[string]Outcome{"dead": OutcomeInvalidToken},
	}
	e := NewEngine(hub.NewRegistry(), []Provider{provider}, buffer, nil, 0)

	e.FanOut(context.Background(), mustNotification(t, "Hi", "", "", 0), []model.PushSubscription{
		sub(11, 7, model.ProviderExpo, "dead"),
	})

	subsRepo := &fakeSubscriptionRepo{}
	flusher := NewFlusher(buffer, &fakeNotificationRepo{}, subsRepo, time.Minute)
	flusher.FlushAll(context.Background())

	if len(subsRepo.deleted) != 1 || subsRepo.deleted[0] != 11 {
		t.Fatalf("Expected subscription 11 pruned, got %v", subsRepo.deleted)
	}
	if flush.PendingCount[SubscriptionRemoval](buffer) != 0 {
		t.Error("Expected removal queue drained")
	}
}

func TestFlusher_FailedFlushKeepsBatch(t *testing.T) {
	buffer := flush.NewBuffer()
	flush.Enqueue(buffer, SubscriptionRemoval{SubscriptionID: 1})
	flush.Enqueue(buffer, SubscriptionRemoval{SubscriptionID: 2})

	subsRepo := &fakeSubscriptionRepo{deleteErr: errors.New("store down")}
	flusher := NewFlusher(buffer, &fakeNotificationRepo{}, subsRepo, time.Minute)
	flusher.FlushAll(context.Background())

	if got := flush.PendingCount[SubscriptionRemoval](buffer); got != 2 {
		t.Fatalf("Expected both removals preserved, got %d", got)
	}

	subsRepo.deleteErr = nil
	flusher.FlushAll(context.Background())
	if len(subsRepo.deleted) != 2 {
		t.Fatalf("Expected retry to prune both, got %v", subsRepo.deleted)
	}
}

func TestFlusher_DrainsPendingInserts(t *testing.T) {
	buffer := flush.NewBuffer()
	e := NewEngine(hub.NewRegistry(), nil, buffer, nil, 0)
	e.DeliverBatch(context.Background(), mustNotification(t, "Hi", "", "", 0), []int64{1, 2}, true)

	notifRepo := &fakeNotificationRepo{}
	flusher := NewFlusher(buffer, notifRepo, &fakeSubscriptionRepo{}, time.Minute)
	flusher.FlushAll(context.Background())

	if len(notifRepo.inserted) != 2 {
		t.Fatalf("Expected 2 rows inserted, got %d", len(notifRepo.inserted))
	}
	accounts := map[int64]bool{}
	for _, n := range notifRepo.inserted {
		accounts[n.AccountID] = true
	}
	if !accounts[1] || !accounts[2] {
		t.Errorf("Expected rows for accounts 1 and 2, got %+v", accounts)
	}
}
