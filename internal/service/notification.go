package service

import (
	"context"
	"fmt"
	"log"

	"pulsegate/internal/cache"
	"pulsegate/internal/model"
	"pulsegate/internal/push"
	"pulsegate/internal/repository"
)

// NotificationService handles notification-related business logic: the
// read surface (list, unread badge, mark viewed), push subscription
// management, and the delivery entry point used by other services.
type NotificationService struct {
	notifRepo   repository.NotificationRepository
	subRepo     repository.SubscriptionRepository
	engine      *push.Engine
	unreadCache cache.UnreadCache // Can be nil; unread counts then always hit the database
}

func NewNotificationService(
	notifRepo repository.NotificationRepository,
	subRepo repository.SubscriptionRepository,
	engine *push.Engine,
	unreadCache cache.UnreadCache,
) *NotificationService {
	return &NotificationService{
		notifRepo:   notifRepo,
		subRepo:     subRepo,
		engine:      engine,
		unreadCache: unreadCache,
	}
}

// GetNotifications returns the most recent notifications for an account
// plus the unread count for badge display.
func (s *NotificationService) GetNotifications(ctx context.Context, accountID int64, limit int) (*model.NotificationListResponse, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	notifications, err := s.notifRepo.ListByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, err
	}

	unread, err := s.GetUnreadCount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	return &model.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

// MarkViewed stamps viewed_at on the given notifications. Already-viewed
// notifications keep their original timestamp.
func (s *NotificationService) MarkViewed(ctx context.Context, accountID int64, notificationIDs []string) error {
	if err := s.notifRepo.MarkViewed(ctx, accountID, notificationIDs); err != nil {
		return err
	}
	s.invalidateUnread(ctx, accountID)
	return nil
}

// GetUnreadCount returns the number of unread notifications, served from
// cache when possible.
func (s *NotificationService) GetUnreadCount(ctx context.Context, accountID int64) (int, error) {
	if s.unreadCache != nil {
		if count, found, err := s.unreadCache.Get(ctx, accountID); err == nil && found {
			return count, nil
		}
	}

	count, err := s.notifRepo.UnreadCount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	if s.unreadCache != nil {
		// Best-effort: a failed cache write just means another DB read.
		_ = s.unreadCache.Set(ctx, accountID, count)
	}
	return count, nil
}

func (s *NotificationService) invalidateUnread(ctx context.Context, accountIDs ...int64) {
	if s.unreadCache == nil {
		return
	}
	if err := s.unreadCache.Invalidate(ctx, accountIDs...); err != nil {
		log.Printf("[NotificationService] Unread cache invalidation failed: %v", err)
	}
}

// Subscribe stores or replaces the push subscription for a device.
// Called when an account logs in on a device or the push token is
// refreshed by the mobile app.
func (s *NotificationService) Subscribe(ctx context.Context, accountID int64, deviceID, token, provider string) error {
	if token == "" {
		return model.ErrDeviceTokenMissing
	}
	if !model.ValidProvider(provider) {
		return fmt.Errorf("%w: %q", model.ErrInvalidProvider, provider)
	}
	return s.subRepo.Upsert(ctx, accountID, deviceID, token, provider)
}

// Unsubscribe removes the push subscription for a device, e.g. on logout.
func (s *NotificationService) Unsubscribe(ctx context.Context, accountID int64, deviceID string) error {
	return s.subRepo.SoftDeleteByDevice(ctx, accountID, deviceID)
}

// Notify builds a notification from the request and hands it to the
// delivery engine. Connected devices receive it in-band immediately;
// push fan-out and persistence happen asynchronously.
func (s *NotificationService) Notify(ctx context.Context, req *model.NotifyRequest) (*model.Notification, error) {
	if len(req.AccountIDs) == 0 {
		return nil, model.ErrNoRecipients
	}

	n, err := model.NewNotification(req.Topic, req.Title, req.Subtitle, req.Content, req.Meta, req.Priority)
	if err != nil {
		return nil, err
	}

	s.engine.DeliverBatch(ctx, n, req.AccountIDs, req.Persist)
	if req.Persist {
		s.invalidateUnread(ctx, req.AccountIDs...)
	}
	return n, nil
}
