package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"pulsegate/internal/hub"
	"pulsegate/internal/model"
	"pulsegate/internal/service"
)

// PacketTypeNotificationViewed is sent by clients over the socket when
// notifications are opened, so the badge clears without an HTTP round trip.
const PacketTypeNotificationViewed = "notification_viewed"

// NotificationViewedHandler processes notification_viewed packets from
// connected clients.
type NotificationViewedHandler struct {
	notifService *service.NotificationService
}

func NewNotificationViewedHandler(notifService *service.NotificationService) *NotificationViewedHandler {
	return &NotificationViewedHandler{
		notifService: notifService,
	}
}

func (h *NotificationViewedHandler) Type() string {
	return PacketTypeNotificationViewed
}

func (h *NotificationViewedHandler) Handle(ctx context.Context, accountID int64, deviceID string, pkt *model.Packet, conn *hub.Connection) error {
	var req model.MarkViewedRequest
	if err := json.Unmarshal(pkt.Data, &req); err != nil {
		return fmt.Errorf("decode notification_viewed data: %w", err)
	}
	if len(req.NotificationIDs) == 0 {
		return fmt.Errorf("notification_viewed requires notification_ids")
	}

	if err := h.notifService.MarkViewed(ctx, accountID, req.NotificationIDs); err != nil {
		return fmt.Errorf("mark viewed: %w", err)
	}

	log.Printf("[Packet] account=%d device=%s marked %d notifications viewed", accountID, deviceID, len(req.NotificationIDs))
	return nil
}
