package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"pulsegate/internal/httputil"
	"pulsegate/internal/model"
	"pulsegate/internal/service"
	"pulsegate/internal/transport/http/middleware"
)

type SubscriptionHandler struct {
	notifService *service.NotificationService
}

func NewSubscriptionHandler(notifService *service.NotificationService) *SubscriptionHandler {
	return &SubscriptionHandler{
		notifService: notifService,
	}
}

// Subscribe handles PUT /subscriptions
// Registers or replaces the push token for the calling device. The device
// is identified by the X-Device-ID header, same as the socket endpoint.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" {
		httputil.WriteBadRequest(w, "X-Device-ID header is required")
		return
	}

	var req model.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	err := h.notifService.Subscribe(r.Context(), accountID, deviceID, req.DeviceToken, req.Provider)
	if err != nil {
		if errors.Is(err, model.ErrDeviceTokenMissing) || errors.Is(err, model.ErrInvalidProvider) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		log.Printf("[ERROR] Subscribe: account=%d device=%s err=%v", accountID, deviceID, err)
		httputil.WriteInternalError(w, "Failed to register subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Subscription registered"})
}

// Unsubscribe handles DELETE /subscriptions
// Removes the push token for the calling device, e.g. on logout.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" {
		httputil.WriteBadRequest(w, "X-Device-ID header is required")
		return
	}

	if err := h.notifService.Unsubscribe(r.Context(), accountID, deviceID); err != nil {
		log.Printf("[ERROR] Unsubscribe: account=%d device=%s err=%v", accountID, deviceID, err)
		httputil.WriteInternalError(w, "Failed to remove subscription")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed"})
}
