package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"pulsegate/internal/httputil"
	"pulsegate/internal/model"
	"pulsegate/internal/service"
	"pulsegate/internal/transport/http/middleware"
)

type NotificationHandler struct {
	notifService *service.NotificationService
}

func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notifService: notifService,
	}
}

// List handles GET /notifications
// Returns the most recent notifications for the authenticated account.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	limit := 20 // default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	notifications, err := h.notifService.GetNotifications(r.Context(), accountID, limit)
	if err != nil {
		log.Printf("[ERROR] List notifications: account=%d err=%v", accountID, err)
		httputil.WriteInternalError(w, "Failed to get notifications")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, notifications)
}

// MarkViewed handles POST /notifications/viewed
// Stamps viewed_at on the given notifications.
func (h *NotificationHandler) MarkViewed(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.MarkViewedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if len(req.NotificationIDs) == 0 {
		httputil.WriteBadRequest(w, "notification_ids is required")
		return
	}

	if err := h.notifService.MarkViewed(r.Context(), accountID, req.NotificationIDs); err != nil {
		log.Printf("[ERROR] Mark notifications viewed: account=%d err=%v", accountID, err)
		httputil.WriteInternalError(w, "Failed to mark notifications as viewed")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Notifications marked as viewed"})
}

// UnreadCount handles GET /notifications/unread-count
// Returns the unread notification count for badge display.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	count, err := h.notifService.GetUnreadCount(r.Context(), accountID)
	if err != nil {
		log.Printf("[ERROR] Unread count: account=%d err=%v", accountID, err)
		httputil.WriteInternalError(w, "Failed to get unread count")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}
