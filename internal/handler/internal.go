package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"pulsegate/internal/httputil"
	"pulsegate/internal/model"
	"pulsegate/internal/router"
	"pulsegate/internal/service"
)

// InternalHandler serves the service-to-service surface: triggering
// deliveries and receiving packets forwarded from peer instances. These
// routes sit on the internal network and bypass end-user auth.
type InternalHandler struct {
	notifService *service.NotificationService
	router       *router.Router
}

func NewInternalHandler(notifService *service.NotificationService, rt *router.Router) *InternalHandler {
	return &InternalHandler{
		notifService: notifService,
		router:       rt,
	}
}

// Notify handles POST /internal/notify
// Other services call this to deliver a notification to a set of accounts.
func (h *InternalHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req model.NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	n, err := h.notifService.Notify(r.Context(), &req)
	if err != nil {
		if errors.Is(err, model.ErrEmptyNotification) || errors.Is(err, model.ErrNoRecipients) {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		log.Printf("[ERROR] Notify: err=%v", err)
		httputil.WriteInternalError(w, "Failed to deliver notification")
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"notification_id": n.ID})
}

// ReceivePacket handles POST /internal/packets
// A peer instance forwards a packet here when this instance owns the
// handler for its type. The originating connection lives on the peer, so
// routing runs without a local connection and any reply is dropped.
func (h *InternalHandler) ReceivePacket(w http.ResponseWriter, r *http.Request) {
	var env model.ForwardEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if env.Packet == nil || env.Packet.Type == "" {
		httputil.WriteBadRequest(w, "packet with a type is required")
		return
	}

	h.router.Route(r.Context(), env.AccountID, env.DeviceID, env.Packet, nil)

	w.WriteHeader(http.StatusNoContent)
}
