// Package session owns the per-socket lifecycle: upgrade, registration,
// the ordered read loop feeding the router, and guaranteed unregistration
// on every exit path.
package session

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pulsegate/internal/httputil"
	"pulsegate/internal/hub"
	"pulsegate/internal/model"
	"pulsegate/internal/router"
	"pulsegate/internal/transport/http/middleware"
)

const (
	readLimit  = 1 << 20
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades authenticated HTTP requests to websocket sessions.
type Handler struct {
	registry *hub.Registry
	router   *router.Router
}

func NewHandler(registry *hub.Registry, rt *router.Router) *Handler {
	return &Handler{registry: registry, router: rt}
}

// Serve runs one connection's session. The account id comes from the auth
// middleware; the device id from the X-Device-ID header (or device_id
// query for browser clients). Both are required before the upgrade.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	deviceID := r.Header.Get("X-Device-ID")
	if deviceID == "" {
		deviceID = r.URL.Query().Get("device_id")
	}
	if deviceID == "" {
		httputil.WriteBadRequest(w, "Device id is required")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sock := newSocket(ws)
	key := hub.Key{AccountID: accountID, DeviceID: deviceID}
	conn := hub.NewConnection(key, sock, cancel)

	h.registry.TryRegister(conn)
	// Drop, not Unregister: if this session was superseded, the registry
	// slot belongs to the newer socket and must survive our teardown.
	defer h.registry.Drop(conn, "")

	log.Printf("[Session] Established: account=%d device=%s", accountID, deviceID)
	h.receive(ctx, accountID, deviceID, conn, ws)
	log.Printf("[Session] Closed: account=%d device=%s", accountID, deviceID)
}

// receive is the per-connection read loop. Frames are routed in receipt
// order; a malformed frame gets an error reply and the loop continues.
// Any read error, including the close initiated by cancellation below,
// ends the loop.
func (h *Handler) receive(ctx context.Context, accountID int64, deviceID string, conn *hub.Connection, ws *websocket.Conn) {
	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Transport-level pings keep proxies from idling the socket out, and
	// cancellation closes the socket so ReadMessage unblocks.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = ws.Close()
				return
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Session] Read error: account=%d device=%s err=%v", accountID, deviceID, err)
			}
			return
		}

		pkt, err := model.DecodePacket(data)
		if err != nil {
			// Protocol error, not a loop-terminating fault.
			if reply, encErr := model.NewErrorPacket("Malformed packet").Encode(); encErr == nil {
				_ = conn.Send(reply)
			}
			continue
		}

		h.router.Route(ctx, accountID, deviceID, pkt, conn)
	}
}
