package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pulsegate/internal/forward"
	"pulsegate/internal/handler"
	"pulsegate/internal/httputil"
	"pulsegate/internal/session"
	authmw "pulsegate/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	SessionHandler      *session.Handler
	NotificationHandler *handler.NotificationHandler
	SubscriptionHandler *handler.SubscriptionHandler
	InternalHandler     *handler.InternalHandler
	JWTSecret           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Internal routes - service-to-service, no end-user auth.
	// Keep these off the public load balancer.
	r.Post("/internal/notify", cfg.InternalHandler.Notify)
	r.Post(forward.PacketPath, cfg.InternalHandler.ReceivePacket)

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		// Realtime socket endpoint
		r.Get("/ws", cfg.SessionHandler.Serve)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Post("/viewed", cfg.NotificationHandler.MarkViewed)
			r.Get("/unread-count", cfg.NotificationHandler.UnreadCount)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Put("/", cfg.SubscriptionHandler.Subscribe)
			r.Delete("/", cfg.SubscriptionHandler.Unsubscribe)
		})
	})

	return r
}
