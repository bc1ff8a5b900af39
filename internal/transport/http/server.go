package http

import (
	"context"
	"fmt"
	"log"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"pulsegate/internal/cache"
	"pulsegate/internal/config"
	"pulsegate/internal/database"
	"pulsegate/internal/discovery"
	"pulsegate/internal/flush"
	"pulsegate/internal/forward"
	"pulsegate/internal/handler"
	"pulsegate/internal/hub"
	"pulsegate/internal/push"
	"pulsegate/internal/queue"
	"pulsegate/internal/redis"
	"pulsegate/internal/repository"
	"pulsegate/internal/router"
	"pulsegate/internal/service"
	"pulsegate/internal/session"
	"pulsegate/internal/worker"
)

const advertiseTTL = 15 * time.Second

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	db, err := database.NewConnection(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// 3. Connect to Redis
	rdb, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 4. Repositories
	notifRepo := repository.NewNotificationRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// 5. Push providers. FCM is optional: without credentials we still
	// run with Expo only.
	providers := []push.Provider{push.NewExpoProvider()}
	if cfg.FCMProjectID != "" && cfg.FCMClientEmail != "" && cfg.FCMPrivateKey != "" {
		fcm, err := push.NewFCMProvider(ctx, cfg.FCMProjectID, cfg.FCMClientEmail, cfg.FCMPrivateKey)
		if err != nil {
			return fmt.Errorf("failed to init FCM provider: %w", err)
		}
		providers = append(providers, fcm)
		log.Println("[Server] FCM provider enabled")
	} else {
		log.Println("[Server] FCM credentials not set, running with Expo only")
	}

	// 6. Delivery core: registry, write-behind buffer, engine, flusher
	registry := hub.NewRegistry()
	buffer := flush.NewBuffer()
	publisher := queue.NewPublisher(rdb.Client)
	engine := push.NewEngine(registry, providers, buffer, publisher, cfg.PushPriorityThreshold)

	flusher := push.NewFlusher(buffer, notifRepo, subRepo, cfg.FlushInterval)
	flusher.Start(ctx)

	// 7. Worker pool consuming the delivery stream
	consumer := queue.NewConsumer(rdb.Client)
	workerHandler := worker.NewHandler(subRepo, engine)
	manager := worker.NewManager(consumer, workerHandler, worker.ManagerConfig{
		WorkerCount: cfg.WorkerCount,
	})
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	// 8. Packet routing: local handlers win, unknown endpoints forward
	unreadCache := cache.NewUnreadCache(rdb.Client)
	notifService := service.NewNotificationService(notifRepo, subRepo, engine, unreadCache)
	resolver := discovery.NewRedisResolver(rdb.Client)
	forwarder := forward.NewClient(cfg.ForwardTimeout)
	packetRouter, err := router.New(resolver, forwarder,
		handler.NewNotificationViewedHandler(notifService),
	)
	if err != nil {
		return fmt.Errorf("failed to build packet router: %w", err)
	}

	// 9. Advertise this instance so peers can forward packets to it
	if cfg.AdvertiseAddr != "" {
		go advertise(ctx, resolver, cfg.ServiceName, cfg.AdvertiseAddr)
	}

	// 10. HTTP surface
	sessionHandler := session.NewHandler(registry, packetRouter)
	r := NewRouter(RouterConfig{
		SessionHandler:      sessionHandler,
		NotificationHandler: handler.NewNotificationHandler(notifService),
		SubscriptionHandler: handler.NewSubscriptionHandler(notifService),
		InternalHandler:     handler.NewInternalHandler(notifService, packetRouter),
		JWTSecret:           cfg.JWTSecret,
	})

	server := &stdhttp.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Shutdown order: stop accepting requests, stop workers, drain the
	// write-behind buffer, then close live sockets.
	log.Println("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Server] HTTP shutdown: %v", err)
	}

	manager.Stop()
	flusher.Wait()
	registry.Shutdown()

	log.Println("[Server] Shutdown complete")
	return nil
}

// advertise refreshes this instance's endpoint registration until ctx is
// cancelled. The TTL lets a crashed instance fall out of the registry on
// its own.
func advertise(ctx context.Context, resolver *discovery.RedisResolver, name, addr string) {
	refresh := advertiseTTL / 3
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	if err := resolver.Advertise(ctx, name, addr, advertiseTTL); err != nil {
		log.Printf("[Server] Advertise %s=%s: %v", name, addr, err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := resolver.Advertise(ctx, name, addr, advertiseTTL); err != nil {
				log.Printf("[Server] Advertise %s=%s: %v", name, addr, err)
			}
		}
	}
}
