package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/httpserver"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/memory"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/metrics"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/mongo"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/postgres"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/redis"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/adapter/websocket"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/app"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/broadcast"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/domain"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/gateway"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/config"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/logging"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/platform/version"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/registry"
	"github.com/dhanashrijadhao1400/real-time-collaborative-document-editor/internal/room"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// storeHandle is the selected persistence backend plus its teardown.
type storeHandle struct {
	store domain.DocumentStore
	close func()
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) storeHandle {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			slog.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		repo := mongo.NewDocumentRepo(client, cfg.MongoDatabase, cfg.MongoCollection, clock)
		if err := mongo.EnsureIndexes(ctx, repo.Collection()); err != nil {
			slog.Error("Failed to create MongoDB indexes", "error", err)
			os.Exit(1)
		}
		slog.Info("Using MongoDB document store", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return storeHandle{store: repo, close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				slog.Error("Failed to disconnect MongoDB", "error", err)
			}
		}}

	case config.BackendPostgres:
		tracer := postgres.NewMetricsTracer(metrics.NewDatabaseMetrics(reg))
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, tracer)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Using PostgreSQL document store")
		return storeHandle{store: postgres.NewDocumentRepo(pool, clock), close: pool.Close}

	default:
		slog.Warn("Using in-memory document store; documents are lost on restart")
		return storeHandle{store: memory.NewStore(clock), close: func() {}}
	}
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	redisMetrics := metrics.NewRedisMetrics(reg)
	client, err := redis.NewClient(context.Background(), cfg.RedisURL,
		redis.NewMetricsHook(redisMetrics),
		redis.NewCircuitBreakerHook(redisMetrics),
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *httpserver.Server, hub *broadcast.Hub, rooms *room.Manager) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		hub.Stop()
		rooms.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	reg := metrics.NewRegistry()

	backend := setupStore(cfg, reg, clock)
	defer backend.close()

	var store domain.DocumentStore = gateway.NewGuard(backend.store, cfg.GatewayTimeout, clock, metrics.NewGatewayMetrics(reg))

	healthChecks := []httpserver.HealthCheck{
		{Name: "document_store", Check: backend.store.Ping},
	}

	redisClient := setupRedis(cfg, reg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		store = redis.NewDocumentCache(store, redisClient, cfg.DocumentCacheTTL, metrics.NewCacheMetrics(reg))
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
		slog.Info("Document cache enabled", "ttl", cfg.DocumentCacheTTL)
	}

	wsMetrics := metrics.NewWebSocketMetrics(reg)

	profiles := registry.New()
	hub := broadcast.NewHub(clock, wsMetrics)
	rooms := room.NewManager(profiles, store, broadcast.NewPresence(hub), broadcast.NewEdits(hub), clock)
	coordinator := app.NewCoordinator(profiles, rooms, store, hub)
	metrics.RegisterCoordinatorGauges(reg, coordinator)

	limits := websocket.NewConnectionLimits(
		int64(cfg.MaxWebSocketConnections),
		cfg.MaxConnectionsPerIP,
		cfg.ConnectionRate,
		cfg.ConnectionBurst,
		clock,
	)
	wsHandler := websocket.NewHandler(coordinator, hub, limits, websocket.Config{
		CheckOrigin:     websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		MaxMessageBytes: cfg.MaxMessageBytes,
		EventRate:       cfg.EventRateLimit,
		EventBurst:      cfg.EventBurst,
	}, clock, wsMetrics)

	srv := httpserver.NewServer(cfg, httpserver.Options{
		Store:            store,
		Stats:            coordinator,
		Connections:      hub,
		WebSocketHandler: wsHandler.Handle,
		MetricsHandler:   metrics.Handler(reg),
		HTTPMetrics:      metrics.NewHTTPMetrics(reg),
		HealthChecks:     healthChecks,
		Clock:            clock,
	})

	done := runGracefulShutdown(srv, hub, rooms)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
