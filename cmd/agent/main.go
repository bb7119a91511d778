package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/eventspot/internal/agent"
	"github.com/quocanhngo/eventspot/internal/cache"
	"github.com/quocanhngo/eventspot/internal/config"
	"github.com/quocanhngo/eventspot/internal/consent"
	"github.com/quocanhngo/eventspot/internal/handler"
	"github.com/quocanhngo/eventspot/internal/model"
	"github.com/quocanhngo/eventspot/internal/router"
	"github.com/quocanhngo/eventspot/internal/task"
	"github.com/quocanhngo/eventspot/internal/ws"
	"github.com/quocanhngo/eventspot/pkg/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	// ==================== Load Config ====================
	cfg := config.LoadAgent()
	log.Printf("🚀 Starting EventSpot agent [origin=%s version=%s storage=%s]", cfg.Agent.Origin, cfg.Agent.Version, cfg.Agent.Storage)

	origin, err := url.Parse(cfg.Agent.Origin)
	if err != nil || origin.Host == "" {
		log.Fatalf("❌ Invalid AGENT_ORIGIN %q: %v", cfg.Agent.Origin, err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// ==================== Cache Storage ====================
	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Cache writes and other fire-and-forget work
	tasks := task.NewRunner(ctx, 30*time.Second)

	// ==================== Background Process ====================
	fetcher := cache.HTTPFetcher{
		Client: &http.Client{Timeout: 15 * time.Second},
		Origin: cfg.Agent.Origin,
	}
	lifecycle := agent.NewLifecycle(store, fetcher, cfg.Agent.Manifest)
	a := agent.New(lifecycle, agent.NewTray())

	// Foreground sessions
	hub := ws.NewHub(a.OnSessionEvent, a.OnSessionCount)
	a.AttachSessions(hub)
	go hub.Run(ctx)

	// Permission and token registration
	// Registrations are made with the API token of the user they belong to
	creds := consent.NewCredentials()
	creds.Set(cfg.Agent.UserID, cfg.Agent.APIToken)
	registrar := consent.NewHTTPRegistrar(cfg.Agent.APIBaseURL, creds.Bearer, 10*time.Second)
	a.UseConsent(consent.NewManager(a.Platform(), registrar, cfg.Agent.PublicKey))

	// Install the configured version. On failure the agent still proxies,
	// it just has nothing to fall back on offline.
	if _, err := a.Handle(ctx, agent.Event{Kind: agent.EventInstall, Version: cfg.Agent.Version}); err != nil {
		log.Printf("⚠️  Initial install failed: %v", err)
	}

	var janitor *cache.Janitor
	if cfg.Agent.SweepInterval > 0 {
		janitor = cache.NewJanitor(lifecycle.Sweeper, cfg.Agent.SweepInterval)
		janitor.Start(ctx)
		log.Printf("🧹 Cache janitor every %s", cfg.Agent.SweepInterval)
	}

	// ==================== Request Router ====================
	classifier := router.Classifier{
		APIPrefix:   cfg.Agent.APIPrefix,
		BypassHosts: cfg.Agent.BypassHosts,
		OfflinePage: cfg.Agent.OfflinePage,
	}
	proxy := &httputil.ReverseProxy{Director: classifier.Director(origin)}
	proxy.Transport = router.New(classifier, lifecycle, http.DefaultTransport, tasks)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(model.ErrorResponse{Error: "Origin unreachable", Message: err.Error()})
	}

	// ==================== Gin Router ====================
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "eventspot-agent",
			"cache":   lifecycle.Active(),
			"time":    time.Now().UTC(),
		})
	})
	handler.NewAgentHandler(a, hub, creds, cfg.Agent.Origin, cfg.Agent.UserID).Register(r)
	// Everything else goes through the cache router to the origin
	r.NoRoute(gin.WrapH(proxy))

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    cfg.Agent.Listen,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Agent failed: %v", err)
		}
	}()

	log.Printf("🌐 Agent running on http://%s", cfg.Agent.Listen)
	log.Printf("🔌 Sessions: ws://%s/__agent/ws?url=<page>", cfg.Agent.Listen)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Agent forced to shutdown: %v", err)
	}

	if janitor != nil {
		janitor.Stop()
	}
	// Pending cache writes finish before storage closes
	tasks.Close()
	stop()
	log.Println("✅ Agent exited gracefully")
}

// openStore connects the configured cache backend
func openStore(ctx context.Context, cfg *config.AgentConfig) (cache.Store, func()) {
	switch cfg.Agent.Storage {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Cache storage: Redis")
		return cache.NewRedisStore(rdb), func() { _ = rdb.Close() }

	case "minio":
		blobs, err := storage.NewMinIO(ctx, storage.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			log.Fatalf("❌ MinIO not available: %v", err)
		}
		log.Printf("✅ Cache storage: MinIO bucket %s", cfg.MinIO.Bucket)
		return cache.NewObjectStore(blobs), func() {}

	default:
		log.Println("📦 Cache storage: memory")
		return cache.NewMemoryStore(), func() {}
	}
}
