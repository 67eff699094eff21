package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"story-client/internal/cache"
	"story-client/internal/clients"
	"story-client/internal/config"
	"story-client/internal/engine"
	"story-client/internal/interfaces"
	"story-client/internal/kvstore"
	sharedLogger "story-client/internal/logger"
	"story-client/internal/models"
	"story-client/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		generatePrompt = flag.String("generate", "", "submit a prompt and wait for the finished story")
		list           = flag.Bool("list", false, "print the user's story list")
		deleteID       = flag.String("delete", "", "delete a story by id")
		accessToken    = flag.String("token", "", "seed the session with an access token")
		refreshToken   = flag.String("refresh-token", "", "seed the session with a refresh token")
	)
	flag.Parse()

	// --- Configuration ---
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: "console",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.L().Info("Configuration loaded", zap.String("apiBaseURL", cfg.APIBaseURL))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Local persistence ---
	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		zap.L().Fatal("Failed to initialize local store", zap.Error(err))
	}

	// --- Clients & Dependency Injection ---
	apiClient, err := clients.NewStoryAPIClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)
	if err != nil {
		zap.L().Fatal("Failed to create story API client", zap.Error(err))
	}
	authClient, err := clients.NewAuthClient(cfg.APIBaseURL, cfg.HTTPTimeout, logger)
	if err != nil {
		zap.L().Fatal("Failed to create auth client", zap.Error(err))
	}

	sessionProvider := session.NewProvider(authClient, store, session.Options{
		VerifyDebounce: cfg.VerifyDebounce,
		RefreshLeeway:  cfg.TokenRefreshLeeway,
	}, logger)

	if *accessToken != "" || *refreshToken != "" {
		if err := sessionProvider.SetTokens(ctx, interfaces.TokenPair{
			AccessToken:  *accessToken,
			RefreshToken: *refreshToken,
		}); err != nil {
			zap.L().Fatal("Failed to seed session tokens", zap.Error(err))
		}
	}

	storyCache := cache.NewStoryCache(store, logger)

	// --- Metrics (optional) ---
	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)
	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	eng := engine.New(apiClient, storyCache, sessionProvider, engine.Config{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
		PageSize:        cfg.PageSize,
	}, metrics, logger)

	switch {
	case *generatePrompt != "":
		runGenerate(ctx, eng, *generatePrompt)
	case *list:
		runList(ctx, eng)
	case *deleteID != "":
		if err := eng.DeleteStory(ctx, *deleteID); err != nil {
			zap.L().Fatal("Delete failed", zap.Error(err))
		}
		fmt.Printf("Deleted story %s\n", *deleteID)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runGenerate(ctx context.Context, eng *engine.Engine, prompt string) {
	fmt.Printf("Generating a story for: %q\n", prompt)
	record, err := eng.GenerateStory(ctx, prompt, func(status models.JobStatus) {
		fmt.Printf("  status: %s\n", status)
	})
	if err != nil {
		zap.L().Fatal("Generation failed", zap.Error(err))
	}

	fmt.Printf("\n%s (%d scenes, %.0fs)\n\n", record.Title, record.TotalScenes, record.TotalDuration)
	for _, scene := range record.Scenes {
		fmt.Printf("Scene %d: %s\n", scene.Index, scene.Text)
	}
}

func runList(ctx context.Context, eng *engine.Engine) {
	entries, _ := eng.LoadUserStories(ctx)
	if len(entries) == 0 {
		fmt.Println("No stories yet.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  [%s]  %s  (%.0fs)\n", e.ID, e.Status, e.Title, e.Duration)
	}
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Info("Metrics listener started", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("Metrics listener stopped", zap.Error(err))
	}
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kvstore.Store, error) {
	switch cfg.CacheBackend {
	case "memory":
		return kvstore.NewMemoryStore(), nil
	case "file":
		return kvstore.NewFileStore(cfg.CacheFilePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return kvstore.NewRedisStore(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
