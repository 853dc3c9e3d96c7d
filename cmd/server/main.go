package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/api/handlers"
	"github.com/wikitopics/backend/internal/cache/redis"
	"github.com/wikitopics/backend/internal/corpus"
	"github.com/wikitopics/backend/internal/embed"
	"github.com/wikitopics/backend/internal/metrics"
	"github.com/wikitopics/backend/internal/storage/sqlite"
	"github.com/wikitopics/backend/internal/wiki"
	"github.com/wikitopics/backend/pkg/config"
	appLogger "github.com/wikitopics/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting corpus API server")

	metrics.Init()

	store, err := sqlite.NewStore(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	encoder := embed.NewClient(
		cfg.Embedding.APIKey,
		cfg.Embedding.Model,
		cfg.Embedding.Dim,
		time.Duration(cfg.Embedding.TimeoutSec)*time.Second,
	)

	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			encoder = encoder.WithCache(cache, redis.TextKey)
		}
	}

	wikiClient := wiki.NewClient(
		cfg.Wiki.AccessToken,
		cfg.Wiki.AppName,
		cfg.Wiki.Email,
		time.Duration(cfg.Wiki.TimeoutSec)*time.Second,
	)

	corpusManager := corpus.NewManager(store, wikiClient, encoder, cfg.Crawler.LangCodes, cfg.Crawler.SimThreshold)
	if err := corpusManager.Load(); err != nil {
		appLogger.Fatal("Failed to load corpus", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	searchHandler := handlers.NewSearchHandler(corpusManager, cache)
	pagesHandler := handlers.NewPagesHandler(store)
	graphHandler := handlers.NewGraphHandler(store, cfg.Crawler.LangCode)
	bitextHandler := handlers.NewBitextHandler(corpusManager)
	healthHandler := handlers.NewHealthHandler(store, corpusManager)

	api := app.Group("/api/v1")

	api.Post("/search", searchHandler.HandleSearch)
	api.Get("/search/pages", searchHandler.HandlePageSearch)

	api.Get("/pages", pagesHandler.HandleListPages)
	api.Get("/stats", pagesHandler.HandleStats)

	api.Get("/graph", graphHandler.HandleGraph)
	api.Get("/bitext/:lang", bitextHandler.HandleBitext)

	api.Get("/health", healthHandler.HandleHealth)

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
