package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"shopping-assistant-backend/internal/assistant"
	"shopping-assistant-backend/internal/bootstrap"
	"shopping-assistant-backend/internal/config"
	"shopping-assistant-backend/internal/db"
	"shopping-assistant-backend/internal/llm"
	"shopping-assistant-backend/internal/prompts"
	"shopping-assistant-backend/internal/server"
	"shopping-assistant-backend/internal/store"
	"shopping-assistant-backend/internal/upstream"
)

var configPath = flag.String("config", "", "Path to config file")

// conversationStore is what both the chat service and the HTTP layer need
// from conversation persistence.
type conversationStore interface {
	assistant.Conversations
	server.Conversations
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conversations, closeConversations, err := openConversations(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to open conversation store", zap.Error(err))
	}
	defer closeConversations()

	cache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		logger.Fatal("Failed to open init cache", zap.Error(err))
	}
	defer closeCache()

	promptSet, err := prompts.Load(cfg.Prompts.Path)
	if err != nil {
		logger.Fatal("Failed to load prompts", zap.Error(err))
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = promptSet.Temperature()
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = promptSet.MaxTokens()
	}

	shop := upstream.New(cfg.Upstream, upstream.NewHTTPClient(ctx, cfg.Upstream), logger.Named("upstream"))

	var provider assistant.Provider = shop
	model := ""
	if cfg.Upstream.Provider == config.ProviderOpenAI {
		c := llm.New(cfg.LLM, cfg.Upstream.Contract, logger.Named("llm"))
		provider = c
		model = c.Model()
	}

	boot := bootstrap.New(shop, cache, logger.Named("bootstrap"), bootstrap.Options{
		Key:               cfg.Cache.Key,
		TTL:               cfg.Cache.TTL,
		RetryDelays:       cfg.Cache.RetryDelays,
		DefaultCategories: cfg.Cache.DefaultCategories,
	})
	go boot.Start(ctx)

	chat := assistant.New(provider, conversations, boot, promptSet, logger.Named("assistant"), assistant.Options{
		Contract:   cfg.Upstream.Contract,
		SingleShot: !cfg.Upstream.Streaming,
	})

	srv := server.NewServer(*cfg, server.Deps{
		Assistant:     chat,
		Bootstrap:     boot,
		Conversations: conversations,
		Catalog:       shop,
		Pinger:        shop,
		Model:         model,
		Logger:        logger.Named("http"),
	})
	httpSrv := srv.HTTPServer()

	go func() {
		logger.Info("Starting shopping assistant server",
			zap.String("address", cfg.Address()),
			zap.String("provider", cfg.Upstream.Provider),
			zap.String("contract", cfg.Upstream.Contract),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	boot.Wait()
	logger.Info("Server exited")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// openConversations returns an in-memory store for the "memory" URL and a
// migrated SQL store otherwise.
func openConversations(cfg config.DatabaseConfig, logger *zap.Logger) (conversationStore, func(), error) {
	if cfg.URL == "memory" || cfg.URL == "" {
		logger.Warn("database.url not set to a database, conversations are kept in memory only")
		return store.NewMemoryConversations(0), func() {}, nil
	}
	database, err := db.New(cfg.URL, logger.Named("db"))
	if err != nil {
		return nil, nil, err
	}
	if err := database.RunMigrations(db.Migrations, "migrations"); err != nil {
		database.Close()
		return nil, nil, err
	}
	logger.Info("database migrations completed", zap.String("dialect", string(database.Dialect)))
	return store.NewDatabaseStore(database), func() { database.Close() }, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (bootstrap.Storage, func(), error) {
	switch cfg.Driver {
	case "redis":
		rc, err := store.NewRedisCacheFromURL(ctx, cfg.RedisURL, 0)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	case "file":
		return store.NewFileCache(cfg.Dir), func() {}, nil
	default:
		return store.NewMemoryCache(0), func() {}, nil
	}
}
