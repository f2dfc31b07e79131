package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"vetpos/backend/internal/assistant"
	"vetpos/backend/internal/cache"
	"vetpos/backend/internal/config"
	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/httpapi"
	"vetpos/backend/internal/service"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/store/memory"
	pgstore "vetpos/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid LOG_LEVEL: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	var engine service.Assistant
	if cfg.AssistantEnabled() {
		classifications, closeCache := openCache(ctx, cfg, logger)
		if closeCache != nil {
			closers = append(closers, closeCache)
		}
		model := assistant.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL, cfg.AssistantTimeout)
		engine = assistant.NewEngine(model, repo, classifications, cfg.AssistantCacheTTL, logger.Named("assistant"))
		logger.Info("assistant: gemini", zap.String("model", model.Model()))
	} else {
		logger.Info("assistant: disabled (GEMINI_API_KEY not set)")
	}

	svc := service.New(repo, service.Options{
		Location:  loc,
		CostBasis: cfg.ProfitCostBasis,
		Logger:    logger.Named("service"),
		Assistant: engine,
	})
	if cfg.BootstrapAdminPassword != "" {
		created, err := svc.BootstrapAdmin(ctx, cfg.BootstrapAdminPassword)
		if err != nil {
			logger.Fatal("bootstrap admin failed", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("username", service.BootstrapAdminName))
		}
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, svc)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger.Named("http"),
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("vet POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = parsed
	}
	return zapCfg.Build()
}

// openRepository picks postgres when a URL is configured and the seeded
// in-memory store otherwise. A configured but unreachable database is fatal.
func openRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (store.Repository, func() error, error) {
	if databaseURL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
	pg, err := pgstore.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("repository: postgres")
	return pg, pg.Close, nil
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.ClassificationCache, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("cache: noop")
		return cache.NoopClassificationCache{}, nil
	}
	redisCache := cache.NewRedisClassificationCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop cache", zap.Error(err))
		_ = redisCache.Close()
		return cache.NoopClassificationCache{}, nil
	}
	logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
	return redisCache, redisCache.Close
}

func validateSecurityConfig(cfg *config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.BootstrapAdminPassword != "" {
		if err := service.ValidateBootstrapPassword(cfg.BootstrapAdminPassword); err != nil {
			return fmt.Errorf("BOOTSTRAP_ADMIN_PASSWORD is too weak: %w", err)
		}
	}
	switch cfg.ProfitCostBasis {
	case "", domain.CostBasisCurrent, domain.CostBasisHistorical:
	default:
		return fmt.Errorf("PROFIT_COST_BASIS must be %q or %q", domain.CostBasisCurrent, domain.CostBasisHistorical)
	}
	return nil
}
