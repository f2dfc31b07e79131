package main

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vetpos/backend/internal/config"
	"vetpos/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", BootstrapAdminPassword: "admin1234"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", BootstrapAdminPassword: "solo-letras"},
		{AuthSecret: "0123456789abcdef0123456789abcdef", ProfitCostBasis: "fifo"},
	}
	for i, cfg := range cases {
		if err := validateSecurityConfig(&cfg); err == nil {
			t.Fatalf("case %d: expected weak security config to be rejected", i)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(&config.Config{
		AuthSecret:             "0123456789abcdef0123456789abcdef",
		BootstrapAdminPassword: "patitas2026",
		ProfitCostBasis:        "historical",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}

	// Bootstrap password is optional once an admin exists.
	if err := validateSecurityConfig(&config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected config without bootstrap password to pass, got %v", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := newLogger("warn")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("expected warn to be enabled")
	}

	if _, err := newLogger("loud"); err == nil {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestOpenRepositoryFallsBackToMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), "", zap.NewNop())
	if err != nil {
		t.Fatalf("openRepository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no closer for the in-memory store")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", repo)
	}
}

func TestOpenCacheWithoutRedisIsNoop(t *testing.T) {
	c, closeFn := openCache(context.Background(), &config.Config{}, zap.NewNop())
	if closeFn != nil {
		t.Fatalf("expected no closer for the noop cache")
	}
	if c == nil {
		t.Fatalf("expected a cache")
	}
}
