package router

import (
	"context"
	"testing"

	"turncore/internal/config"
)

func TestNewRedisMirror_DisabledReturnsNil(t *testing.T) {
	m, err := NewRedisMirror(config.RedisConfig{})
	if err != nil {
		t.Fatalf("unexpected error for disabled config: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil mirror when Redis is not configured")
	}
}

func TestRedisMirror_NilReceiverIsSafe(t *testing.T) {
	var m *RedisMirror
	ctx := context.Background()

	m.MirrorLLMSuccess(ctx)
	m.MirrorFallback(ctx, "reason")
	if stats := m.Snapshot(ctx); stats.LLMSuccessCount != 0 || stats.FallbackCount != 0 {
		t.Fatalf("expected zero-value Stats from a nil mirror, got %+v", stats)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("expected nil-receiver Close to be a no-op, got %v", err)
	}
}
