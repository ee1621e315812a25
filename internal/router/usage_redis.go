package router

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"turncore/internal/config"
)

// RedisMirror shadows a UsageCounter's counters into Redis so multiple
// orchestrator processes share routing telemetry instead of each keeping
// its own in-memory Stats (§9 DOMAIN STACK). Grounded on the teacher's
// internal/skills/redis_cache.go: nil-receiver-tolerant methods, a Ping at
// construction, and best-effort writes that log rather than propagate.
type RedisMirror struct {
	client redis.UniversalClient
	prefix string
}

const redisMirrorKeyPrefix = "router:usage:"
const recentReasonsKey = redisMirrorKeyPrefix + "recent_reasons"

// NewRedisMirror builds a RedisMirror when cfg.Enabled(); returns nil
// (not an error) when Redis isn't configured, matching
// NewRedisSkillsCache's "disabled means nil" convention.
func NewRedisMirror(cfg config.RedisConfig) (*RedisMirror, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("router usage redis mirror ping: %w", err)
	}
	return &RedisMirror{client: client}, nil
}

// MirrorLLMSuccess increments the shared llm_success counter.
func (m *RedisMirror) MirrorLLMSuccess(ctx context.Context) {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Incr(ctx, redisMirrorKeyPrefix+"llm_success").Err(); err != nil {
		log.Debug().Err(err).Msg("router_usage_redis_mirror_llm_success_error")
	}
}

// MirrorFallback increments the shared fallback counter, records the last
// fallback time, and pushes reason onto the bounded recent-reasons ring.
func (m *RedisMirror) MirrorFallback(ctx context.Context, reason string) {
	if m == nil || m.client == nil {
		return
	}
	if err := m.client.Incr(ctx, redisMirrorKeyPrefix+"fallback").Err(); err != nil {
		log.Debug().Err(err).Msg("router_usage_redis_mirror_fallback_error")
	}
	if err := m.client.Set(ctx, redisMirrorKeyPrefix+"last_fallback", time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		log.Debug().Err(err).Msg("router_usage_redis_mirror_last_fallback_error")
	}
	if err := m.client.LPush(ctx, recentReasonsKey, reason).Err(); err != nil {
		log.Debug().Err(err).Msg("router_usage_redis_mirror_reason_push_error")
		return
	}
	if err := m.client.LTrim(ctx, recentReasonsKey, 0, ringSize-1).Err(); err != nil {
		log.Debug().Err(err).Msg("router_usage_redis_mirror_reason_trim_error")
	}
}

// Snapshot reads back the shared counters, falling back to zero values on
// any read error (best-effort telemetry, never a hard dependency).
func (m *RedisMirror) Snapshot(ctx context.Context) Stats {
	if m == nil || m.client == nil {
		return Stats{}
	}
	llm, _ := m.client.Get(ctx, redisMirrorKeyPrefix+"llm_success").Int64()
	fb, _ := m.client.Get(ctx, redisMirrorKeyPrefix+"fallback").Int64()
	reasons, err := m.client.LRange(ctx, recentReasonsKey, 0, ringSize-1).Result()
	if err != nil {
		reasons = nil
	}
	var lastFallback time.Time
	if raw, err := m.client.Get(ctx, redisMirrorKeyPrefix+"last_fallback").Result(); err == nil {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			lastFallback = t
		}
	}
	return Stats{
		LLMSuccessCount:       llm,
		FallbackCount:         fb,
		LastFallbackTime:      lastFallback,
		RecentFallbackReasons: reasons,
	}
}

// Close releases the underlying Redis connection.
func (m *RedisMirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
