package router

import (
	"sync"
	"sync/atomic"
	"time"
)

// ringSize bounds the recent-fallback-reasons ring (§3 UsageCounter, §9
// supplemented features: `RoutingUsageTracker.backup_reasons[-5:]`).
const ringSize = 5

// UsageCounter is §3's UsageCounter entity: process-wide, reset at process
// restart, safe for concurrent mutation (§5 "Shared resources").
type UsageCounter struct {
	llmSuccess int64
	fallback   int64

	mu          sync.Mutex
	lastFallback time.Time
	reasons     []string // ring buffer, oldest-first, capped at ringSize
}

// NewUsageCounter returns a zeroed UsageCounter.
func NewUsageCounter() *UsageCounter { return &UsageCounter{} }

// RecordLLMSuccess increments the LLM-routing success counter.
func (u *UsageCounter) RecordLLMSuccess() {
	atomic.AddInt64(&u.llmSuccess, 1)
}

// RecordFallback increments the fallback counter and records reason in the
// bounded ring, along with the current time.
func (u *UsageCounter) RecordFallback(reason string) {
	atomic.AddInt64(&u.fallback, 1)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastFallback = time.Now()
	u.reasons = append(u.reasons, reason)
	if len(u.reasons) > ringSize {
		u.reasons = u.reasons[len(u.reasons)-ringSize:]
	}
}

// Stats is a point-in-time snapshot of the UsageCounter.
type Stats struct {
	LLMSuccessCount     int64
	FallbackCount       int64
	LastFallbackTime    time.Time
	RecentFallbackReasons []string
}

// FallbackRate returns the fraction of total decisions that used the
// fallback path, for the "fallback usage above a configurable rate is a
// warning signal" check (§4.3 Telemetry).
func (s Stats) FallbackRate() float64 {
	total := s.LLMSuccessCount + s.FallbackCount
	if total == 0 {
		return 0
	}
	return float64(s.FallbackCount) / float64(total)
}

// Snapshot returns the current counters and a copy of the reasons ring.
func (u *UsageCounter) Snapshot() Stats {
	llm := atomic.LoadInt64(&u.llmSuccess)
	fb := atomic.LoadInt64(&u.fallback)
	u.mu.Lock()
	defer u.mu.Unlock()
	reasons := append([]string(nil), u.reasons...)
	return Stats{
		LLMSuccessCount:       llm,
		FallbackCount:         fb,
		LastFallbackTime:      u.lastFallback,
		RecentFallbackReasons: reasons,
	}
}
