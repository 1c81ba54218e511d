package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is one admission outcome, reported to a StatsStore.
type Decision struct {
	Identity Identity
	Allowed  bool
	At       time.Time
}

// StatsStore persists admission statistics. Callers treat it as best effort.
type StatsStore interface {
	Record(ctx context.Context, d Decision) error
}

type Counters struct {
	Allowed int64
	Denied  int64
}

// MemoryStats counts decisions in process, per class.
type MemoryStats struct {
	mu      sync.Mutex
	total   Counters
	byClass map[Class]Counters
}

func NewMemoryStats() *MemoryStats {
	return &MemoryStats{byClass: make(map[Class]Counters)}
}

func (s *MemoryStats) Record(_ context.Context, d Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.byClass[d.Identity.Class]
	if d.Allowed {
		s.total.Allowed++
		c.Allowed++
	} else {
		s.total.Denied++
		c.Denied++
	}
	s.byClass[d.Identity.Class] = c
	return nil
}

func (s *MemoryStats) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStats) ByClass(c Class) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byClass[c]
}

// RedisStats keeps hash counters in Redis: a cumulative total, one bucket per
// minute and, optionally, one per identity.
type RedisStats struct {
	rdb       redis.Cmdable
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

type RedisStatsOption func(*RedisStats)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStats) { s.prefix = strings.Trim(prefix, ":") }
}

// WithStatsTTL expires the per-minute and per-key hashes. The total never expires.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStats) { s.ttl = d }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStats) { s.trackKeys = track }
}

func NewRedisStats(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStats {
	s := &RedisStats{
		rdb:    rdb,
		prefix: "shortlink:ratelimit",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStats) Record(ctx context.Context, d Decision) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if d.Allowed {
		field = "allowed"
	}
	class := d.Identity.Class.String()

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", class+":"+field, 1)

	minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, class+":"+field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if s.trackKeys && d.Identity.Key != "" {
		keyKey := s.prefix + ":key:" + d.Identity.Key
		pipe.HIncrBy(ctx, keyKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, keyKey, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
