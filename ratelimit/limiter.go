// Package ratelimit gates the write path with one token bucket per client
// identity. Buckets refill lazily when consulted, so Admit is O(1) and never
// waits; idle buckets are dropped by a janitor.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shortlink/metrics"
)

// Class selects the bucket profile of an identity.
type Class int

const (
	Anonymous Class = iota
	Authenticated
)

func (c Class) String() string {
	if c == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Identity is who a write is charged to.
type Identity struct {
	Key   string
	Class Class
}

// Profile is a bucket shape: Capacity tokens, refilled at Rate tokens/second.
type Profile struct {
	Capacity int
	Rate     float64
}

// idle is how long a full bucket of this profile takes to refill, times factor.
func (p Profile) idle(factor float64, floor time.Duration) time.Duration {
	if p.Rate <= 0 {
		return floor
	}
	d := time.Duration(factor * float64(p.Capacity) / p.Rate * float64(time.Second))
	if d < floor {
		return floor
	}
	return d
}

type Limiter struct {
	profiles     [2]Profile
	idleFactor   float64
	minIdle      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
	log          *zap.Logger
	clients      sync.Map
}

type clientInfo struct {
	limiter  *rate.Limiter
	class    Class
	lastSeen int64
}

type Option func(*Limiter)

// WithIdleFactor evicts buckets idle longer than factor * Capacity/Rate.
func WithIdleFactor(f float64) Option {
	return func(l *Limiter) { l.idleFactor = f }
}

// WithMinIdle sets a floor on the idle window.
func WithMinIdle(d time.Duration) Option {
	return func(l *Limiter) { l.minIdle = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(l *Limiter) { l.cleanupEvery = d }
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

func New(anonymous, authenticated Profile, opts ...Option) *Limiter {
	l := &Limiter{
		profiles:     [2]Profile{anonymous, authenticated},
		idleFactor:   3,
		minIdle:      time.Minute,
		cleanupEvery: time.Minute,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit spends one token of id's bucket. A denial consumes nothing.
func (l *Limiter) Admit(id Identity) bool {
	now := l.now()
	info := l.getOrCreate(id, now)
	if prev := atomic.SwapInt64(&info.lastSeen, now.UnixNano()); now.UnixNano() < prev {
		// clock went backwards: re-anchor at now, keeping the tokens
		info.limiter.SetBurstAt(now, l.profiles[id.Class].Capacity)
	}

	ok := info.limiter.AllowN(now, 1)
	result := "allowed"
	if !ok {
		result = "denied"
	}
	metrics.RateLimitDecisions.WithLabelValues(id.Class.String(), result).Inc()
	return ok
}

// Profile returns the bucket shape used for class.
func (l *Limiter) Profile(class Class) Profile {
	return l.profiles[class]
}

// Remaining reports the whole tokens left in id's bucket without spending any.
func (l *Limiter) Remaining(id Identity) int {
	v, ok := l.clients.Load(key(id))
	if !ok {
		return l.profiles[id.Class].Capacity
	}
	n := int(v.(*clientInfo).limiter.TokensAt(l.now()))
	if n < 0 {
		return 0
	}
	return n
}

func (l *Limiter) getOrCreate(id Identity, now time.Time) *clientInfo {
	k := key(id)
	if v, ok := l.clients.Load(k); ok {
		return v.(*clientInfo)
	}

	p := l.profiles[id.Class]
	info := &clientInfo{
		limiter:  rate.NewLimiter(rate.Limit(p.Rate), p.Capacity),
		class:    id.Class,
		lastSeen: now.UnixNano(),
	}
	actual, loaded := l.clients.LoadOrStore(k, info)
	if loaded {
		return actual.(*clientInfo)
	}
	return info
}

// Cleanup drops buckets idle past their window and returns how many it removed.
func (l *Limiter) Cleanup() int {
	now := l.now()
	cutoffs := [2]int64{
		now.Add(-l.profiles[Anonymous].idle(l.idleFactor, l.minIdle)).UnixNano(),
		now.Add(-l.profiles[Authenticated].idle(l.idleFactor, l.minIdle)).UnixNano(),
	}

	removed := 0
	l.clients.Range(func(k, v any) bool {
		info := v.(*clientInfo)
		if atomic.LoadInt64(&info.lastSeen) < cutoffs[info.class] {
			l.clients.Delete(k)
			removed++
		}
		return true
	})
	return removed
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	n := 0
	l.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Run cleans up idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	if l.cleanupEvery <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	t := time.NewTicker(l.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if n := l.Cleanup(); n > 0 {
				l.log.Debug("evicted idle rate limit buckets", zap.Int("count", n))
			}
		}
	}
}

func key(id Identity) string {
	return strconv.Itoa(int(id.Class)) + "|" + id.Key
}
