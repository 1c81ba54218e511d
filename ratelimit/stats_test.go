package ratelimit

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHook records pipelined commands and answers them without a server.
type captureHook struct {
	mu   sync.Mutex
	cmds [][]interface{}
}

func (h *captureHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("no server in tests")
	}
}

func (h *captureHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.record(cmd)
		return nil
	}
}

func (h *captureHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			h.record(cmd)
		}
		return nil
	}
}

func (h *captureHook) record(cmd redis.Cmder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cmds = append(h.cmds, cmd.Args())
}

func (h *captureHook) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.cmds))
	for _, args := range h.cmds {
		out = append(out, fmt.Sprint(args...))
	}
	return out
}

func newCapturedRedis(t *testing.T) (*redis.Client, *captureHook) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	hook := &captureHook{}
	rdb.AddHook(hook)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, hook
}

func TestRedisStats_Record(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 34, 56, 0, time.UTC)

	tests := []struct {
		name     string
		opts     []RedisStatsOption
		decision Decision
		want     []string
	}{
		{
			name:     "allowed anonymous with default ttl",
			decision: Decision{Identity: Identity{Key: "ip:10.0.0.1"}, Allowed: true, At: at},
			want: []string{
				fmt.Sprint("hincrby", "shortlink:ratelimit:total", "anonymous:allowed", int64(1)),
				fmt.Sprint("hincrby", "shortlink:ratelimit:minute:202603011234", "anonymous:allowed", int64(1)),
				fmt.Sprint("expire", "shortlink:ratelimit:minute:202603011234", int64(86400)),
			},
		},
		{
			name: "denied authenticated tracked per key",
			opts: []RedisStatsOption{WithStatsPrefix("rl:"), WithStatsTTL(time.Hour), WithStatsTrackKeys(true)},
			decision: Decision{
				Identity: Identity{Key: "user:42", Class: Authenticated},
				At:       at,
			},
			want: []string{
				fmt.Sprint("hincrby", "rl:total", "authenticated:denied", int64(1)),
				fmt.Sprint("hincrby", "rl:minute:202603011234", "authenticated:denied", int64(1)),
				fmt.Sprint("expire", "rl:minute:202603011234", int64(3600)),
				fmt.Sprint("hincrby", "rl:key:user:42", "denied", int64(1)),
				fmt.Sprint("expire", "rl:key:user:42", int64(3600)),
			},
		},
		{
			name:     "no expiry without a ttl",
			opts:     []RedisStatsOption{WithStatsTTL(0), WithStatsTrackKeys(true)},
			decision: Decision{Identity: Identity{Key: "ip:10.0.0.2"}, Allowed: true, At: at},
			want: []string{
				fmt.Sprint("hincrby", "shortlink:ratelimit:total", "anonymous:allowed", int64(1)),
				fmt.Sprint("hincrby", "shortlink:ratelimit:minute:202603011234", "anonymous:allowed", int64(1)),
				fmt.Sprint("hincrby", "shortlink:ratelimit:key:ip:10.0.0.2", "allowed", int64(1)),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rdb, hook := newCapturedRedis(t)
			s := NewRedisStats(rdb, tt.opts...)

			require.NoError(t, s.Record(context.Background(), tt.decision))
			assert.Equal(t, tt.want, hook.calls())
		})
	}
}

func TestRedisStats_NilIsNoop(t *testing.T) {
	var s *RedisStats
	assert.NoError(t, s.Record(context.Background(), Decision{Allowed: true}))
}
