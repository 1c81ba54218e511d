// config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds runtime configuration for the app.
type Config struct {
	Port         string
	BaseHost     string
	DatabasePath string
	DatabaseURL  string
	AppEnv       string // "development" | "production"
	LogLevel     string

	CacheCapacity    int
	CacheShards      int
	CacheTTL         time.Duration
	CacheNegativeTTL time.Duration

	RateAnonCapacity   int
	RateAnonRefill     float64 // tokens per second
	RateAuthCapacity   int
	RateAuthRefill     float64
	RateIdleFactor     float64
	RateStatsRedisAddr string

	ClickFlushInterval  time.Duration
	ClickFlushThreshold int
	ClickBuffer         int

	CodeScheme      string // "sequence" | "random"
	CodeAlphabet    string
	CodeLength      int
	CodeMaxLength   int
	CodeNodeID      int64
	AllocMaxRetries int

	StoreTimeout time.Duration
	JWTSecret    string
}

const (
	SchemeSequence = "sequence"
	SchemeRandom   = "random"

	defaultAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

func Load() (*Config, error) {
	p := &parser{}
	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		BaseHost:     os.Getenv("BASE_HOST"),
		DatabasePath: getenv("DATABASE_PATH", "data/db.sqlite3"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AppEnv:       getenv("APP_ENV", "production"),
		LogLevel:     getenv("LOG_LEVEL", "info"),

		CacheCapacity:    p.int("CACHE_CAPACITY", 10_000),
		CacheShards:      p.int("CACHE_SHARDS", 16),
		CacheTTL:         p.duration("CACHE_TTL", time.Hour),
		CacheNegativeTTL: p.duration("CACHE_NEGATIVE_TTL", 30*time.Second),

		RateAnonCapacity:   p.int("RATE_ANON_CAPACITY", 10),
		RateAnonRefill:     p.float("RATE_ANON_REFILL", 1),
		RateAuthCapacity:   p.int("RATE_AUTH_CAPACITY", 100),
		RateAuthRefill:     p.float("RATE_AUTH_REFILL", 10),
		RateIdleFactor:     p.float("RATE_IDLE_FACTOR", 3),
		RateStatsRedisAddr: os.Getenv("RATE_STATS_REDIS_ADDR"),

		ClickFlushInterval:  p.duration("CLICK_FLUSH_INTERVAL", 250*time.Millisecond),
		ClickFlushThreshold: p.int("CLICK_FLUSH_THRESHOLD", 400),
		ClickBuffer:         p.int("CLICK_BUFFER", 8192),

		CodeScheme:      strings.ToLower(getenv("CODE_SCHEME", SchemeSequence)),
		CodeAlphabet:    getenv("CODE_ALPHABET", defaultAlphabet),
		CodeLength:      p.int("CODE_LENGTH", 7),
		CodeMaxLength:   p.int("CODE_MAX_LENGTH", 11),
		CodeNodeID:      int64(p.int("CODE_NODE_ID", 1)),
		AllocMaxRetries: p.int("ALLOC_MAX_RETRIES", 5),

		StoreTimeout: p.duration("STORE_TIMEOUT", 2*time.Second),
		JWTSecret:    os.Getenv("JWT_SECRET"),
	}
	if p.err != nil {
		return nil, p.err
	}

	// Required validations
	if cfg.BaseHost == "" {
		return nil, errors.New("BASE_HOST is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.CacheCapacity <= 0:
		return errors.New("CACHE_CAPACITY must be positive")
	case c.CacheShards <= 0:
		return errors.New("CACHE_SHARDS must be positive")
	case c.CacheTTL <= 0:
		return errors.New("CACHE_TTL must be positive")
	case c.CacheNegativeTTL < 0:
		return errors.New("CACHE_NEGATIVE_TTL must not be negative")
	case c.RateAnonCapacity <= 0 || c.RateAuthCapacity <= 0:
		return errors.New("rate limit capacities must be positive")
	case c.RateAnonRefill <= 0 || c.RateAuthRefill <= 0:
		return errors.New("rate limit refill rates must be positive")
	case c.RateIdleFactor < 1:
		return errors.New("RATE_IDLE_FACTOR must be at least 1")
	case c.ClickFlushThreshold <= 0 || c.ClickBuffer <= 0:
		return errors.New("CLICK_FLUSH_THRESHOLD and CLICK_BUFFER must be positive")
	case c.AllocMaxRetries <= 0:
		return errors.New("ALLOC_MAX_RETRIES must be positive")
	case c.StoreTimeout <= 0:
		return errors.New("STORE_TIMEOUT must be positive")
	}

	if !uniqueSymbols(c.CodeAlphabet) {
		return errors.New("CODE_ALPHABET must be non-empty ASCII without repeated symbols")
	}
	switch c.CodeScheme {
	case SchemeSequence:
		if len(c.CodeAlphabet) != 62 {
			return errors.Errorf("sequence scheme needs a 62-symbol CODE_ALPHABET, got %d", len(c.CodeAlphabet))
		}
		if c.CodeMaxLength <= 0 {
			return errors.New("CODE_MAX_LENGTH must be positive")
		}
		if c.CodeNodeID < 0 || c.CodeNodeID > 1023 {
			return errors.New("CODE_NODE_ID must be in [0, 1023]")
		}
	case SchemeRandom:
		if c.CodeLength <= 0 {
			return errors.New("CODE_LENGTH must be positive")
		}
		if c.CodeMaxLength < c.CodeLength {
			c.CodeMaxLength = c.CodeLength
		}
	default:
		return errors.Errorf("unknown CODE_SCHEME %q", c.CodeScheme)
	}
	return nil
}

// Development reports whether the verbose logger should be used.
func (c *Config) Development() bool {
	return c.LogLevel == "debug" || c.AppEnv == "development"
}

func uniqueSymbols(s string) bool {
	if s == "" {
		return false
	}
	var seen [256]bool
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b > 127 || seen[b] {
			return false
		}
		seen[b] = true
	}
	return true
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parser keeps the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) fail(key, v string, err error) {
	if p.err == nil {
		p.err = errors.Wrapf(err, "invalid %s=%q", key, v)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
