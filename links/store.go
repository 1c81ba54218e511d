package links

import "context"

// Store is the durable, authoritative mapping. Implementations must enforce
// uniqueness on both the code and the URL hash and report a violation as
// ErrCodeConflict or ErrURLConflict. Lookups of absent rows return ErrNotFound.
type Store interface {
	FindByOriginalURL(ctx context.Context, url string) (Record, error)
	FindByCode(ctx context.Context, code string) (Record, error)
	InsertUnique(ctx context.Context, rec Record) error
	IncrementClicks(ctx context.Context, code string, delta int64) error
}

// BatchIncrementer applies one increment per code atomically.
type BatchIncrementer interface {
	IncrementClicksBatch(ctx context.Context, deltas map[string]int64) error
}

// StatsStore exposes the per-day click breakdown.
type StatsStore interface {
	DailyClicks(ctx context.Context, code string) ([]DailyClicks, error)
}
