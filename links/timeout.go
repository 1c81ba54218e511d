package links

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// WithTimeout bounds every round trip to s by d. A call that runs out of time
// fails with ErrStoreUnavailable instead of hanging the caller.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timedStore{s: s, d: d}
}

type timedStore struct {
	s Store
	d time.Duration
}

func (t *timedStore) FindByOriginalURL(ctx context.Context, url string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	rec, err := t.s.FindByOriginalURL(ctx, url)
	return rec, deadline(ctx, err)
}

func (t *timedStore) FindByCode(ctx context.Context, code string) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	rec, err := t.s.FindByCode(ctx, code)
	return rec, deadline(ctx, err)
}

func (t *timedStore) InsertUnique(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return deadline(ctx, t.s.InsertUnique(ctx, rec))
}

func (t *timedStore) IncrementClicks(ctx context.Context, code string, delta int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return deadline(ctx, t.s.IncrementClicks(ctx, code, delta))
}

func (t *timedStore) IncrementClicksBatch(ctx context.Context, deltas map[string]int64) error {
	b, ok := t.s.(BatchIncrementer)
	if !ok {
		for code, n := range deltas {
			if err := t.IncrementClicks(ctx, code, n); err != nil {
				return err
			}
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return deadline(ctx, b.IncrementClicksBatch(ctx, deltas))
}

func (t *timedStore) DailyClicks(ctx context.Context, code string) ([]DailyClicks, error) {
	ss, ok := t.s.(StatsStore)
	if !ok {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	days, err := ss.DailyClicks(ctx, code)
	return days, deadline(ctx, err)
}

func deadline(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrURLConflict) || errors.Is(err, ErrCodeConflict) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(ErrStoreUnavailable, err.Error())
	}
	return err
}
