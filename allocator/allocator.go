// Package allocator mints one canonical code per URL. Concurrent requests for
// the same URL converge on a single winner: in process through singleflight,
// across processes through the store's uniqueness constraint on the URL hash.
package allocator

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"shortlink/links"
	"shortlink/metrics"
)

type Allocator struct {
	store      links.Store
	minter     Minter
	log        *zap.Logger
	maxRetries uint
	delay      time.Duration
	now        func() time.Time
	group      singleflight.Group
}

type Option func(*Allocator)

func WithMaxRetries(n uint) Option {
	return func(a *Allocator) { a.maxRetries = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(a *Allocator) { a.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(a *Allocator) { a.now = now }
}

func New(store links.Store, minter Minter, log *zap.Logger, opts ...Option) *Allocator {
	a := &Allocator{
		store:      store,
		minter:     minter,
		log:        log,
		maxRetries: 5,
		delay:      10 * time.Millisecond,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxRetries == 0 {
		a.maxRetries = 1
	}
	return a
}

// ValidCode reports whether code has the shape of a code this allocator mints.
func (a *Allocator) ValidCode(code string) bool {
	return a.minter.Valid(code)
}

// Allocate returns the canonical record for url, creating it if needed. A
// record is only returned once it is durably stored.
func (a *Allocator) Allocate(ctx context.Context, url, ownerID string) (links.Record, error) {
	// the shared flight must outlive any single caller; each store round
	// trip is still bounded by the store timeout
	flightCtx := context.WithoutCancel(ctx)
	ch := a.group.DoChan(links.HashURL(url), func() (interface{}, error) {
		return a.allocate(flightCtx, url, ownerID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return links.Record{}, res.Err
		}
		return res.Val.(links.Record), nil
	case <-ctx.Done():
		return links.Record{}, ctx.Err()
	}
}

func (a *Allocator) allocate(ctx context.Context, url, ownerID string) (links.Record, error) {
	var (
		rec     links.Record
		outcome string
		fatal   error
	)

	operation := func() error {
		existing, err := a.store.FindByOriginalURL(ctx, url)
		if err == nil {
			rec, outcome = existing, "deduped"
			return nil
		}
		if !errors.Is(err, links.ErrNotFound) {
			fatal = err
			return retry.Unrecoverable(err)
		}

		code, err := a.minter.Mint()
		if err != nil {
			fatal = err
			return retry.Unrecoverable(err)
		}

		candidate := links.NewRecord(code, url, ownerID, a.now())
		err = a.store.InsertUnique(ctx, candidate)
		switch {
		case err == nil:
			rec, outcome = candidate, "created"
			return nil

		case errors.Is(err, links.ErrURLConflict):
			// lost the race, adopt the winner
			winner, ferr := a.store.FindByOriginalURL(ctx, url)
			if ferr == nil {
				rec, outcome = winner, "raced"
				return nil
			}
			if errors.Is(ferr, links.ErrNotFound) {
				return err
			}
			fatal = ferr
			return retry.Unrecoverable(ferr)

		case errors.Is(err, links.ErrCodeConflict):
			return err

		default:
			fatal = err
			return retry.Unrecoverable(err)
		}
	}

	err := retry.Do(
		operation,
		retry.Attempts(a.maxRetries),
		retry.Delay(a.delay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			a.log.Warn("retrying code allocation", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if fatal != nil {
		metrics.Allocations.WithLabelValues("failed").Inc()
		return links.Record{}, fatal
	}
	if err != nil {
		metrics.Allocations.WithLabelValues("failed").Inc()
		if errors.Is(err, links.ErrURLConflict) || errors.Is(err, links.ErrCodeConflict) {
			return links.Record{}, errors.Wrapf(links.ErrDuplicateConflict, "after %d attempts: %v", a.maxRetries, err)
		}
		return links.Record{}, err
	}

	metrics.Allocations.WithLabelValues(outcome).Inc()
	if outcome != "deduped" {
		a.log.Debug("allocated code", zap.String("code", rec.Code), zap.String("outcome", outcome))
	}
	return rec, nil
}
