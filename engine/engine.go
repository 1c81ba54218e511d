// Package engine orchestrates shorten and resolve over the allocator, the
// cache, the rate limiter and the click aggregator.
//
// Consistency rules:
//   - the store is written before the cache, and a failed store write leaves
//     no cache entry behind;
//   - a cache hit never touches the store;
//   - only shorten is rate limited.
package engine

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"shortlink/allocator"
	"shortlink/cache"
	"shortlink/links"
	"shortlink/ratelimit"
)

// Admitter decides whether a write may proceed.
type Admitter interface {
	Admit(id ratelimit.Identity) bool
}

// ClickRecorder takes click events off the critical path.
type ClickRecorder interface {
	Record(code, fingerprint string) bool
}

// Client is who is calling shorten.
type Client struct {
	Identity ratelimit.Identity
	OwnerID  string
}

type Engine struct {
	store     links.Store
	allocator *allocator.Allocator
	cache     *cache.Cache
	limiter   Admitter
	clicks    ClickRecorder
	log       *zap.Logger
}

func New(store links.Store, alloc *allocator.Allocator, c *cache.Cache, limiter Admitter, clicks ClickRecorder, log *zap.Logger) *Engine {
	return &Engine{
		store:     store,
		allocator: alloc,
		cache:     c,
		limiter:   limiter,
		clicks:    clicks,
		log:       log,
	}
}

// Shorten returns the canonical code for rawURL, creating it when needed.
// Only Code and OriginalURL are guaranteed to be set on a cache hit.
func (e *Engine) Shorten(ctx context.Context, rawURL string, client Client) (links.Record, error) {
	if e.limiter != nil && !e.limiter.Admit(client.Identity) {
		return links.Record{}, errors.Wrapf(links.ErrRateLimited, "identity %s", client.Identity.Key)
	}
	if err := links.ValidateURL(rawURL); err != nil {
		return links.Record{}, err
	}

	if code, negative, ok := e.cache.Get(cache.URLKey(rawURL)); ok && !negative {
		return links.Record{Code: code, OriginalURL: rawURL}, nil
	}

	rec, err := e.allocator.Allocate(ctx, rawURL, client.OwnerID)
	if err != nil {
		return links.Record{}, err
	}
	e.populate(rec.Code, rec.OriginalURL)
	return rec, nil
}

// Resolve returns the URL behind code and records a click for it.
func (e *Engine) Resolve(ctx context.Context, code, fingerprint string) (string, error) {
	if !e.allocator.ValidCode(code) {
		return "", errors.Wrapf(links.ErrNotFound, "malformed code %q", code)
	}

	key := cache.CodeKey(code)
	if url, negative, ok := e.cache.Get(key); ok {
		if negative {
			return "", errors.Wrapf(links.ErrNotFound, "code %q", code)
		}
		e.click(code, fingerprint)
		return url, nil
	}

	rec, err := e.store.FindByCode(ctx, code)
	if errors.Is(err, links.ErrNotFound) {
		e.cache.PutNegative(key)
		return "", errors.Wrapf(links.ErrNotFound, "code %q", code)
	}
	if err != nil {
		return "", err
	}

	e.populate(rec.Code, rec.OriginalURL)
	e.click(code, fingerprint)
	return rec.OriginalURL, nil
}

// Stats reads the record and its daily breakdown straight from the store.
func (e *Engine) Stats(ctx context.Context, code string) (links.Stats, error) {
	if !e.allocator.ValidCode(code) {
		return links.Stats{}, errors.Wrapf(links.ErrNotFound, "malformed code %q", code)
	}
	rec, err := e.store.FindByCode(ctx, code)
	if err != nil {
		return links.Stats{}, err
	}

	st := links.Stats{Record: rec}
	if ss, ok := e.store.(links.StatsStore); ok {
		days, err := ss.DailyClicks(ctx, code)
		if err != nil {
			return links.Stats{}, err
		}
		st.Daily = days
	}
	return st, nil
}

func (e *Engine) populate(code, url string) {
	e.cache.Put(cache.CodeKey(code), url)
	e.cache.Put(cache.URLKey(url), code)
}

func (e *Engine) click(code, fingerprint string) {
	if e.clicks == nil {
		return
	}
	e.clicks.Record(code, fingerprint)
}
