package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"shortlink/links"
)

// MemoryStore keeps everything in process. It enforces the same uniqueness
// rules as the SQL store and is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	byCode map[string]*links.Record
	byHash map[string]string
	daily  map[string]map[string]int64
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byCode: make(map[string]*links.Record),
		byHash: make(map[string]string),
		daily:  make(map[string]map[string]int64),
		now:    time.Now,
	}
}

func (m *MemoryStore) FindByOriginalURL(ctx context.Context, url string) (links.Record, error) {
	if err := ctx.Err(); err != nil {
		return links.Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.byHash[links.HashURL(url)]
	if !ok {
		return links.Record{}, links.ErrNotFound
	}
	return *m.byCode[code], nil
}

func (m *MemoryStore) FindByCode(ctx context.Context, code string) (links.Record, error) {
	if err := ctx.Err(); err != nil {
		return links.Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byCode[code]
	if !ok {
		return links.Record{}, links.ErrNotFound
	}
	return *rec, nil
}

func (m *MemoryStore) InsertUnique(ctx context.Context, rec links.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.URLHash == "" {
		rec.URLHash = links.HashURL(rec.OriginalURL)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	rec.ClickCount = 0

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHash[rec.URLHash]; ok {
		return links.ErrURLConflict
	}
	if _, ok := m.byCode[rec.Code]; ok {
		return links.ErrCodeConflict
	}
	m.byCode[rec.Code] = &rec
	m.byHash[rec.URLHash] = rec.Code
	return nil
}

func (m *MemoryStore) IncrementClicks(ctx context.Context, code string, delta int64) error {
	return m.IncrementClicksBatch(ctx, map[string]int64{code: delta})
}

func (m *MemoryStore) IncrementClicksBatch(ctx context.Context, deltas map[string]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	day := m.now().UTC().Format(dayLayout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for code, n := range deltas {
		rec, ok := m.byCode[code]
		if !ok || n <= 0 {
			continue
		}
		rec.ClickCount += n
		days := m.daily[code]
		if days == nil {
			days = make(map[string]int64)
			m.daily[code] = days
		}
		days[day] += n
	}
	return nil
}

func (m *MemoryStore) DailyClicks(ctx context.Context, code string) ([]links.DailyClicks, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]links.DailyClicks, 0, len(m.daily[code]))
	for day, n := range m.daily[code] {
		d, _ := time.Parse(dayLayout, day)
		out = append(out, links.DailyClicks{Day: d, Clicks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// Len reports the number of stored links.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byCode)
}
