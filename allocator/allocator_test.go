package allocator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shortlink/db"
	"shortlink/links"
)

type scriptedMinter struct {
	mu    sync.Mutex
	codes []string
}

func (m *scriptedMinter) Mint() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return "", links.ErrAllocationExhausted
	}
	c := m.codes[0]
	if len(m.codes) > 1 {
		m.codes = m.codes[1:]
	}
	return c, nil
}

func (m *scriptedMinter) Valid(code string) bool { return code != "" }

// racingStore lets another writer win the url between the dedup check and
// the insert.
type racingStore struct {
	*db.MemoryStore
	once   sync.Once
	winner links.Record
}

func (r *racingStore) InsertUnique(ctx context.Context, rec links.Record) error {
	r.once.Do(func() {
		_ = r.MemoryStore.InsertUnique(ctx, r.winner)
	})
	return r.MemoryStore.InsertUnique(ctx, rec)
}

type brokenStore struct{ *db.MemoryStore }

func (brokenStore) FindByOriginalURL(context.Context, string) (links.Record, error) {
	return links.Record{}, links.ErrStoreUnavailable
}

func newSequence(t *testing.T) Minter {
	m, err := NewSequenceMinter(1, DefaultAlphabet, 11)
	require.NoError(t, err)
	return m
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("second call for the same url returns the same code", func(t *testing.T) {
		store := db.NewMemoryStore()
		a := New(store, newSequence(t), zaptest.NewLogger(t))

		first, err := a.Allocate(ctx, "http://example.com/a", "")
		require.NoError(t, err)
		second, err := a.Allocate(ctx, "http://example.com/a", "")
		require.NoError(t, err)

		assert.Equal(t, first.Code, second.Code)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("concurrent allocators converge on one code", func(t *testing.T) {
		store := db.NewMemoryStore()
		// separate allocators so the store constraint, not singleflight, decides
		allocators := []*Allocator{
			New(store, newSequence(t), zaptest.NewLogger(t), WithRetryDelay(time.Millisecond)),
			New(store, newSequence(t), zaptest.NewLogger(t), WithRetryDelay(time.Millisecond)),
		}

		const n = 32
		codes := make([]string, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec, err := allocators[i%2].Allocate(ctx, "http://example.com/race", "")
				assert.NoError(t, err)
				codes[i] = rec.Code
			}(i)
		}
		wg.Wait()

		for _, c := range codes {
			assert.Equal(t, codes[0], c)
		}
		assert.Equal(t, 1, store.Len())
	})

	t.Run("loser adopts the winner's code", func(t *testing.T) {
		store := &racingStore{
			MemoryStore: db.NewMemoryStore(),
			winner:      links.NewRecord("win", "http://example.com/a", "", a0()),
		}
		a := New(store, &scriptedMinter{codes: []string{"lose"}}, zaptest.NewLogger(t))

		rec, err := a.Allocate(ctx, "http://example.com/a", "")
		require.NoError(t, err)
		assert.Equal(t, "win", rec.Code)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("code collision mints again", func(t *testing.T) {
		store := db.NewMemoryStore()
		require.NoError(t, store.InsertUnique(ctx, links.NewRecord("taken", "http://example.com/x", "", a0())))
		a := New(store, &scriptedMinter{codes: []string{"taken", "fresh"}}, zaptest.NewLogger(t), WithRetryDelay(time.Millisecond))

		rec, err := a.Allocate(ctx, "http://example.com/y", "owner")
		require.NoError(t, err)
		assert.Equal(t, "fresh", rec.Code)
		assert.Equal(t, "owner", rec.OwnerID)
	})

	t.Run("persistent collisions surface as duplicate conflict", func(t *testing.T) {
		store := db.NewMemoryStore()
		require.NoError(t, store.InsertUnique(ctx, links.NewRecord("taken", "http://example.com/x", "", a0())))
		a := New(store, &scriptedMinter{codes: []string{"taken"}}, zaptest.NewLogger(t),
			WithMaxRetries(3), WithRetryDelay(time.Millisecond))

		_, err := a.Allocate(ctx, "http://example.com/y", "")
		assert.ErrorIs(t, err, links.ErrDuplicateConflict)
	})

	t.Run("exhausted code space is fatal", func(t *testing.T) {
		m, err := NewSequenceMinter(1, DefaultAlphabet, 3)
		require.NoError(t, err)
		a := New(db.NewMemoryStore(), m, zaptest.NewLogger(t))

		_, err = a.Allocate(ctx, "http://example.com/a", "")
		assert.ErrorIs(t, err, links.ErrAllocationExhausted)
	})

	t.Run("store failures propagate", func(t *testing.T) {
		a := New(brokenStore{db.NewMemoryStore()}, newSequence(t), zaptest.NewLogger(t))
		_, err := a.Allocate(ctx, "http://example.com/a", "")
		assert.ErrorIs(t, err, links.ErrStoreUnavailable)
	})
}

func TestMinters(t *testing.T) {
	t.Run("sequence codes are distinct and valid", func(t *testing.T) {
		m := newSequence(t)
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			c, err := m.Mint()
			require.NoError(t, err)
			assert.False(t, seen[c], "duplicate code %s", c)
			assert.True(t, m.Valid(c))
			seen[c] = true
		}
		assert.False(t, m.Valid("bad-code"))
		assert.False(t, m.Valid("0123456789ab"))
		assert.False(t, m.Valid(""))
	})

	t.Run("sequence needs 62 symbols", func(t *testing.T) {
		_, err := NewSequenceMinter(1, "abc", 11)
		assert.Error(t, err)
	})

	t.Run("random codes have the configured length", func(t *testing.T) {
		m, err := NewRandomMinter(DefaultAlphabet, 7)
		require.NoError(t, err)
		c, err := m.Mint()
		require.NoError(t, err)
		assert.Len(t, c, 7)
		assert.True(t, m.Valid(c))
		assert.False(t, m.Valid("abc"))
	})
}

func a0() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
