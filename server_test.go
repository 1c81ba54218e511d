package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shortlink/allocator"
	"shortlink/config"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseHost:            "https://sho.rt",
		DatabasePath:        ":memory:",
		CacheCapacity:       128,
		CacheShards:         4,
		CacheTTL:            time.Hour,
		CacheNegativeTTL:    time.Second,
		RateAnonCapacity:    10,
		RateAnonRefill:      1,
		RateAuthCapacity:    100,
		RateAuthRefill:      10,
		RateIdleFactor:      3,
		ClickFlushInterval:  time.Hour,
		ClickFlushThreshold: 100,
		ClickBuffer:         100,
		CodeScheme:          config.SchemeSequence,
		CodeAlphabet:        allocator.DefaultAlphabet,
		CodeLength:          7,
		CodeMaxLength:       11,
		CodeNodeID:          1,
		AllocMaxRetries:     5,
		StoreTimeout:        time.Second,
	}
}

func TestServerRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	a.clicks.Start()
	defer a.clicks.Stop()

	srv := NewServer(a, zaptest.NewLogger(t), testConfig())

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		srv.E.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodPost, "/api/v1/links", `{"url":"https://example.com/page"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(http.MethodGet, "/"+created.Code, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/page", rec.Header().Get("Location"))

	require.NoError(t, a.clicks.Flush(ctx))
	rec = do(http.MethodGet, "/api/v1/links/"+created.Code+"/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shortlink_cache_lookups_total")
}

func TestNewMinter(t *testing.T) {
	cfg := testConfig()
	m, err := newMinter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &allocator.SequenceMinter{}, m)

	cfg.CodeScheme = config.SchemeRandom
	m, err = newMinter(cfg)
	require.NoError(t, err)
	code, err := m.Mint()
	require.NoError(t, err)
	assert.Len(t, code, 7)
}
