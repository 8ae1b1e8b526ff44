package cacheproxy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"misl/internal/model"

	"github.com/stretchr/testify/require"
)

type upstream struct {
	hits     atomic.Int32
	blocking atomic.Bool
	block    chan struct{}
	methods  chan string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := u.hits.Add(1)
	if u.methods != nil {
		u.methods <- r.Method
	}
	if u.blocking.Load() {
		<-u.block
	}
	if r.Method != http.MethodGet {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"v":%d,"code":%q}`, n, r.Header.Get(model.HeaderAccessCode))
}

func newProxy(t *testing.T, target string, timeout time.Duration) (*Proxy, *SQLiteCache) {
	t.Helper()
	cache, err := OpenSQLiteCache(context.Background(), filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	p, err := New(Config{
		Upstream: target,
		Timeout:  timeout,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, cache)
	require.NoError(t, err)
	return p, cache
}

func get(p http.Handler, code string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set(model.HeaderAccessCode, code)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)
	return rec
}

func keyFor(code string) string {
	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set(model.HeaderAccessCode, code)
	return cacheKey(req)
}

func TestProxy_MissFetchesAndStores(t *testing.T) {
	up := &upstream{}
	ts := httptest.NewServer(up)
	defer ts.Close()
	p, cache := newProxy(t, ts.URL, time.Second)

	rec := get(p, "abcd")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(model.HeaderFromCache))
	require.JSONEq(t, `{"v":1,"code":"abcd"}`, rec.Body.String())

	stored, ok, err := cache.Get(context.Background(), keyFor("abcd"))
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"v":1,"code":"abcd"}`, string(stored.Body))
}

func TestProxy_FreshWinsBeforeTimeout(t *testing.T) {
	up := &upstream{}
	ts := httptest.NewServer(up)
	defer ts.Close()
	p, _ := newProxy(t, ts.URL, 2*time.Second)

	require.Equal(t, http.StatusOK, get(p, "abcd").Code)
	rec := get(p, "abcd")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get(model.HeaderFromCache))
	require.JSONEq(t, `{"v":2,"code":"abcd"}`, rec.Body.String())
}

func TestProxy_TimeoutServesCachedAndRefreshesInBackground(t *testing.T) {
	up := &upstream{block: make(chan struct{})}
	ts := httptest.NewServer(up)
	defer ts.Close()
	p, cache := newProxy(t, ts.URL, 50*time.Millisecond)

	require.Equal(t, http.StatusOK, get(p, "abcd").Code)

	up.blocking.Store(true)
	rec := get(p, "abcd")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get(model.HeaderFromCache))
	require.JSONEq(t, `{"v":1,"code":"abcd"}`, rec.Body.String())

	close(up.block)
	require.Eventually(t, func() bool {
		stored, ok, err := cache.Get(context.Background(), keyFor("abcd"))
		return err == nil && ok && strings.Contains(string(stored.Body), `"v":2`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProxy_UpstreamDownFallsBackToCache(t *testing.T) {
	up := &upstream{}
	ts := httptest.NewServer(up)
	p, _ := newProxy(t, ts.URL, 2*time.Second)

	require.Equal(t, http.StatusOK, get(p, "abcd").Code)
	ts.Close()

	start := time.Now()
	rec := get(p, "abcd")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get(model.HeaderFromCache))
	require.Less(t, time.Since(start), 2*time.Second)

	rec = get(p, "other1")
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProxy_KeysAreScopedByAccessCode(t *testing.T) {
	up := &upstream{}
	ts := httptest.NewServer(up)
	defer ts.Close()
	p, cache := newProxy(t, ts.URL, time.Second)

	require.Equal(t, http.StatusOK, get(p, "aaaa").Code)
	_, ok, err := cache.Get(context.Background(), keyFor("bbbb"))
	require.NoError(t, err)
	require.False(t, ok)
	require.NotEqual(t, keyFor("aaaa"), keyFor("bbbb"))
	require.NotContains(t, keyFor("aaaa"), "aaaa")
}

func TestProxy_WritesBypassCache(t *testing.T) {
	up := &upstream{methods: make(chan string, 4)}
	ts := httptest.NewServer(up)
	defer ts.Close()
	p, cache := newProxy(t, ts.URL, time.Second)

	req := httptest.NewRequest(http.MethodPost, "/list/active/0", strings.NewReader(`{"category":"a","name":"b"}`))
	req.Header.Set(model.HeaderAccessCode, "abcd")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, http.MethodPost, <-up.methods)
	require.Empty(t, rec.Header().Get(model.HeaderFromCache))

	_, ok, err := cache.Get(context.Background(), http.MethodPost+" /list/active/0")
	require.NoError(t, err)
	require.False(t, ok)
}
