package feed

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	logx "schedbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceConditionalCache(t *testing.T) {
	t.Parallel()
	var (
		hits    atomic.Int32
		failing atomic.Bool
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("a,b\n"))
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/export?format=csv", t.TempDir(), time.Second, logx.Nop())
	ctx := context.Background()

	body, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))

	body, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body), "304 serves the cached body")

	failing.Store(true)
	body, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body), "non-OK falls back to cache")
	assert.EqualValues(t, 3, hits.Load())
}

func TestHTTPSourceWithoutCache(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, "", time.Second, logx.Nop()).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSheetsExportURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"https://docs.google.com/spreadsheets/d/abc/export?format=csv&gid=42",
		SheetsExportURL("abc", "42"))
	assert.Equal(t, "https://docs.google.com/...(redacted)", redactURL(SheetsExportURL("abc", "")))
}

func TestHTTPSourceRejectsOversizedSheet(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("name,handle\nAnn,ann\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	src := NewHTTPSource(srv.URL, dir, time.Second, logx.Nop())
	src.limit = 8
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSheetTooLarge)
	_, statErr := os.Stat(filepath.Join(src.cachePath(), "body.csv"))
	assert.True(t, os.IsNotExist(statErr), "a truncated body is never cached")

	src.limit = 20
	body, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "name,handle\nAnn,ann\n", string(body))
}

func TestHTTPSourceCorruptCacheMeta(t *testing.T) {
	t.Parallel()
	var conditional atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			conditional.Store(true)
		}
		_, _ = w.Write([]byte("a,b\n"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	src := NewHTTPSource(srv.URL, t.TempDir(), time.Second, logx.NewWriter(&buf, "debug"))
	require.NoError(t, os.MkdirAll(src.cachePath(), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(src.cachePath(), "meta.json"), []byte("{not json"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src.cachePath(), "body.csv"), []byte("old\n"), 0o600))

	body, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(body))
	assert.False(t, conditional.Load())
	assert.Contains(t, buf.String(), "sheet cache meta unreadable")

	m, err := loadMeta(src.cachePath())
	require.NoError(t, err, "a good fetch rewrites the meta file")
	assert.Equal(t, srv.URL, m.URL)
}
