package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/hoist/pkg/cache"
	"github.com/matzehuels/hoist/pkg/registry"
	"github.com/matzehuels/hoist/pkg/source"
)

// countingHandler wraps a handler and counts requests that reach it.
type countingHandler struct {
	http.Handler
	requests atomic.Int64
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.requests.Add(1)
	h.Handler.ServeHTTP(w, r)
}

func TestClientIndex(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "serde", "1.0.0", serdeManifest("1.0.0"))
	publish(t, root, "serde", "1.2.0", serdeManifest("1.2.0"))
	srv := testServer(t, root)

	c := registry.NewClient(srv.URL, registry.ClientOptions{})

	idx, err := c.Index(context.Background(), "serde")
	require.NoError(t, err)
	assert.Equal(t, "serde", idx.Name)
	require.Len(t, idx.Versions, 2)
	assert.Equal(t, "1.0.0", idx.Versions[0].Version)
	assert.Equal(t, "1.2.0", idx.Versions[1].Version)
}

func TestClientIndexNotFound(t *testing.T) {
	srv := testServer(t, t.TempDir())
	c := registry.NewClient(srv.URL, registry.ClientOptions{})

	_, err := c.Index(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestClientManifest(t *testing.T) {
	root := t.TempDir()
	published := publish(t, root, "serde", "1.0.0", serdeManifest("1.0.0"))
	srv := testServer(t, root)

	c := registry.NewClient(srv.URL, registry.ClientOptions{})

	data, err := c.Manifest(context.Background(), "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, published, data)
	assert.Equal(t, source.ChecksumOf(published), source.ChecksumOf(data))

	_, err = c.Manifest(context.Background(), "serde", "9.9.9")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestClientCachesResponses(t *testing.T) {
	root := t.TempDir()
	publish(t, root, "serde", "1.0.0", serdeManifest("1.0.0"))

	counting := &countingHandler{Handler: registry.NewServer(root, registry.ServerOptions{}).Handler()}
	srv := httptest.NewServer(counting)
	t.Cleanup(srv.Close)

	backend, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	c := registry.NewClient(srv.URL, registry.ClientOptions{Cache: backend, TTL: time.Hour})

	// Index: second call within TTL is served from cache
	_, err = c.Index(context.Background(), "serde")
	require.NoError(t, err)
	_, err = c.Index(context.Background(), "serde")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counting.requests.Load())

	// Manifest: immutable, cached without expiry
	_, err = c.Manifest(context.Background(), "serde", "1.0.0")
	require.NoError(t, err)
	_, err = c.Manifest(context.Background(), "serde", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, int64(2), counting.requests.Load())
}

func TestClientNonRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := registry.NewClient(srv.URL, registry.ClientOptions{})

	// 403 is terminal: no retries, mapped to a network error
	start := time.Now()
	_, err := c.Index(context.Background(), "serde")
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrNetwork)
	assert.Less(t, time.Since(start), time.Second)
}
