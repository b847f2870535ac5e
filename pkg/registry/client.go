package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matzehuels/hoist/pkg/buildinfo"
	"github.com/matzehuels/hoist/pkg/cache"
	"github.com/matzehuels/hoist/pkg/observability"
)

const httpTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when a package or version doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// Client fetches indexes and manifests from a registry server.
// Responses are cached through the configured backend; transient
// failures retry with exponential backoff. Manifests are immutable
// once published and cache forever; indexes honor [ClientOptions.TTL].
//
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	backend cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	headers map[string]string
}

// ClientOptions configures a Client.
type ClientOptions struct {
	// Cache is the response cache backend. Nil disables caching.
	Cache cache.Cache

	// Keyer generates cache keys. Nil uses the default keyer.
	Keyer cache.Keyer

	// TTL bounds how long index responses are reused. Zero means
	// indexes never expire, which is only sensible against fixture
	// registries.
	TTL time.Duration

	// HTTPClient overrides the HTTP client, mainly for tests.
	HTTPClient *http.Client
}

// WithDefaults fills unset options with production defaults.
func (o ClientOptions) WithDefaults() ClientOptions {
	if o.Cache == nil {
		o.Cache = cache.NewNullCache()
	}
	if o.Keyer == nil {
		o.Keyer = cache.NewDefaultKeyer()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: httpTimeout}
	}
	return o
}

// NewClient creates a client for the registry at baseURL.
func NewClient(baseURL string, opts ClientOptions) *Client {
	opts = opts.WithDefaults()
	return &Client{
		baseURL: baseURL,
		http:    opts.HTTPClient,
		backend: opts.Cache,
		keyer:   opts.Keyer,
		ttl:     opts.TTL,
		headers: map[string]string{
			"User-Agent": "hoist/" + buildinfo.Version,
		},
	}
}

// Index fetches the version index of a package.
// Returns [ErrNotFound] if the package is not published.
func (c *Client) Index(ctx context.Context, name string) (*Index, error) {
	key := c.keyer.IndexKey(c.baseURL, name)

	var idx Index
	err := c.cached(ctx, "index", key, c.ttl, &idx, func() ([]byte, error) {
		return c.get(ctx, fmt.Sprintf("%s/api/v1/index/%s", c.baseURL, name))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: package %s", ErrNotFound, name)
		}
		return nil, err
	}
	sortIndex(&idx)
	return &idx, nil
}

// Manifest fetches the raw manifest bytes of one published version.
// Returns [ErrNotFound] if the version is not published.
func (c *Client) Manifest(ctx context.Context, name, version string) ([]byte, error) {
	key := c.keyer.ManifestKey(c.baseURL, name, version)

	if data, hit, err := c.backend.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "manifest")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "manifest")

	var data []byte
	err := cache.RetryWithBackoff(ctx, func() error {
		var ferr error
		data, ferr = c.get(ctx, fmt.Sprintf("%s/api/v1/manifests/%s/%s", c.baseURL, name, version))
		return ferr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s v%s", ErrNotFound, name, version)
		}
		return nil, err
	}

	_ = c.backend.Set(ctx, key, data, 0)
	observability.Cache().OnCacheSet(ctx, "manifest", len(data))
	return data, nil
}

// cached retrieves a JSON value from cache or fetches, decodes, and
// stores it.
func (c *Client) cached(ctx context.Context, keyType, key string, ttl time.Duration, v any, fetch func() ([]byte, error)) error {
	if data, hit, err := c.backend.Get(ctx, key); err == nil && hit {
		if err := json.Unmarshal(data, v); err == nil {
			observability.Cache().OnCacheHit(ctx, keyType)
			return nil
		}
		_ = c.backend.Delete(ctx, key)
	}
	observability.Cache().OnCacheMiss(ctx, keyType)

	var body []byte
	err := cache.RetryWithBackoff(ctx, func() error {
		var ferr error
		body, ferr = fetch()
		return ferr
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	_ = c.backend.Set(ctx, key, body, ttl)
	observability.Cache().OnCacheSet(ctx, keyType, len(body))
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	observability.HTTP().OnRequest(ctx, req.Method, req.URL.Host, req.URL.Path)
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, req.Method, req.URL.Host, req.URL.Path, err)
		return nil, cache.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
