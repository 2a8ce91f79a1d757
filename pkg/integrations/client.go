package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matzehuels/dbtlineage/pkg/cache"
	"github.com/matzehuels/dbtlineage/pkg/observability"
)

const httpTimeout = 10 * time.Second

// Sentinel errors, shared with [cache] so callers can match either.
var (
	ErrNotFound = cache.ErrNotFound
	ErrNetwork  = cache.ErrNetwork
)

// NewHTTPClient creates an HTTP client with the standard request timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// Client is a JSON-over-HTTP client with response caching, retries, and
// common request headers.
type Client struct {
	http      *http.Client
	cache     cache.Cache
	keyer     cache.Keyer
	namespace string
	ttl       time.Duration
	headers   map[string]string
	backoff   cache.Backoff
}

// NewClient creates a Client. Cached values are stored under namespace with
// the given ttl. Headers are applied to every request; nil is allowed.
// A nil cache disables caching.
func NewClient(c cache.Cache, namespace string, ttl time.Duration, headers map[string]string) *Client {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &Client{
		http:      NewHTTPClient(),
		cache:     c,
		keyer:     cache.NewDefaultKeyer(),
		namespace: namespace,
		ttl:       ttl,
		headers:   headers,
		backoff:   cache.DefaultBackoff,
	}
}

// WithBackoff replaces the retry policy used by [Client.Cached].
func (c *Client) WithBackoff(b cache.Backoff) *Client {
	c.backoff = b
	return c
}

// Cached decodes the cached value for key into v, or runs fetch and caches
// the result. fetch must populate v. With refresh the lookup is skipped but
// the fresh value is still stored.
func (c *Client) Cached(ctx context.Context, key string, refresh bool, v any, fetch func() error) error {
	hooks := observability.Cache()
	k := c.keyer.HTTPKey(c.namespace, key)

	if !refresh {
		data, ok, err := c.cache.Get(ctx, k)
		if err == nil && ok && json.Unmarshal(data, v) == nil {
			hooks.OnCacheHit(ctx, string(cache.KeyTypeHTTP))
			return nil
		}
		hooks.OnCacheMiss(ctx, string(cache.KeyTypeHTTP))
	}

	if err := c.backoff.Retry(ctx, fetch); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := c.cache.Set(ctx, k, data, c.ttl); err == nil {
		hooks.OnCacheSet(ctx, string(cache.KeyTypeHTTP), len(data))
	}
	return nil
}

// Get performs a GET request and JSON-decodes the response into v.
func (c *Client) Get(ctx context.Context, rawURL string, v any) error {
	return c.GetWithHeaders(ctx, rawURL, nil, v)
}

// GetWithHeaders is [Client.Get] with extra headers. Request headers
// override the client defaults.
func (c *Client) GetWithHeaders(ctx context.Context, rawURL string, headers map[string]string, v any) error {
	body, err := c.doRequest(ctx, rawURL, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// GetText performs a GET request and returns the body as a string.
func (c *Client) GetText(ctx context.Context, rawURL string) (string, error) {
	body, err := c.doRequest(ctx, rawURL, nil)
	if err != nil {
		return "", err
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	return string(data), err
}

func (c *Client) doRequest(ctx context.Context, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := splitURL(req.URL)
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		return nil, cache.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func splitURL(u *url.URL) (host, path string) {
	if u == nil {
		return "", ""
	}
	return u.Host, u.Path
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests, code >= 500:
		return cache.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}
