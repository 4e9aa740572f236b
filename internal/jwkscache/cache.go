// Package jwkscache caches JWK Sets fetched from remote URIs.
//
// Entries live for a fixed time to live. Concurrent misses for the same URI
// share a single fetch and failed fetches are never cached, so the next miss
// tries again.
package jwkscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/luikyv/go-authority/internal/metrics"
	"github.com/luikyv/go-authority/internal/timeutil"
	"github.com/luikyv/go-authority/pkg/goidc"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultTimeout = 5 * time.Second
	// maxJWKSSize bounds the response body read from remote URIs.
	maxJWKSSize = 1 << 20
)

// Fetcher retrieves the JWK Set published at uri.
type Fetcher func(ctx context.Context, uri string) (*jose.JSONWebKeySet, error)

type entry struct {
	jwks      *jose.JSONWebKeySet
	expiresAt time.Time
}

type Cache struct {
	fetch   Fetcher
	ttl     time.Duration
	timeout time.Duration
	clock   timeutil.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithTimeout bounds every fetch.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.timeout = timeout
	}
}

func WithClock(clock timeutil.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(fetch Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetch:   fetch,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		clock:   timeutil.Now,
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the JWK Set published at uri, fetching it when it is not
// cached or the cached copy expired. Fetches that time out are reported
// with [goidc.ErrTemporarilyUnavailable].
func (c *Cache) Get(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
	if jwks, ok := c.cached(uri); ok {
		return jwks, nil
	}

	ch := c.group.DoChan(uri, func() (any, error) {
		if jwks, ok := c.cached(uri); ok {
			return jwks, nil
		}

		// The fetch is shared by every waiting caller, so it is not bound to
		// the context of the one that started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		jwks, err := c.fetch(fetchCtx, uri)
		c.metrics.JWKSFetched(err)
		if err != nil {
			c.logger.Debug("could not fetch the jwks", slog.String("uri", uri), slog.String("error", err.Error()))
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: fetching the jwks at %s: %w", goidc.ErrTemporarilyUnavailable, uri, err)
			}
			return nil, err
		}

		c.mu.Lock()
		c.entries[uri] = entry{jwks: jwks, expiresAt: c.clock().Add(c.ttl)}
		c.mu.Unlock()
		return jwks, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*jose.JSONWebKeySet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", goidc.ErrTemporarilyUnavailable, ctx.Err())
	}
}

// Invalidate drops the cached copy for uri, e.g. after a signature failed to
// verify with a key id that isn't in the cached set.
func (c *Cache) Invalidate(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, uri)
}

func (c *Cache) cached(uri string) (*jose.JSONWebKeySet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[uri]
	if !ok || !c.clock().Before(e.expiresAt) {
		return nil, false
	}
	return e.jwks, true
}

// HTTPFetcher fetches JWK Sets with client. Only public keys go-jose can
// represent are kept.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	limited := limitedClient{client: client}

	return func(ctx context.Context, uri string) (*jose.JSONWebKeySet, error) {
		set, err := jwk.Fetch(ctx, uri, jwk.WithHTTPClient(limited))
		if err != nil {
			return nil, fmt.Errorf("could not fetch the jwks: %w", err)
		}
		return publicKeys(set), nil
	}
}

func publicKeys(set jwk.Set) *jose.JSONWebKeySet {
	jwks := &jose.JSONWebKeySet{}
	for i := range set.Len() {
		key, ok := set.Key(i)
		if !ok {
			continue
		}

		raw, err := json.Marshal(key)
		if err != nil {
			continue
		}

		var k jose.JSONWebKey
		if err := json.Unmarshal(raw, &k); err != nil || !k.IsPublic() {
			continue
		}
		jwks.Keys = append(jwks.Keys, k)
	}
	return jwks
}

// limitedClient rejects non 200 responses and bounds the body read from
// remote URIs.
type limitedClient struct {
	client *http.Client
}

func (c limitedClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetching the jwks resulted in %d", resp.StatusCode)
	}

	resp.Body = struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxJWKSSize), resp.Body}
	return resp, nil
}
