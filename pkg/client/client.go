// Package client issues search queries to a remote IAM search backend. A
// client keeps at most one request in flight: starting a new query cancels
// the previous one, and completed results are cached per (query, mode) so
// repeated queries never touch the network.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

// Config holds construction parameters for a Client. Zero values fall back
// to defaults.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string
	// Timeout applies to each HTTP request. Defaults to 10s.
	Timeout time.Duration
	// Limit is the per-kind result count requested from the backend.
	// Defaults to 20.
	Limit int
	// Cache stores completed results. Defaults to an unbounded MapCache.
	Cache ResultCache
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is the remote query client. Safe for concurrent use, though the
// intended pattern is one logical caller issuing interleaved queries.
type Client struct {
	baseURL string
	limit   int
	httpc   *http.Client
	cache   ResultCache

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64 // bumped per request; stale completions compare against it
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMapCache()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 20
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limit:   limit,
		httpc:   httpc,
		cache:   cache,
	}
}

// searchPayload is the inner result shape. The backend either wraps it under
// "data" or returns it at the top level; both are accepted.
type searchPayload struct {
	Permissions []iam.ScoredPermission `json:"permissions"`
	Roles       []iam.ScoredRole       `json:"roles"`
}

type searchEnvelope struct {
	Data        *searchPayload         `json:"data"`
	Permissions []iam.ScoredPermission `json:"permissions"`
	Roles       []iam.ScoredRole       `json:"roles"`
}

// Search executes one query against the backend. The query must already be
// normalized (the session manager's ValidateQuery is the normalization
// point); the client normalizes nothing itself.
//
// Cache hits return immediately and never disturb an in-flight request. On a
// miss the prior in-flight request is canceled; the superseded caller sees
// empty results and a nil error, since cancellation is not a failure.
// Transport errors, non-2xx statuses and undecodable payloads propagate and
// are not cached.
func (c *Client) Search(ctx context.Context, query, mode string) (iam.SearchResults, error) {
	key := cacheKey(query, mode)
	if res, ok := c.cache.Get(key); ok {
		log.Debugf("Cache hit for %q (%s)", query, mode)
		return res, nil
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	res, err := c.doSearch(reqCtx, query, mode)

	c.mu.Lock()
	current := gen == c.gen
	if current {
		c.cancel = nil
	}
	c.mu.Unlock()
	cancel()

	if !current {
		// Superseded by a newer query. Whatever came back — result or
		// cancellation error — must neither reach the cache nor surface
		// as a failure.
		log.Debugf("Query %q (%s) superseded, discarding outcome", query, mode)
		return iam.EmptyResults(), nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			// Canceled without the parent being canceled: a race with a
			// newer query that bumped gen after we snapshotted it.
			return iam.EmptyResults(), nil
		}
		return iam.SearchResults{}, err
	}

	c.cache.Set(key, res)
	return res, nil
}

func (c *Client) doSearch(ctx context.Context, query, mode string) (iam.SearchResults, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("mode", mode)
	params.Set("limit", strconv.Itoa(c.limit))
	endpoint := c.baseURL + "/api/v1/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return iam.SearchResults{}, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return iam.SearchResults{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return iam.SearchResults{}, fmt.Errorf("search: HTTP %d from %s: %s", resp.StatusCode, endpoint, string(body))
	}

	var envelope searchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return iam.SearchResults{}, fmt.Errorf("decode search response: %w", err)
	}

	payload := searchPayload{Permissions: envelope.Permissions, Roles: envelope.Roles}
	if envelope.Data != nil {
		payload = *envelope.Data
	}
	// Missing fields degrade to empty sequences, not errors.
	res := iam.SearchResults{Permissions: payload.Permissions, Roles: payload.Roles}
	if res.Permissions == nil {
		res.Permissions = []iam.ScoredPermission{}
	}
	if res.Roles == nil {
		res.Roles = []iam.ScoredRole{}
	}
	return res, nil
}

// Health reports whether the backend liveness endpoint answers successfully.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		log.Debugf("Health check failed: %v", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// CancelInFlight aborts the outstanding request, if any. The superseded
// caller resolves with empty results.
func (c *Client) CancelInFlight() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.gen++
	}
}

// ClearCache drops all cached entries. In-flight requests are untouched.
func (c *Client) ClearCache() {
	c.cache.Clear()
}

func cacheKey(query, mode string) string {
	return mode + "|" + query
}
