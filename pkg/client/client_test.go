package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

const wrappedBody = `{"success":true,"data":{"permissions":[{"name":"compute.instances.list","service":"compute","resource":"instances","action":"list","score":0.9,"granted_by_roles":[{"name":"roles/viewer","title":"Viewer","stage":"GA"}]}],"roles":[]}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL}), srv
}

func TestSearchParsesWrappedEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "x", r.URL.Query().Get("q"))
		assert.Equal(t, "fuzzy", r.URL.Query().Get("mode"))
		w.Write([]byte(wrappedBody))
	})

	res, err := c.Search(context.Background(), "x", "fuzzy")
	require.NoError(t, err)
	require.Len(t, res.Permissions, 1)
	assert.Equal(t, "compute.instances.list", res.Permissions[0].Name)
	assert.Equal(t, 0.9, res.Permissions[0].Score)
	require.Len(t, res.Permissions[0].GrantedByRoles, 1)
	assert.Equal(t, "roles/viewer", res.Permissions[0].GrantedByRoles[0].Name)
	assert.NotNil(t, res.Roles)
}

func TestSearchParsesTopLevelEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"permissions":[{"name":"storage.objects.get","score":0.5}],"roles":[{"name":"roles/viewer","title":"Viewer","score":0.8}]}`))
	})

	res, err := c.Search(context.Background(), "x", "prefix")
	require.NoError(t, err)
	require.Len(t, res.Permissions, 1)
	require.Len(t, res.Roles, 1)
	assert.Equal(t, "roles/viewer", res.Roles[0].Name)
}

func TestSearchDefaultsMissingFieldsToEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})

	res, err := c.Search(context.Background(), "x", "exact")
	require.NoError(t, err)
	assert.NotNil(t, res.Permissions)
	assert.NotNil(t, res.Roles)
	assert.Empty(t, res.Permissions)
	assert.Empty(t, res.Roles)
}

func TestSearchCachesCompletedResults(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(wrappedBody))
	})

	first, err := c.Search(context.Background(), "x", "fuzzy")
	require.NoError(t, err)
	second, err := c.Search(context.Background(), "x", "fuzzy")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load(), "second call must be served from cache")
	assert.Equal(t, first, second)

	// distinct mode is a distinct cache key
	_, err = c.Search(context.Background(), "x", "prefix")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	c.ClearCache()
	_, err = c.Search(context.Background(), "x", "fuzzy")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestSearchErrorsAreNotCached(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(wrappedBody))
	})

	_, err := c.Search(context.Background(), "x", "fuzzy")
	require.Error(t, err)

	// the failure was not cached; the retry goes back to the network
	res, err := c.Search(context.Background(), "x", "fuzzy")
	require.NoError(t, err)
	assert.Len(t, res.Permissions, 1)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSearchMalformedPayload(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := c.Search(context.Background(), "x", "fuzzy")
	require.Error(t, err)
}

func TestNewQuerySupersedesInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "a" {
			select {
			case <-release:
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte(wrappedBody))
	})

	type outcome struct {
		res iam.SearchResults
		err error
	}
	firstDone := make(chan outcome, 1)
	go func() {
		res, err := c.Search(context.Background(), "a", "fuzzy")
		firstDone <- outcome{res, err}
	}()

	// let the first request reach the server before superseding it
	time.Sleep(50 * time.Millisecond)

	res, err := c.Search(context.Background(), "b", "fuzzy")
	require.NoError(t, err)
	assert.Len(t, res.Permissions, 1)

	// unblock the first handler in case cancellation did not reach it
	close(release)

	first := <-firstDone
	require.NoError(t, first.err, "a superseded request is not an error")
	assert.Empty(t, first.res.Permissions, "a superseded request resolves as empty results")
	assert.Empty(t, first.res.Roles)

	// the superseded query never reached the cache
	_, ok := c.cache.Get(cacheKey("a", "fuzzy"))
	assert.False(t, ok, "canceled request must not populate the cache")
}

func TestHealth(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/health" {
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		http.NotFound(w, r)
	})
	assert.True(t, c.Health(context.Background()))

	down := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	assert.False(t, down.Health(context.Background()))
}
