package gcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRolesPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/roles", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("pageSize"))
		assert.Equal(t, "FULL", r.URL.Query().Get("view"))

		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"roles":[{"name":"roles/viewer","title":"Viewer","stage":"GA","includedPermissions":["storage.objects.get"]}],"nextPageToken":"p2"}`))
			return
		}
		assert.Equal(t, "p2", r.URL.Query().Get("pageToken"))
		w.Write([]byte(`{"roles":[{"name":"roles/editor","title":"Editor","includedPermissions":["storage.objects.create"]}]}`))
	}))
	defer srv.Close()

	f := NewFetcher(context.Background(), Options{BaseURL: srv.URL, RequestsPerSecond: 1000})
	roles, err := f.FetchRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "roles/viewer", roles[0].Name)
	assert.Equal(t, "roles/editor", roles[1].Name)
	// missing stage defaults to GA
	assert.Equal(t, "GA", roles[1].Stage)
}

func TestFetchRolesSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"roles":[]}`))
	}))
	defer srv.Close()

	f := NewFetcher(context.Background(), Options{BaseURL: srv.URL, AccessToken: "secret", RequestsPerSecond: 1000})
	_, err := f.FetchRoles(context.Background())
	require.NoError(t, err)
}

func TestFetchRolesSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(context.Background(), Options{BaseURL: srv.URL, RequestsPerSecond: 1000})
	_, err := f.FetchRoles(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestBuildDataset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"roles":[
			{"name":"roles/a","title":"A","stage":"GA","includedPermissions":["x.y.z","x.y.w"]},
			{"name":"roles/b","title":"B","stage":"BETA","includedPermissions":["x.y.z"]}
		]}`))
	}))
	defer srv.Close()

	f := NewFetcher(context.Background(), Options{BaseURL: srv.URL, RequestsPerSecond: 1000})
	roles, err := f.FetchRoles(context.Background())
	require.NoError(t, err)

	file := BuildDataset(roles)
	assert.Equal(t, 2, file.Metadata.TotalRoles)
	assert.Equal(t, 2, file.Metadata.TotalPermissions, "distinct permissions across roles")
	assert.NotEmpty(t, file.Metadata.LastUpdated)

	// dataset files round-trip through JSON with snake_case keys
	raw, err := json.Marshal(file)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"included_permissions"`)
	assert.Contains(t, string(raw), `"total_roles"`)
}
