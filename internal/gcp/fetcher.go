// Package gcp fetches the predefined IAM role catalog from the Google IAM
// API and turns it into a dataset file for the search services.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/dmitri-lerko/gcpiam-search/pkg/dataset"
	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

// DefaultBaseURL is the production IAM API root.
const DefaultBaseURL = "https://iam.googleapis.com"

// pageSize is the maximum the roles.list endpoint accepts.
const pageSize = 1000

// Options configures a Fetcher. Zero values fall back to defaults.
type Options struct {
	// BaseURL overrides the API root, mainly for tests.
	BaseURL string
	// AccessToken authenticates requests. Empty means unauthenticated.
	AccessToken string
	// RequestsPerSecond bounds the request rate. Defaults to 5.
	RequestsPerSecond float64
	// Timeout applies per HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Fetcher pages through the predefined role catalog.
type Fetcher struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewFetcher builds a Fetcher. With an access token the HTTP client is wrapped
// by the oauth2 transport so every request carries the bearer header.
func NewFetcher(ctx context.Context, opts Options) *Fetcher {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	var httpc *http.Client
	if opts.AccessToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.AccessToken, TokenType: "Bearer"})
		httpc = oauth2.NewClient(ctx, src)
	} else {
		httpc = &http.Client{}
	}
	httpc.Timeout = timeout

	return &Fetcher{
		baseURL: baseURL,
		httpc:   httpc,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)),
	}
}

// rolesPage mirrors one roles.list response.
type rolesPage struct {
	Roles []struct {
		Name                string   `json:"name"`
		Title               string   `json:"title"`
		Description         string   `json:"description"`
		IncludedPermissions []string `json:"includedPermissions"`
		Stage               string   `json:"stage"`
		Etag                string   `json:"etag"`
	} `json:"roles"`
	NextPageToken string `json:"nextPageToken"`
}

// FetchRoles pages through /v1/roles with view=FULL until the catalog is
// exhausted. Roles without a stage default to GA, matching console behavior.
func (f *Fetcher) FetchRoles(ctx context.Context) ([]dataset.RoleEntry, error) {
	var entries []dataset.RoleEntry
	pageToken := ""

	for page := 1; ; page++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("pageSize", fmt.Sprintf("%d", pageSize))
		params.Set("view", "FULL")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		endpoint := f.baseURL + "/v1/roles?" + params.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.httpc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch roles page %d: %w", page, err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, fmt.Errorf("fetch roles: HTTP %d: %s", resp.StatusCode, string(body))
		}

		var parsed rolesPage
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode roles page %d: %w", page, err)
		}

		for _, r := range parsed.Roles {
			stage := r.Stage
			if stage == "" {
				stage = iam.StageGA
			}
			entries = append(entries, dataset.RoleEntry{
				Name:                r.Name,
				Title:               r.Title,
				Description:         r.Description,
				Stage:               stage,
				IncludedPermissions: r.IncludedPermissions,
				Etag:                r.Etag,
			})
		}
		log.Debugf("Fetched roles page %d: %d roles (total %d)", page, len(parsed.Roles), len(entries))

		if parsed.NextPageToken == "" {
			return entries, nil
		}
		pageToken = parsed.NextPageToken
	}
}

// BuildDataset assembles a dataset file from fetched roles. Permission totals
// count distinct permission names across all roles.
func BuildDataset(roles []dataset.RoleEntry) *dataset.File {
	distinct := make(map[string]struct{})
	for _, role := range roles {
		for _, perm := range role.IncludedPermissions {
			distinct[perm] = struct{}{}
		}
	}
	return &dataset.File{
		Roles:       roles,
		Permissions: []dataset.PermissionEntry{},
		Metadata: dataset.Metadata{
			TotalRoles:       len(roles),
			TotalPermissions: len(distinct),
			LastUpdated:      time.Now().UTC().Format(time.RFC3339),
			Source:           "iam.googleapis.com",
		},
	}
}
