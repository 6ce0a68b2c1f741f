// Package iam defines the record types shared by the match engine, the
// remote query client and the dataset loader.
//
// Records are created by the dataset loader and never mutated after
// indexing. Scored variants pair a record with a query-specific score in
// [0,1]; scores are never persisted.
package iam

import "strings"

// Role lifecycle stages as reported by the IAM API. The field is an open
// string in practice, but consumers only style these four.
const (
	StageGA         = "GA"
	StageBeta       = "BETA"
	StageAlpha      = "ALPHA"
	StageDeprecated = "DEPRECATED"
)

// PermissionRecord is an atomic grantable capability named
// service.resource.action.
type PermissionRecord struct {
	Name           string        `json:"name" msgpack:"name"`
	Service        string        `json:"service" msgpack:"service"`
	Resource       string        `json:"resource" msgpack:"resource"`
	Action         string        `json:"action" msgpack:"action"`
	GrantedByRoles []RoleSummary `json:"granted_by_roles" msgpack:"granted_by_roles"`
}

// RoleSummary is the brief role info attached to permission results.
type RoleSummary struct {
	Name  string `json:"name" msgpack:"name"`
	Title string `json:"title" msgpack:"title"`
	Stage string `json:"stage" msgpack:"stage"`
}

// RoleRecord is a named bundle of permissions with lifecycle metadata.
// SamplePermissions is informational and capped for display; the
// authoritative count is PermissionCount.
type RoleRecord struct {
	Name              string   `json:"name" msgpack:"name"`
	Title             string   `json:"title" msgpack:"title"`
	Description       string   `json:"description" msgpack:"description"`
	Stage             string   `json:"stage" msgpack:"stage"`
	PermissionCount   int      `json:"permission_count" msgpack:"permission_count"`
	SamplePermissions []string `json:"sample_permissions" msgpack:"sample_permissions"`
}

// ScoredPermission pairs a permission with its match score.
type ScoredPermission struct {
	PermissionRecord
	Score float64 `json:"score"`
}

// ScoredRole pairs a role with its match score.
type ScoredRole struct {
	RoleRecord
	Score float64 `json:"score"`
}

// SearchResults is the sole artifact handed to rendering consumers.
// Both slices are always non-nil.
type SearchResults struct {
	Permissions []ScoredPermission `json:"permissions"`
	Roles       []ScoredRole       `json:"roles"`
}

// EmptyResults returns a SearchResults with empty (non-nil) slices.
func EmptyResults() SearchResults {
	return SearchResults{
		Permissions: []ScoredPermission{},
		Roles:       []ScoredRole{},
	}
}

// SplitPermissionName splits a dotted permission name into its
// service/resource/action components. Missing components are empty strings.
func SplitPermissionName(name string) (service, resource, action string) {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) > 0 {
		service = parts[0]
	}
	if len(parts) > 1 {
		resource = parts[1]
	}
	if len(parts) > 2 {
		action = parts[2]
	}
	return service, resource, action
}
