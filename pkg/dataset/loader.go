// Package dataset loads IAM role/permission datasets and turns them into the
// record sets the match engine indexes. The canonical input is the
// iam-data.json file produced by the fetch command; a msgpack snapshot of
// the derived records is supported for faster startup.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

// Caps applied while deriving records. Sample permissions and role summaries
// are informational display sequences, not authoritative listings.
const (
	maxSamplePermissions = 5
	maxGrantedByRoles    = 5
)

// File mirrors the iam-data.json layout.
type File struct {
	Roles       []RoleEntry       `json:"roles"`
	Permissions []PermissionEntry `json:"permissions"`
	Metadata    Metadata          `json:"metadata"`
}

// RoleEntry is one predefined role as fetched from the IAM API.
type RoleEntry struct {
	Name                string   `json:"name"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Stage               string   `json:"stage"`
	IncludedPermissions []string `json:"included_permissions"`
	Etag                string   `json:"etag,omitempty"`
}

// PermissionEntry lists a permission that may not be granted by any role.
// Only name and service are consumed; the rest is derived from the name.
type PermissionEntry struct {
	Name    string `json:"name"`
	Service string `json:"service"`
}

// Metadata describes the dataset provenance.
type Metadata struct {
	TotalRoles       int    `json:"total_roles"`
	TotalPermissions int    `json:"total_permissions"`
	LastUpdated      string `json:"last_updated,omitempty"`
	Source           string `json:"source,omitempty"`
}

// Load reads and parses an iam-data.json file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	log.Debugf("Loaded dataset: %d roles, %d permissions listed", len(f.Roles), len(f.Permissions))
	return &f, nil
}

// Build derives the complete record sets from a dataset file. Permissions
// are auto-created from each role's included permissions (with the reverse
// role mapping attached), then topped up with any standalone entries. The
// output is deterministic: permissions sorted by name, roles in file order.
func Build(f *File) ([]iam.PermissionRecord, []iam.RoleRecord) {
	grantedBy := make(map[string][]iam.RoleSummary)
	serviceOf := make(map[string]string)

	for _, role := range f.Roles {
		summary := iam.RoleSummary{Name: role.Name, Title: role.Title, Stage: role.Stage}
		for _, perm := range role.IncludedPermissions {
			if len(grantedBy[perm]) < maxGrantedByRoles {
				grantedBy[perm] = append(grantedBy[perm], summary)
			}
			if _, ok := serviceOf[perm]; !ok {
				service, _, _ := iam.SplitPermissionName(perm)
				serviceOf[perm] = service
			}
		}
	}

	for _, entry := range f.Permissions {
		if _, ok := serviceOf[entry.Name]; !ok {
			service := entry.Service
			if service == "" {
				service, _, _ = iam.SplitPermissionName(entry.Name)
			}
			serviceOf[entry.Name] = service
		}
	}

	names := make([]string, 0, len(serviceOf))
	for name := range serviceOf {
		names = append(names, name)
	}
	sort.Strings(names)

	permissions := make([]iam.PermissionRecord, 0, len(names))
	for _, name := range names {
		_, resource, action := iam.SplitPermissionName(name)
		roles := grantedBy[name]
		if roles == nil {
			roles = []iam.RoleSummary{}
		}
		permissions = append(permissions, iam.PermissionRecord{
			Name:           name,
			Service:        serviceOf[name],
			Resource:       resource,
			Action:         action,
			GrantedByRoles: roles,
		})
	}

	roles := make([]iam.RoleRecord, 0, len(f.Roles))
	for _, role := range f.Roles {
		sample := role.IncludedPermissions
		if len(sample) > maxSamplePermissions {
			sample = sample[:maxSamplePermissions]
		}
		roles = append(roles, iam.RoleRecord{
			Name:              role.Name,
			Title:             role.Title,
			Description:       role.Description,
			Stage:             role.Stage,
			PermissionCount:   len(role.IncludedPermissions),
			SamplePermissions: append([]string{}, sample...),
		})
	}

	log.Debugf("Built %d permission records and %d role records", len(permissions), len(roles))
	return permissions, roles
}
