package match

import (
	"testing"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
)

func testEngine() *Engine {
	e := NewEngine()
	e.IndexPermissions([]iam.PermissionRecord{
		{Name: "compute.instances.list", Service: "compute", Resource: "instances", Action: "list"},
		{Name: "compute.instances.get", Service: "compute", Resource: "instances", Action: "get"},
		{Name: "storage.objects.get", Service: "storage", Resource: "objects", Action: "get"},
	})
	e.IndexRoles([]iam.RoleRecord{
		{Name: "roles/compute.viewer", Title: "Compute Viewer", Stage: iam.StageGA, PermissionCount: 2},
		{Name: "roles/storage.admin", Title: "Storage Admin", Stage: iam.StageGA, PermissionCount: 1},
		{Name: "roles/viewer", Title: "Viewer", Stage: iam.StageGA, PermissionCount: 3},
	})
	return e
}

func TestExactPermission(t *testing.T) {
	e := testEngine()
	res := e.Exact("compute.instances.list")
	if len(res.Permissions) != 1 || res.Permissions[0].Name != "compute.instances.list" {
		t.Fatalf("expected exactly compute.instances.list, got %+v", res.Permissions)
	}

	// case insensitive on the match subject
	res = e.Exact("Compute.Instances.List")
	if len(res.Permissions) != 1 {
		t.Errorf("exact match should be case-insensitive, got %+v", res.Permissions)
	}

	if res := e.Exact("compute.instances"); len(res.Permissions) != 0 {
		t.Errorf("partial name must not match exactly, got %+v", res.Permissions)
	}
}

func TestExactRoleByNameOrTitle(t *testing.T) {
	e := testEngine()
	byName := e.Exact("roles/viewer")
	if len(byName.Roles) != 1 || byName.Roles[0].Name != "roles/viewer" {
		t.Fatalf("expected roles/viewer, got %+v", byName.Roles)
	}
	byTitle := e.Exact("compute viewer")
	if len(byTitle.Roles) != 1 || byTitle.Roles[0].Name != "roles/compute.viewer" {
		t.Fatalf("expected title match for roles/compute.viewer, got %+v", byTitle.Roles)
	}
}

func TestPrefixPermissions(t *testing.T) {
	e := testEngine()
	res := e.Prefix("compute.instances.", 0)
	if len(res.Permissions) != 2 {
		t.Fatalf("expected 2 prefix hits, got %+v", res.Permissions)
	}
	for _, p := range res.Permissions {
		if p.Score != 0.9 {
			t.Errorf("permission prefix score should be fixed 0.9, got %f for %s", p.Score, p.Name)
		}
	}
}

func TestPrefixRoles(t *testing.T) {
	e := testEngine()
	// matches roles/viewer by name prefix and both Viewer titles by title prefix
	res := e.Prefix("viewer", 0)
	if len(res.Roles) != 1 {
		t.Fatalf("expected 1 role for 'viewer', got %+v", res.Roles)
	}
	if res.Roles[0].Score != 0.8 {
		t.Errorf("role prefix score should be fixed 0.8, got %f", res.Roles[0].Score)
	}

	// title prefix reaches roles whose name does not match
	res = e.Prefix("compute v", 0)
	if len(res.Roles) != 1 || res.Roles[0].Name != "roles/compute.viewer" {
		t.Fatalf("expected title prefix hit, got %+v", res.Roles)
	}
}

func TestPrefixLimit(t *testing.T) {
	e := testEngine()
	res := e.Prefix("compute.instances.", 1)
	if len(res.Permissions) != 1 {
		t.Errorf("limit not applied: got %d permissions", len(res.Permissions))
	}
}

func TestFuzzyTypo(t *testing.T) {
	e := testEngine()
	res := e.Fuzzy("compute.instances.lst", 0.5, 0)
	found := false
	for _, p := range res.Permissions {
		if p.Name == "compute.instances.list" {
			found = true
			if p.Score < 0.5 {
				t.Errorf("typo score below threshold: %f", p.Score)
			}
		}
	}
	if !found {
		t.Errorf("one-character typo should still match, got %+v", res.Permissions)
	}

	unrelated := e.Fuzzy("totally.unrelated.permission", 0.5, 0)
	if len(unrelated.Permissions) != 0 {
		t.Errorf("unrelated query should return nothing, got %+v", unrelated.Permissions)
	}
}

func TestFuzzyRoleUsesBestOfNameAndTitle(t *testing.T) {
	e := testEngine()
	res := e.Fuzzy("storage admin", 0.4, 0)
	found := false
	for _, r := range res.Roles {
		if r.Name == "roles/storage.admin" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected title similarity to surface roles/storage.admin, got %+v", res.Roles)
	}
}

func TestFullText(t *testing.T) {
	e := testEngine()

	res := e.FullText("instances list", 0)
	found := false
	for _, p := range res.Permissions {
		if p.Name == "compute.instances.list" {
			found = true
			if p.Score != 1.0 {
				t.Errorf("both tokens match, expected score 1.0, got %f", p.Score)
			}
		}
	}
	if !found {
		t.Fatalf("expected compute.instances.list in full-text results, got %+v", res.Permissions)
	}

	res = e.FullText("instances nonexistentword", 0)
	for _, p := range res.Permissions {
		if p.Name == "compute.instances.list" && p.Score != 0.5 {
			t.Errorf("one of two tokens matches, expected 0.5, got %f", p.Score)
		}
	}
	if len(res.Permissions) == 0 {
		t.Errorf("matchCount > 0 entries must pass the filter")
	}

	if res := e.FullText("zzz qqq", 0); len(res.Permissions) != 0 || len(res.Roles) != 0 {
		t.Errorf("no token matches, expected empty results")
	}
}

func TestResultsSortedByScoreDescending(t *testing.T) {
	e := testEngine()
	res := e.FullText("compute instances list", 0)
	for i := 1; i < len(res.Permissions); i++ {
		if res.Permissions[i].Score > res.Permissions[i-1].Score {
			t.Errorf("permissions not sorted descending at %d: %+v", i, res.Permissions)
		}
	}
}

func TestEmptyIndex(t *testing.T) {
	e := NewEngine()
	for _, res := range []iam.SearchResults{
		e.Exact("compute.instances.list"),
		e.Prefix("compute", 0),
		e.Fuzzy("compute", 0.5, 0),
		e.FullText("compute", 0),
	} {
		if res.Permissions == nil || res.Roles == nil {
			t.Errorf("result slices must be non-nil on an empty index")
		}
		if len(res.Permissions) != 0 || len(res.Roles) != 0 {
			t.Errorf("empty index should yield empty results, got %+v", res)
		}
	}
}

func TestIndexRebuildReplacesRecords(t *testing.T) {
	e := testEngine()
	e.IndexPermissions([]iam.PermissionRecord{
		{Name: "pubsub.topics.publish", Service: "pubsub", Resource: "topics", Action: "publish"},
	})

	if res := e.Exact("compute.instances.list"); len(res.Permissions) != 0 {
		t.Errorf("rebuild must fully replace the old index")
	}
	if res := e.Exact("pubsub.topics.publish"); len(res.Permissions) != 1 {
		t.Errorf("rebuilt index should contain the new record")
	}

	permCount, roleCount := e.Stats()
	if permCount != 1 || roleCount != 3 {
		t.Errorf("unexpected stats after rebuild: %d perms, %d roles", permCount, roleCount)
	}
}
