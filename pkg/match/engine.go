// Package match is the core, providing the in-memory indexes and the four
// query disciplines (exact, prefix, fuzzy, full-text) over IAM permission
// and role records.
package match

import (
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/dmitri-lerko/gcpiam-search/pkg/iam"
	"github.com/dmitri-lerko/gcpiam-search/pkg/similarity"
)

// gramSize is the fixed n-gram length for fuzzy matching.
const gramSize = 3

// Fixed scores for prefix hits. They intentionally rank below exact hits and
// do not grade by overlap length: prefix match is binary.
const (
	prefixPermissionScore = 0.9
	prefixRoleScore       = 0.8
)

// permissionIndex is an immutable snapshot over one generation of
// permission records. Rebuilt wholesale, published as a single assignment.
type permissionIndex struct {
	records []iam.PermissionRecord
	byName  map[string]int // lower-cased name -> records index
	trie    *patricia.Trie // lower-cased name -> records index
	lowered []string       // lower-cased names, scan order = records order
}

// roleIndex mirrors permissionIndex for roles, keyed by name and title.
type roleIndex struct {
	records       []iam.RoleRecord
	byName        map[string]int
	byTitle       map[string]int
	nameTrie      *patricia.Trie // lower-cased name -> records index
	titleTrie     *patricia.Trie // lower-cased title -> []int (titles may collide)
	loweredNames  []string
	loweredTitles []string
}

// Engine holds the current index generation and answers queries against it.
// Reads take the published snapshot, so a rebuild never tears an in-flight
// query. Methods never fail on an empty index; they return empty slices.
type Engine struct {
	mu    sync.RWMutex
	perms *permissionIndex
	roles *roleIndex
}

// NewEngine returns an Engine with empty indexes.
func NewEngine() *Engine {
	return &Engine{
		perms: buildPermissionIndex(nil),
		roles: buildRoleIndex(nil),
	}
}

// IndexPermissions replaces the permission index with a fresh one built from
// the complete record set. This is a full replacement, not a merge.
func (e *Engine) IndexPermissions(records []iam.PermissionRecord) {
	idx := buildPermissionIndex(records)
	e.mu.Lock()
	e.perms = idx
	e.mu.Unlock()
	log.Debugf("Indexed %d permissions", len(records))
}

// IndexRoles replaces the role index with a fresh one built from the
// complete record set.
func (e *Engine) IndexRoles(records []iam.RoleRecord) {
	idx := buildRoleIndex(records)
	e.mu.Lock()
	e.roles = idx
	e.mu.Unlock()
	log.Debugf("Indexed %d roles", len(records))
}

// Stats returns the indexed permission and role counts.
func (e *Engine) Stats() (permissions, roles int) {
	perms, rls := e.snapshot()
	return len(perms.records), len(rls.records)
}

func (e *Engine) snapshot() (*permissionIndex, *roleIndex) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.perms, e.roles
}

func buildPermissionIndex(records []iam.PermissionRecord) *permissionIndex {
	idx := &permissionIndex{
		records: records,
		byName:  make(map[string]int, len(records)),
		trie:    patricia.NewTrie(),
		lowered: make([]string, len(records)),
	}
	for i, rec := range records {
		lower := strings.ToLower(rec.Name)
		idx.lowered[i] = lower
		idx.byName[lower] = i
		idx.trie.Set(patricia.Prefix(lower), i)
	}
	return idx
}

func buildRoleIndex(records []iam.RoleRecord) *roleIndex {
	idx := &roleIndex{
		records:       records,
		byName:        make(map[string]int, len(records)),
		byTitle:       make(map[string]int, len(records)),
		nameTrie:      patricia.NewTrie(),
		titleTrie:     patricia.NewTrie(),
		loweredNames:  make([]string, len(records)),
		loweredTitles: make([]string, len(records)),
	}
	for i, rec := range records {
		name := strings.ToLower(rec.Name)
		title := strings.ToLower(rec.Title)
		idx.loweredNames[i] = name
		idx.loweredTitles[i] = title
		idx.byName[name] = i
		if _, exists := idx.byTitle[title]; !exists {
			idx.byTitle[title] = i
		}
		idx.nameTrie.Set(patricia.Prefix(name), i)
		if title != "" {
			var ids []int
			if item := idx.titleTrie.Get(patricia.Prefix(title)); item != nil {
				ids = item.([]int)
			}
			idx.titleTrie.Set(patricia.Prefix(title), append(ids, i))
		}
	}
	return idx
}

// Exact returns the permission whose name equals the query and the roles
// whose name or title equals it, case-insensitively. Exact match is
// membership only; the score field is set to 1.0 but is not part of this
// mode's contract.
func (e *Engine) Exact(query string) iam.SearchResults {
	perms, roles := e.snapshot()
	q := strings.ToLower(query)
	out := iam.EmptyResults()

	if i, ok := perms.byName[q]; ok {
		out.Permissions = append(out.Permissions, iam.ScoredPermission{
			PermissionRecord: perms.records[i],
			Score:            1.0,
		})
	}

	seen := make(map[int]bool, 2)
	if i, ok := roles.byName[q]; ok {
		seen[i] = true
		out.Roles = append(out.Roles, iam.ScoredRole{RoleRecord: roles.records[i], Score: 1.0})
	}
	if i, ok := roles.byTitle[q]; ok && !seen[i] {
		out.Roles = append(out.Roles, iam.ScoredRole{RoleRecord: roles.records[i], Score: 1.0})
	}
	return out
}

// Prefix returns permissions whose name starts with the query (fixed score
// 0.9) and roles whose name or title starts with it (fixed score 0.8).
// A limit <= 0 means no cap.
func (e *Engine) Prefix(query string, limit int) iam.SearchResults {
	perms, roles := e.snapshot()
	q := strings.ToLower(query)
	out := iam.EmptyResults()

	_ = perms.trie.VisitSubtree(patricia.Prefix(q), func(_ patricia.Prefix, item patricia.Item) error {
		i := item.(int)
		out.Permissions = append(out.Permissions, iam.ScoredPermission{
			PermissionRecord: perms.records[i],
			Score:            prefixPermissionScore,
		})
		return nil
	})

	seen := make(map[int]bool)
	_ = roles.nameTrie.VisitSubtree(patricia.Prefix(q), func(_ patricia.Prefix, item patricia.Item) error {
		seen[item.(int)] = true
		return nil
	})
	_ = roles.titleTrie.VisitSubtree(patricia.Prefix(q), func(_ patricia.Prefix, item patricia.Item) error {
		for _, i := range item.([]int) {
			seen[i] = true
		}
		return nil
	})
	for i := range seen {
		out.Roles = append(out.Roles, iam.ScoredRole{
			RoleRecord: roles.records[i],
			Score:      prefixRoleScore,
		})
	}

	return finalize(out, limit)
}

// Fuzzy scores every record by Jaccard similarity of 3-grams against the
// query (roles take the better of name and title) and keeps entries at or
// above the threshold.
func (e *Engine) Fuzzy(query string, threshold float64, limit int) iam.SearchResults {
	perms, roles := e.snapshot()
	queryGrams := similarity.Ngrams(query, gramSize)
	out := iam.EmptyResults()

	for i, lower := range perms.lowered {
		score := similarity.Jaccard(queryGrams, similarity.Ngrams(lower, gramSize))
		if score >= threshold {
			out.Permissions = append(out.Permissions, iam.ScoredPermission{
				PermissionRecord: perms.records[i],
				Score:            score,
			})
		}
	}

	for i := range roles.records {
		nameScore := similarity.Jaccard(queryGrams, similarity.Ngrams(roles.loweredNames[i], gramSize))
		titleScore := similarity.Jaccard(queryGrams, similarity.Ngrams(roles.loweredTitles[i], gramSize))
		score := nameScore
		if titleScore > score {
			score = titleScore
		}
		if score >= threshold {
			out.Roles = append(out.Roles, iam.ScoredRole{
				RoleRecord: roles.records[i],
				Score:      score,
			})
		}
	}

	return finalize(out, limit)
}

// FullText splits the query into whitespace tokens and scores each record by
// the fraction of tokens that appear as substrings of its name (permissions)
// or name/title (roles). Records matching no token are discarded. Repeated
// query tokens are counted per occurrence in both numerator and denominator.
//
// Not reachable through the session mode set; callers use the engine
// directly for this discipline.
func (e *Engine) FullText(query string, limit int) iam.SearchResults {
	tokens := similarity.Tokenize(query)
	out := iam.EmptyResults()
	if len(tokens) == 0 {
		return out
	}
	perms, roles := e.snapshot()
	total := float64(len(tokens))

	for i, lower := range perms.lowered {
		if matched := similarity.TokenOverlap(tokens, lower); matched > 0 {
			out.Permissions = append(out.Permissions, iam.ScoredPermission{
				PermissionRecord: perms.records[i],
				Score:            float64(matched) / total,
			})
		}
	}

	for i := range roles.records {
		matched := similarity.TokenOverlap(tokens, roles.loweredNames[i], roles.loweredTitles[i])
		if matched > 0 {
			out.Roles = append(out.Roles, iam.ScoredRole{
				RoleRecord: roles.records[i],
				Score:      float64(matched) / total,
			})
		}
	}

	return finalize(out, limit)
}

// finalize sorts both result lists by score descending (name ascending on
// ties, so results are stable across runs) and applies the limit per list.
func finalize(res iam.SearchResults, limit int) iam.SearchResults {
	sort.Slice(res.Permissions, func(i, j int) bool {
		if res.Permissions[i].Score != res.Permissions[j].Score {
			return res.Permissions[i].Score > res.Permissions[j].Score
		}
		return res.Permissions[i].Name < res.Permissions[j].Name
	})
	sort.Slice(res.Roles, func(i, j int) bool {
		if res.Roles[i].Score != res.Roles[j].Score {
			return res.Roles[i].Score > res.Roles[j].Score
		}
		return res.Roles[i].Name < res.Roles[j].Name
	})
	if limit > 0 {
		if len(res.Permissions) > limit {
			res.Permissions = res.Permissions[:limit]
		}
		if len(res.Roles) > limit {
			res.Roles = res.Roles[:limit]
		}
	}
	return res
}
