package similarity

import "testing"

func TestNgrams(t *testing.T) {
	testCases := []struct {
		input    string
		n        int
		expected []string
	}{
		{"compute", 3, []string{"com", "omp", "mpu", "put", "ute"}},
		{"ab", 3, []string{"ab"}},
		{"a", 3, []string{"a"}},
		{"", 3, []string{""}},
		{"ABC", 3, []string{"abc"}},
		{"List", 2, []string{"li", "is", "st"}},
	}

	for _, tc := range testCases {
		got := Ngrams(tc.input, tc.n)
		if len(got) != len(tc.expected) {
			t.Errorf("Ngrams(%q, %d): expected %v, got %v", tc.input, tc.n, tc.expected, got)
			continue
		}
		for i := range got {
			if got[i] != tc.expected[i] {
				t.Errorf("Ngrams(%q, %d)[%d]: expected %q, got %q", tc.input, tc.n, i, tc.expected[i], got[i])
			}
		}
	}
}

// self-similarity must always be perfect
func TestJaccardSelfSimilarity(t *testing.T) {
	inputs := []string{
		"compute.instances.list",
		"roles/viewer",
		"a",
		"",
		"storage objects get",
	}

	for _, s := range inputs {
		grams := Ngrams(s, 3)
		if score := Jaccard(grams, grams); score != 1.0 {
			t.Errorf("Jaccard self-similarity for %q: expected 1.0, got %f", s, score)
		}
	}
}

func TestJaccardEmptyInputs(t *testing.T) {
	if score := Jaccard(nil, nil); score != 1.0 {
		t.Errorf("Jaccard(empty, empty): expected 1.0, got %f", score)
	}
	if score := Jaccard([]string{"abc"}, nil); score != 0 {
		t.Errorf("Jaccard(set, empty): expected 0, got %f", score)
	}
	if score := Jaccard(nil, []string{"abc"}); score != 0 {
		t.Errorf("Jaccard(empty, set): expected 0, got %f", score)
	}
}

// duplicates collapse to distinct-element semantics
func TestJaccardIgnoresMultiplicity(t *testing.T) {
	a := []string{"aaa", "aaa", "bbb"}
	b := []string{"aaa", "bbb", "bbb"}
	if score := Jaccard(a, b); score != 1.0 {
		t.Errorf("expected multiplicities to be ignored, got %f", score)
	}
}

func TestJaccardPartialOverlap(t *testing.T) {
	a := []string{"com", "omp", "mpu"}
	b := []string{"com", "omp", "xyz"}
	// intersection 2, union 4
	if score := Jaccard(a, b); score != 0.5 {
		t.Errorf("expected 0.5, got %f", score)
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("  Instances   LIST ")
	if len(tokens) != 2 || tokens[0] != "instances" || tokens[1] != "list" {
		t.Errorf("unexpected tokens: %v", tokens)
	}
	if got := Tokenize("   "); len(got) != 0 {
		t.Errorf("whitespace-only query should tokenize to nothing, got %v", got)
	}
	// duplicates survive tokenization
	dup := Tokenize("list list")
	if len(dup) != 2 {
		t.Errorf("expected duplicate tokens preserved, got %v", dup)
	}
}

func TestTokenOverlap(t *testing.T) {
	testCases := []struct {
		tokens   []string
		targets  []string
		expected int
	}{
		{[]string{"instances", "list"}, []string{"compute.instances.list"}, 2},
		{[]string{"instances", "nonexistentword"}, []string{"compute.instances.list"}, 1},
		{[]string{"zzz"}, []string{"compute.instances.list"}, 0},
		// each occurrence of a repeated token counts
		{[]string{"list", "list"}, []string{"compute.instances.list"}, 2},
		// a token matching any target counts once
		{[]string{"viewer"}, []string{"roles/viewer", "project viewer"}, 1},
	}

	for _, tc := range testCases {
		if got := TokenOverlap(tc.tokens, tc.targets...); got != tc.expected {
			t.Errorf("TokenOverlap(%v, %v): expected %d, got %d", tc.tokens, tc.targets, tc.expected, got)
		}
	}
}
