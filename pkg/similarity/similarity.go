// Package similarity provides the pure scoring primitives used by the match
// engine: character n-gram extraction, Jaccard set similarity and token
// overlap counting. All functions are stateless and deterministic.
package similarity

import "strings"

// Ngrams returns every contiguous substring of length n from the lower-cased
// input. Inputs shorter than n (or a non-positive n) collapse to a single
// gram holding the whole lower-cased text, so short queries still produce
// one comparable unit.
func Ngrams(text string, n int) []string {
	lower := strings.ToLower(text)
	runes := []rune(lower)
	if n <= 0 || len(runes) < n {
		return []string{lower}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

// Jaccard computes |A∩B| / |A∪B| over the distinct elements of both inputs.
// Duplicates collapse. Two empty inputs are a perfect match (1.0); exactly
// one empty input scores 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, g := range a {
		setA[g] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, g := range b {
		setB[g] = struct{}{}
	}

	intersection := 0
	for g := range setA {
		if _, ok := setB[g]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Tokenize splits a query on runs of whitespace into lower-cased tokens.
// Duplicate tokens are preserved: full-text scoring works on the token list,
// not a token set.
func Tokenize(query string) []string {
	fields := strings.Fields(query)
	tokens := make([]string, len(fields))
	for i, f := range fields {
		tokens[i] = strings.ToLower(f)
	}
	return tokens
}

// TokenOverlap counts how many tokens are substrings of at least one of the
// targets. Each token occurrence is checked independently, so repeated
// tokens count repeatedly. Targets must already be lower-cased.
func TokenOverlap(tokens []string, targets ...string) int {
	matched := 0
	for _, tok := range tokens {
		for _, target := range targets {
			if strings.Contains(target, tok) {
				matched++
				break
			}
		}
	}
	return matched
}
