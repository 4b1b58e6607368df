// Package utils holds small string helpers shared by the CLI.
package utils

import (
	"sort"
	"strings"
)

// Distance computes the case-insensitive Levenshtein distance between two
// strings, counting runes.
func Distance(s1, s2 string) int {
	a := []rune(strings.ToLower(s1))
	b := []rune(strings.ToLower(s2))
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// FuzzyMatch reports whether the runes of source appear in target in order.
// Case-insensitive.
func FuzzyMatch(source, target string) bool {
	src := []rune(strings.ToLower(source))
	i := 0
	for _, r := range strings.ToLower(target) {
		if i < len(src) && src[i] == r {
			i++
		}
	}
	return i == len(src)
}

// Suggest returns the candidates that look like a misspelling of name:
// within maxDistance edits, or containing name's runes in order. Closest
// first, at most limit results.
func Suggest(name string, candidates []string, maxDistance, limit int) []string {
	type scored struct {
		name string
		dist int
	}
	var hits []scored
	for _, c := range candidates {
		if strings.EqualFold(c, name) {
			continue
		}
		d := Distance(name, c)
		if d <= maxDistance || (len(name) > 1 && FuzzyMatch(name, c)) {
			hits = append(hits, scored{c, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].name < hits[j].name
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out
}
