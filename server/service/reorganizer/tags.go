package reorganizer

import (
	"strings"
	"unicode"
)

// groupSimilarTags partitions tags into similarity groups. Grouping is
// single-pass and order-dependent: each not-yet-grouped tag seeds a group
// and absorbs every later ungrouped tag similar to the seed. Similarity is
// checked against the seed only, never between members, so the result is
// not a transitive closure. Changing this to union-find would change which
// tags merge; keep the seed loop.
func groupSimilarTags(tags []string) [][]string {
	grouped := make(map[string]bool, len(tags))
	var groups [][]string
	for i, seed := range tags {
		if grouped[seed] {
			continue
		}
		grouped[seed] = true
		group := []string{seed}
		for _, candidate := range tags[i+1:] {
			if grouped[candidate] {
				continue
			}
			if similarTags(seed, candidate) {
				grouped[candidate] = true
				group = append(group, candidate)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// similarTags reports whether two tags are considered the same concept:
// identical, substring either way, or normalized Levenshtein similarity
// above 0.8.
func similarTags(a, b string) bool {
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return true
	}
	similarity := 1 - float64(levenshtein(a, b))/float64(longest)
	return similarity > 0.8
}

// levenshtein computes the edit distance between two strings in runes,
// using the two-row dynamic programming form.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// pickPrimaryTag selects the tag the rest of the group is rewritten to:
// the one with the shortest cleaned form, ties broken by fewer special
// characters.
func pickPrimaryTag(group []string) string {
	primary := group[0]
	for _, tag := range group[1:] {
		tagLen := len([]rune(cleanTag(tag)))
		primaryLen := len([]rune(cleanTag(primary)))
		if tagLen < primaryLen {
			primary = tag
		} else if tagLen == primaryLen && specialChars(tag) < specialChars(primary) {
			primary = tag
		}
	}
	return primary
}

// cleanTag strips hyphens and underscores for length comparison.
func cleanTag(tag string) string {
	return strings.NewReplacer("-", "", "_", "").Replace(tag)
}

// specialChars counts the non-alphanumeric runes in a tag.
func specialChars(tag string) int {
	n := 0
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

// replaceTag substitutes from with to in a tag list, collapsing any
// resulting duplicate while preserving order.
func replaceTag(tags []string, from, to string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if tag == from {
			tag = to
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
