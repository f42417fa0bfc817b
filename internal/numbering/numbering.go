// Package numbering assigns sequence numbers and author-year groupings to
// citation keys. Every function is a pure function of its input and is
// recomputed from scratch on each render; nothing is patched incrementally.
package numbering

import (
	"sort"
	"strings"

	"folio/api/internal/marker"
)

// Order returns the distinct keys in first-appearance order. Occurrences at
// the same offset keep the order the parser encountered them in.
func Order(occurrences []marker.Occurrence) []string {
	indexed := make([]int, len(occurrences))
	for i := range indexed {
		indexed[i] = i
	}
	sort.SliceStable(indexed, func(a, b int) bool {
		return occurrences[indexed[a]].Offset < occurrences[indexed[b]].Offset
	})

	seen := make(map[string]struct{}, len(occurrences))
	keys := make([]string, 0, len(occurrences))
	for _, i := range indexed {
		key := occurrences[i].Key
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// AssignSequence maps each distinct key to its 1-based rank by first
// appearance.
func AssignSequence(occurrences []marker.Occurrence) map[string]int {
	keys := Order(occurrences)
	sequence := make(map[string]int, len(keys))
	for i, key := range keys {
		sequence[key] = i + 1
	}
	return sequence
}

// Stale returns keys that appear in the existing References section but not
// in the body. They take no number and are reported for removal.
func Stale(body, section []marker.Occurrence) []string {
	inBody := make(map[string]struct{}, len(body))
	for _, o := range body {
		inBody[o.Key] = struct{}{}
	}
	var stale []string
	for _, key := range Order(section) {
		if _, ok := inBody[key]; !ok {
			stale = append(stale, key)
		}
	}
	return stale
}

// AuthorYear is the grouping input for one distinct key.
type AuthorYear struct {
	Key      string
	Surnames []string
	Year     string
}

// Disambiguate returns year suffixes ("a", "b", ...) for keys whose author
// list and year render identically in an author-year style. Entries must be
// in first-appearance order; suffixes follow that order. Keys without a
// collision are absent from the result.
func Disambiguate(entries []AuthorYear) map[string]string {
	groups := make(map[string][]string)
	var order []string
	for _, e := range entries {
		label := groupLabel(e)
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], e.Key)
	}

	suffixes := make(map[string]string)
	for _, label := range order {
		keys := groups[label]
		if len(keys) < 2 {
			continue
		}
		for i, key := range keys {
			suffixes[key] = suffixFor(i)
		}
	}
	return suffixes
}

// groupLabel mirrors what the in-text mark shows: one or two surnames, or the
// first surname followed by et al.
func groupLabel(e AuthorYear) string {
	names := make([]string, 0, 2)
	for _, s := range e.Surnames {
		names = append(names, strings.ToLower(strings.TrimSpace(s)))
	}
	if len(names) > 2 {
		names = []string{names[0], "et al"}
	}
	return strings.Join(names, "|") + "#" + strings.TrimSpace(e.Year)
}

func suffixFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return string(letters[i])
	}
	return suffixFor(i/len(letters)-1) + string(letters[i%len(letters)])
}
