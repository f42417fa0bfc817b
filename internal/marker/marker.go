// Package marker finds citation markers in manuscript text.
//
// Four encodings are recognised, each by its own matcher. Matchers run in
// priority order and a later match overlapping an earlier one is dropped:
//
//	annotated    [1]<!-- [[smith2023_12345678]] -->
//	interchange  [@smith2023_12345678; @pmid:999]
//	bracketed    [[smith2023_12345678]]
//	inline       (PMID:12345)
//
// Keys that do not look like citations leave the marker untouched, so wiki
// style links such as [[Getting Started]] are never treated as citations.
package marker

import (
	"regexp"
	"sort"
	"strings"

	"folio/api/internal/reference"
)

// Encoding identifies which marker syntax produced an occurrence.
type Encoding int

const (
	EncodingAnnotated Encoding = iota
	EncodingInterchange
	EncodingBracketed
	EncodingInline
)

func (e Encoding) String() string {
	switch e {
	case EncodingAnnotated:
		return "annotated"
	case EncodingInterchange:
		return "interchange"
	case EncodingBracketed:
		return "bracketed"
	case EncodingInline:
		return "inline"
	default:
		return "unknown"
	}
}

// Marker is one matched marker span. A single marker may carry several keys
// (interchange multi-citations, annotated group marks).
type Marker struct {
	Start    int
	End      int
	Raw      string
	Keys     []string
	Encoding Encoding
	// Mark is the visible rendered mark of an annotated marker.
	Mark string
}

// Occurrence is one appearance of a citation key.
type Occurrence struct {
	Key      string
	Offset   int
	Raw      string
	Encoding Encoding
}

// Skip is a marker-shaped span left alone because one of its keys failed the
// citation key check.
type Skip struct {
	Start  int
	End    int
	Raw    string
	Reason string
}

var (
	annotatedPattern   = regexp.MustCompile(`(\[[^\[\]\n]*\]|\([^()\n]*\)|\^[^\^\n]+\^)<!--\s*((?:\[\[[^\[\]\n]+\]\]\s*)+)-->`)
	commentKeyPattern  = regexp.MustCompile(`\[\[([^\[\]\n]+)\]\]`)
	interchangePattern = regexp.MustCompile(`\[\s*(@[^\s;\[\]]+(?:\s*;\s*@[^\s;\[\]]+)*)\s*\]`)
	bracketedPattern   = regexp.MustCompile(`\[\[([^\[\]\n|]+)\]\]`)
	inlinePattern      = regexp.MustCompile(`\(((?i:pmid|doi)):\s*([^\s()]+)\)`)
)

type matcher func(text string, claim func(start, end int) bool, out *scanResult)

type scanResult struct {
	markers []Marker
	skipped []Skip
}

// matchers in priority order, most specific first
var matchers = []matcher{
	matchAnnotated,
	matchInterchange,
	matchBracketed,
	matchInline,
}

// Scan returns every citation marker in text ordered by position, plus the
// marker-shaped spans that were skipped.
func Scan(text string) ([]Marker, []Skip) {
	var claimed [][2]int
	claim := func(start, end int) bool {
		for _, span := range claimed {
			if start < span[1] && span[0] < end {
				return false
			}
		}
		claimed = append(claimed, [2]int{start, end})
		return true
	}

	var result scanResult
	for _, match := range matchers {
		match(text, claim, &result)
	}
	sort.SliceStable(result.markers, func(i, j int) bool {
		return result.markers[i].Start < result.markers[j].Start
	})
	sort.SliceStable(result.skipped, func(i, j int) bool {
		return result.skipped[i].Start < result.skipped[j].Start
	})
	return result.markers, result.skipped
}

// Markers returns every citation marker in text ordered by position.
func Markers(text string) []Marker {
	markers, _ := Scan(text)
	return markers
}

// Extract returns all citation occurrences in first-appearance order. Keys of
// one multi-key marker share its offset and keep their order in the marker.
func Extract(text string) []Occurrence {
	return Occurrences(Markers(text))
}

// Occurrences flattens markers into one occurrence per key.
func Occurrences(markers []Marker) []Occurrence {
	occurrences := make([]Occurrence, 0, len(markers))
	for _, m := range markers {
		for _, key := range m.Keys {
			occurrences = append(occurrences, Occurrence{
				Key:      key,
				Offset:   m.Start,
				Raw:      m.Raw,
				Encoding: m.Encoding,
			})
		}
	}
	return occurrences
}

func matchAnnotated(text string, claim func(int, int) bool, out *scanResult) {
	for _, loc := range annotatedPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		raw := text[start:end]
		var keys []string
		valid := true
		for _, km := range commentKeyPattern.FindAllStringSubmatch(text[loc[4]:loc[5]], -1) {
			key := reference.CanonicalKey(km[1])
			if !reference.IsCitationKey(key) {
				valid = false
				break
			}
			keys = append(keys, key)
		}
		if !claim(start, end) {
			continue
		}
		if !valid || len(keys) == 0 {
			out.skipped = append(out.skipped, Skip{Start: start, End: end, Raw: raw, Reason: "annotation carries a key that is not a citation key"})
			continue
		}
		out.markers = append(out.markers, Marker{
			Start:    start,
			End:      end,
			Raw:      raw,
			Keys:     keys,
			Encoding: EncodingAnnotated,
			Mark:     text[loc[2]:loc[3]],
		})
	}
}

func matchInterchange(text string, claim func(int, int) bool, out *scanResult) {
	for _, loc := range interchangePattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		raw := text[start:end]
		var keys []string
		valid := true
		for _, part := range strings.Split(text[loc[2]:loc[3]], ";") {
			key := reference.CanonicalKey(strings.TrimPrefix(strings.TrimSpace(part), "@"))
			if !reference.IsCitationKey(key) {
				valid = false
				break
			}
			keys = append(keys, key)
		}
		if !valid {
			// pandoc cross references such as [@fig:one] are not ours
			continue
		}
		if !claim(start, end) {
			continue
		}
		out.markers = append(out.markers, Marker{
			Start:    start,
			End:      end,
			Raw:      raw,
			Keys:     keys,
			Encoding: EncodingInterchange,
		})
	}
}

func matchBracketed(text string, claim func(int, int) bool, out *scanResult) {
	for _, loc := range bracketedPattern.FindAllStringSubmatchIndex(text, -1) {
		key := reference.CanonicalKey(text[loc[2]:loc[3]])
		if !reference.IsCitationKey(key) {
			continue
		}
		if !claim(loc[0], loc[1]) {
			continue
		}
		out.markers = append(out.markers, Marker{
			Start:    loc[0],
			End:      loc[1],
			Raw:      text[loc[0]:loc[1]],
			Keys:     []string{key},
			Encoding: EncodingBracketed,
		})
	}
}

func matchInline(text string, claim func(int, int) bool, out *scanResult) {
	for _, loc := range inlinePattern.FindAllStringSubmatchIndex(text, -1) {
		key := reference.CanonicalKey(text[loc[2]:loc[3]] + ":" + text[loc[4]:loc[5]])
		if !reference.IsCitationKey(key) {
			continue
		}
		if !claim(loc[0], loc[1]) {
			continue
		}
		out.markers = append(out.markers, Marker{
			Start:    loc[0],
			End:      loc[1],
			Raw:      text[loc[0]:loc[1]],
			Keys:     []string{key},
			Encoding: EncodingInline,
		})
	}
}
