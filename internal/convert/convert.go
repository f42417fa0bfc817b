// Package convert moves citation markers between the editing, interchange and
// annotated encodings. Conversions never fail: text that is not a recognised
// citation marker is passed through unchanged and skipped spans are reported
// as warnings.
package convert

import (
	"fmt"
	"strings"

	"folio/api/internal/marker"
)

// Result is the outcome of one conversion.
type Result struct {
	Text      string   `json:"text"`
	Converted int      `json:"converted"`
	Keys      []string `json:"keys"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ToInterchange rewrites annotated, bracketed and inline markers as
// [@key; @key] markers and drops the References section, which the
// typesetting pipeline regenerates from metadata.
func ToInterchange(text string) Result {
	markers, skipped := marker.Scan(text)
	section := marker.FindReferences(text)
	body := outside(markers, section)

	var b strings.Builder
	last, converted := 0, 0
	for _, group := range marker.Groups(text, body) {
		if len(group) == 1 && group[0].Encoding == marker.EncodingInterchange {
			continue
		}
		start, end := group[0].Start, group[len(group)-1].End
		b.WriteString(text[last:start])
		b.WriteString(interchangeMarker(keysOf(group)))
		for _, m := range group {
			if m.Encoding != marker.EncodingInterchange {
				converted++
			}
		}
		last = end
	}
	b.WriteString(text[last:])

	out, _ := marker.StripReferences(b.String())
	return Result{
		Text:      out,
		Converted: converted,
		Keys:      ExtractKeys(text),
		Warnings:  warnings(skipped),
	}
}

// ToEditing rewrites annotated and interchange markers as one [[key]] per
// key. Bracketed and inline markers are already editable and stay as they
// are, and so does the References section.
func ToEditing(text string) Result {
	markers, skipped := marker.Scan(text)
	section := marker.FindReferences(text)

	var b strings.Builder
	last, converted := 0, 0
	for _, m := range outside(markers, section) {
		if m.Encoding != marker.EncodingAnnotated && m.Encoding != marker.EncodingInterchange {
			continue
		}
		b.WriteString(text[last:m.Start])
		for _, key := range m.Keys {
			b.WriteString("[[" + key + "]]")
		}
		last = m.End
		converted++
	}
	b.WriteString(text[last:])

	return Result{
		Text:      b.String(),
		Converted: converted,
		Keys:      ExtractKeys(text),
		Warnings:  warnings(skipped),
	}
}

// ExtractKeys returns the distinct citation keys of every encoding in
// first-appearance order, ignoring the References section.
func ExtractKeys(text string) []string {
	body := outside(marker.Markers(text), marker.FindReferences(text))
	seen := make(map[string]struct{})
	keys := make([]string, 0, len(body))
	for _, m := range body {
		for _, key := range m.Keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func outside(markers []marker.Marker, section marker.Section) []marker.Marker {
	if !section.Found {
		return markers
	}
	kept := make([]marker.Marker, 0, len(markers))
	for _, m := range markers {
		if m.Start >= section.Start && m.Start < section.End {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

func keysOf(group []marker.Marker) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range group {
		for _, key := range m.Keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func interchangeMarker(keys []string) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = "@" + key
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

func warnings(skipped []marker.Skip) []string {
	if len(skipped) == 0 {
		return nil
	}
	out := make([]string, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, fmt.Sprintf("left %q at offset %d unchanged: %s", s.Raw, s.Start, s.Reason))
	}
	return out
}
