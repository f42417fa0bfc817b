package marker

import (
	"regexp"
	"strings"
)

// ReferencesHeading is the heading of the generated bibliography section.
const ReferencesHeading = "## References"

var (
	referencesHeadingPattern = regexp.MustCompile(`(?im)^##[ \t]+references[ \t]*$`)
	nextHeadingPattern       = regexp.MustCompile(`(?m)^#{1,2}[ \t]+\S`)
)

// Section locates the References section of a document. End is the start of
// the next level one or two heading, or len(text).
type Section struct {
	Start int
	End   int
	Found bool
}

// FindReferences returns the span of the first "## References" section.
func FindReferences(text string) Section {
	loc := referencesHeadingPattern.FindStringIndex(text)
	if loc == nil {
		return Section{Start: len(text), End: len(text)}
	}
	end := len(text)
	if next := nextHeadingPattern.FindStringIndex(text[loc[1]:]); next != nil {
		end = loc[1] + next[0]
	}
	return Section{Start: loc[0], End: end, Found: true}
}

// Body returns text with the References section cut out.
func (s Section) Body(text string) string {
	if !s.Found {
		return text
	}
	return text[:s.Start] + text[s.End:]
}

// Content returns the References section itself, heading included.
func (s Section) Content(text string) string {
	if !s.Found {
		return ""
	}
	return text[s.Start:s.End]
}

// StripReferences removes the References section and the blank lines that
// separated it from the preceding text.
func StripReferences(text string) (string, bool) {
	section := FindReferences(text)
	if !section.Found {
		return text, false
	}
	before := strings.TrimRight(text[:section.Start], " \t\n")
	after := text[section.End:]
	switch {
	case after == "":
		if before == "" {
			return "", true
		}
		return before + "\n", true
	case before == "":
		return after, true
	default:
		return before + "\n\n" + after, true
	}
}

var groupSeparatorPattern = regexp.MustCompile(`^[ \t]*(?:[,;][ \t]*)?$`)

// Groups splits markers into runs that sit at the same location: markers
// separated only by spaces and at most one comma or semicolon. Markers must
// be ordered by position, as returned by Markers.
func Groups(text string, markers []Marker) [][]Marker {
	var groups [][]Marker
	for i, m := range markers {
		if i > 0 {
			prev := markers[i-1]
			if groupSeparatorPattern.MatchString(text[prev.End:m.Start]) {
				groups[len(groups)-1] = append(groups[len(groups)-1], m)
				continue
			}
		}
		groups = append(groups, []Marker{m})
	}
	return groups
}
