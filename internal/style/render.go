package style

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"folio/api/internal/reference"
)

// Citation is one distinct key with its presentation data.
type Citation struct {
	Key      string
	Sequence int
	// Suffix disambiguates author-year citations that would otherwise
	// render identically ("a", "b", ...).
	Suffix   string
	Metadata reference.Metadata
	// Unresolved marks a placeholder for a key without metadata.
	Unresolved bool
}

const (
	maxListedAuthors = 6
	noDate           = "n.d."
	anonymous        = "Anon."
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// RenderInText renders the in-text mark for one or more citations cited at
// the same location.
func RenderInText(s Style, cites ...Citation) string {
	if len(cites) == 0 {
		return ""
	}
	switch s {
	case Vancouver, AMA, MDPI:
		return "[" + numberList(cites) + "]"
	case NLM:
		return "(" + numberList(cites) + ")"
	case Nature:
		return "^" + numberList(cites) + "^"
	case APA:
		return "(" + authorYearList(cites, " & ", ", ") + ")"
	case Harvard:
		return "(" + authorYearList(cites, " and ", " ") + ")"
	default:
		return "[" + numberList(cites) + "]"
	}
}

// RenderEntry renders the bibliography entry for one citation.
func RenderEntry(s Style, c Citation) string {
	if c.Unresolved {
		return entryLabel(s, c) + "Unresolved reference: " + c.Key + "."
	}
	md := c.Metadata
	title := strings.TrimRight(strings.TrimSpace(md.Title), ".")
	journal := strings.TrimSpace(md.Journal)
	year := Year(md) + c.Suffix

	var b strings.Builder
	b.WriteString(entryLabel(s, c))
	switch s {
	case Vancouver, NLM:
		b.WriteString(sentence(authorList(md, ", ")))
		writeSegment(&b, title)
		writeSegment(&b, journal)
		b.WriteString(" " + sentence(year+locator(md)))
	case AMA:
		b.WriteString(sentence(authorList(md, ", ")))
		writeSegment(&b, title)
		if journal != "" {
			b.WriteString(" *" + journal + "*.")
		}
		b.WriteString(" " + sentence(year+locator(md)))
	case Nature:
		b.WriteString(sentence(authorList(md, ", ")))
		writeSegment(&b, title)
		b.WriteString(" " + sentence(strings.TrimSpace(journal+" "+year)))
	case MDPI:
		b.WriteString(sentence(mdpiAuthorList(md)))
		writeSegment(&b, title)
		if journal != "" {
			b.WriteString(" *" + journal + "*")
		}
		b.WriteString(" **" + year + "**")
		if v := strings.TrimSpace(md.Volume); v != "" {
			b.WriteString(", *" + v + "*")
		}
		if p := strings.TrimSpace(md.Pages); p != "" {
			b.WriteString(", " + p)
		}
		b.WriteString(".")
	case APA:
		b.WriteString(authorList(md, ", "))
		b.WriteString(" (" + year + ").")
		writeSegment(&b, title)
		writeSegment(&b, journal)
	case Harvard:
		b.WriteString(authorList(md, ", "))
		b.WriteString(" (" + year + ")")
		switch {
		case title != "" && journal != "":
			b.WriteString(" '" + title + "', " + journal + ".")
		case title != "":
			b.WriteString(" '" + title + "'.")
		case journal != "":
			b.WriteString(" " + journal + ".")
		default:
			b.WriteString(".")
		}
	}
	return b.String()
}

// SortBibliography returns the citations in bibliography order: sequence
// order for numbered styles, first author, year and suffix for author-year
// styles.
func SortBibliography(s Style, cites []Citation) []Citation {
	sorted := append([]Citation(nil), cites...)
	switch s {
	case Vancouver, Nature, AMA, NLM, MDPI:
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Sequence < sorted[j].Sequence })
	case APA, Harvard:
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sortName(sorted[i]), sortName(sorted[j])
			if a != b {
				return a < b
			}
			ay, by := Year(sorted[i].Metadata), Year(sorted[j].Metadata)
			if ay != by {
				return ay < by
			}
			if sorted[i].Suffix != sorted[j].Suffix {
				return sorted[i].Suffix < sorted[j].Suffix
			}
			return sorted[i].Sequence < sorted[j].Sequence
		})
	}
	return sorted
}

// Surnames returns the author surnames used for author-year marks.
func Surnames(md reference.Metadata) []string {
	surnames := make([]string, 0, len(md.Authors))
	for _, name := range md.Authors {
		if a := reference.ParseAuthor(name); a.Surname != "" {
			surnames = append(surnames, a.Surname)
		}
	}
	return surnames
}

// Year returns the four digit year of a record, or "n.d." when it has none.
func Year(md reference.Metadata) string {
	if y := yearPattern.FindString(md.Year); y != "" {
		return y
	}
	if y := strings.TrimSpace(md.Year); y != "" {
		return y
	}
	return noDate
}

func entryLabel(s Style, c Citation) string {
	switch s {
	case Vancouver:
		return "[" + strconv.Itoa(c.Sequence) + "] "
	case Nature, AMA, NLM, MDPI:
		return strconv.Itoa(c.Sequence) + ". "
	case APA, Harvard:
		return ""
	default:
		return ""
	}
}

func numberList(cites []Citation) string {
	seen := make(map[int]struct{}, len(cites))
	numbers := make([]int, 0, len(cites))
	for _, c := range cites {
		if _, ok := seen[c.Sequence]; ok {
			continue
		}
		seen[c.Sequence] = struct{}{}
		numbers = append(numbers, c.Sequence)
	}
	sort.Ints(numbers)
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// authorYearList renders "Smith, 2023; Doe & Lee, 2024" style groups. pair
// joins two surnames and sep separates names from the year.
func authorYearList(cites []Citation, pair, sep string) string {
	seen := make(map[string]struct{}, len(cites))
	parts := make([]string, 0, len(cites))
	for _, c := range cites {
		if _, ok := seen[c.Key]; ok {
			continue
		}
		seen[c.Key] = struct{}{}
		if c.Unresolved {
			parts = append(parts, c.Key)
			continue
		}
		parts = append(parts, inTextNames(Surnames(c.Metadata), pair)+sep+Year(c.Metadata)+c.Suffix)
	}
	return strings.Join(parts, "; ")
}

func inTextNames(surnames []string, pair string) string {
	switch len(surnames) {
	case 0:
		return anonymous
	case 1:
		return surnames[0]
	case 2:
		return surnames[0] + pair + surnames[1]
	default:
		return surnames[0] + " et al."
	}
}

func authorList(md reference.Metadata, sep string) string {
	names := make([]string, 0, len(md.Authors))
	for _, raw := range md.Authors {
		if a := reference.ParseAuthor(raw); a.Surname != "" {
			names = append(names, a.Display())
		}
	}
	if len(names) == 0 {
		return anonymous
	}
	if len(names) > maxListedAuthors {
		names = append(names[:maxListedAuthors], "et al.")
	}
	return strings.Join(names, sep)
}

func mdpiAuthorList(md reference.Metadata) string {
	names := make([]string, 0, len(md.Authors))
	for _, raw := range md.Authors {
		a := reference.ParseAuthor(raw)
		if a.Surname == "" {
			continue
		}
		if a.Initials == "" {
			names = append(names, a.Surname)
			continue
		}
		var initials strings.Builder
		for _, r := range a.Initials {
			initials.WriteRune(r)
			initials.WriteByte('.')
		}
		names = append(names, a.Surname+", "+initials.String())
	}
	if len(names) == 0 {
		return anonymous
	}
	if len(names) > maxListedAuthors {
		names = append(names[:maxListedAuthors], "et al.")
	}
	return strings.Join(names, "; ")
}

// locator renders ";Volume(Issue):Pages" for the numbered medical styles.
func locator(md reference.Metadata) string {
	volume := strings.TrimSpace(md.Volume)
	issue := strings.TrimSpace(md.Issue)
	pages := strings.TrimSpace(md.Pages)
	if volume == "" && issue == "" && pages == "" {
		return ""
	}
	out := ";" + volume
	if issue != "" {
		out += "(" + issue + ")"
	}
	if pages != "" {
		out += ":" + pages
	}
	return out
}

func sortName(c Citation) string {
	if c.Unresolved {
		return strings.ToLower(c.Key)
	}
	surnames := Surnames(c.Metadata)
	if len(surnames) == 0 {
		return strings.ToLower(anonymous)
	}
	return strings.ToLower(surnames[0])
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "!") {
		return s
	}
	return s + "."
}

func writeSegment(b *strings.Builder, segment string) {
	if segment == "" {
		return
	}
	b.WriteString(" " + sentence(segment))
}
