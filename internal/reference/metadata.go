package reference

import (
	"regexp"
	"strings"
	"unicode"
)

// Metadata is the bibliographic record for one work, as supplied by the
// reference store. The engine treats it as read-only.
type Metadata struct {
	Authors []string `json:"authors"`
	Title   string   `json:"title"`
	Journal string   `json:"journal"`
	Year    string   `json:"year"`
	Volume  string   `json:"volume,omitempty"`
	Issue   string   `json:"issue,omitempty"`
	Pages   string   `json:"pages,omitempty"`
	DOI     string   `json:"doi,omitempty"`
}

// Author is a personal name split for citation rendering.
type Author struct {
	Surname  string
	Initials string
}

// Display renders the author in "Surname Initials" form.
func (a Author) Display() string {
	if a.Initials == "" {
		return a.Surname
	}
	return a.Surname + " " + a.Initials
}

// ParseAuthor splits "Smith J", "Smith, John A." or "John Smith" into surname
// and initials.
func ParseAuthor(name string) Author {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return Author{}
	}
	if surname, given, ok := strings.Cut(name, ","); ok {
		return Author{Surname: strings.TrimSpace(surname), Initials: initialsOf(given)}
	}
	parts := strings.Split(name, " ")
	if len(parts) == 1 {
		return Author{Surname: parts[0]}
	}
	last := parts[len(parts)-1]
	if looksLikeInitials(last) {
		return Author{
			Surname:  strings.Join(parts[:len(parts)-1], " "),
			Initials: strings.ReplaceAll(last, ".", ""),
		}
	}
	return Author{Surname: last, Initials: initialsOf(strings.Join(parts[:len(parts)-1], " "))}
}

func looksLikeInitials(token string) bool {
	letters := strings.ReplaceAll(token, ".", "")
	if letters == "" || len([]rune(letters)) > 3 {
		return false
	}
	for _, r := range letters {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func initialsOf(given string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(given, func(r rune) bool { return r == ' ' || r == '.' || r == '-' }) {
		for _, r := range part {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
	return b.String()
}

var (
	citationKeyPattern = regexp.MustCompile(`^([a-z]*)(\d{4})?_(\d{1,9}|(?:doi|zotero|manual)-[a-z0-9]+(?:-[a-z0-9]+)*)$`)
	bareNumericPattern = regexp.MustCompile(`^\d{6,9}$`)
	prefixedPattern    = regexp.MustCompile(`^(?i:(pmid|doi|zotero|manual)):(.+)$`)
	pmidValuePattern   = regexp.MustCompile(`^\d{1,9}$`)
	// DOI suffixes may not carry characters that a marker syntax uses as a
	// delimiter: ; splits interchange keys, | and brackets end a [[key]].
	doiValuePattern   = regexp.MustCompile(`^10\.\d{4,9}/[^\s;|\[\]<>]+$`)
	tokenValuePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// minBarePubMedDigits is the shortest PubMed id accepted in a citation key
// without a year, so links like [[chapter_1]] stay links.
const minBarePubMedDigits = 6

// citationKeyStorageID returns the storage id of a full citation key. Keys
// with a short numeric id must carry the year segment.
func citationKeyStorageID(key string) (string, bool) {
	m := citationKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", false
	}
	year, storageID := m[2], m[3]
	if pmidValuePattern.MatchString(storageID) && len(storageID) < minBarePubMedDigits && year == "" {
		return "", false
	}
	return storageID, true
}

// KeyStorageID maps any accepted citation key form to the storage id of the
// work it names: a full citation key, a source-prefixed id (pmid:123,
// doi:10.1/x) or a bare numeric PubMed id.
func KeyStorageID(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if storageID, ok := citationKeyStorageID(key); ok {
		return storageID, true
	}
	if bareNumericPattern.MatchString(key) {
		return key, true
	}
	source, sourceID, ok := SplitPrefixed(key)
	if !ok {
		return "", false
	}
	id, err := FromSource(source, sourceID, "", "")
	if err != nil {
		return "", false
	}
	return id.StorageID(), true
}

// SplitPrefixed parses a source-prefixed identifier such as "PMID:12345".
func SplitPrefixed(key string) (Source, string, bool) {
	m := prefixedPattern.FindStringSubmatch(strings.TrimSpace(key))
	if m == nil {
		return "", "", false
	}
	source, err := ParseSource(m[1])
	if err != nil {
		return "", "", false
	}
	value := strings.TrimSpace(m[2])
	switch source {
	case SourcePubMed:
		if !pmidValuePattern.MatchString(value) {
			return "", "", false
		}
	case SourceDOI:
		if !doiValuePattern.MatchString(value) {
			return "", "", false
		}
	default:
		if !tokenValuePattern.MatchString(value) {
			return "", "", false
		}
	}
	return source, value, true
}

// CanonicalKey lower-cases the prefix of a source-prefixed key and leaves
// other keys untouched.
func CanonicalKey(key string) string {
	key = strings.TrimSpace(key)
	source, value, ok := SplitPrefixed(key)
	if !ok {
		return key
	}
	prefix := string(source)
	if source == SourcePubMed {
		prefix = "pmid"
	}
	return prefix + ":" + value
}

// IsCitationKey reports whether key has the shape of a citation rather than
// an ordinary document link.
func IsCitationKey(key string) bool {
	_, ok := KeyStorageID(key)
	return ok
}
