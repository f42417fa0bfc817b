// Package reference derives stable identities and citation keys for bibliographic works.
package reference

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Source identifies the catalog a reference identifier comes from.
type Source string

const (
	SourcePubMed Source = "pubmed"
	SourceZotero Source = "zotero"
	SourceDOI    Source = "doi"
	SourceManual Source = "manual"
)

var (
	// ErrMissingIdentifier indicates no usable source identifier was supplied.
	ErrMissingIdentifier = errors.New("missing reference identifier")
	// ErrUnknownSource indicates the source is not one of the known catalogs.
	ErrUnknownSource = errors.New("unknown reference source")
	// ErrNotFound is returned by metadata stores when a key has no record.
	ErrNotFound = errors.New("reference not found")
)

// ParseSource maps a user supplied source name (or marker prefix) to a Source.
func ParseSource(name string) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pubmed", "pmid":
		return SourcePubMed, nil
	case "zotero":
		return SourceZotero, nil
	case "doi":
		return SourceDOI, nil
	case "manual":
		return SourceManual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

// Identity is the comparable part of an ID. Two IDs name the same work when
// their identities are equal, whatever their author and year metadata says.
type Identity struct {
	Source   Source
	SourceID string
}

// ID identifies one bibliographic work. The zero value is not valid; build one
// with FromSource or FromMetadata.
type ID struct {
	source   Source
	sourceID string
	surname  string
	year     string
}

// FromSource builds an ID from a catalog identifier and optional author/year.
func FromSource(source Source, sourceID, author, year string) (ID, error) {
	switch source {
	case SourcePubMed, SourceZotero, SourceDOI, SourceManual:
	default:
		return ID{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	sourceID = canonicalSourceID(source, sourceID)
	if sourceID == "" {
		return ID{}, ErrMissingIdentifier
	}
	if source == SourcePubMed && !pmidValuePattern.MatchString(sourceID) {
		return ID{}, fmt.Errorf("%w: pubmed id %q is not numeric", ErrMissingIdentifier, sourceID)
	}
	surname := strings.TrimSpace(author)
	if surname != "" {
		surname = ParseAuthor(surname).Surname
	}
	return ID{
		source:   source,
		sourceID: sourceID,
		surname:  surname,
		year:     strings.TrimSpace(year),
	}, nil
}

// identifier fields inspected by FromMetadata, in priority order
var metadataIdentifiers = []struct {
	field  string
	source Source
}{
	{"pmid", SourcePubMed},
	{"zotero_key", SourceZotero},
	{"doi", SourceDOI},
}

// FromMetadata builds an ID from a metadata record, taking the first
// identifier present among pmid, zotero_key and doi.
func FromMetadata(record map[string]any) (ID, error) {
	for _, candidate := range metadataIdentifiers {
		value := stringField(record, candidate.field)
		if value == "" {
			continue
		}
		return FromSource(candidate.source, value, firstAuthor(record), recordYear(record))
	}
	return ID{}, ErrMissingIdentifier
}

func (id ID) Source() Source             { return id.source }
func (id ID) SourceID() string           { return id.sourceID }
func (id ID) FirstAuthorSurname() string { return id.surname }
func (id ID) Year() string               { return id.year }

// Identity returns the value equality and hashing are defined on.
func (id ID) Identity() Identity {
	return Identity{Source: id.source, SourceID: id.sourceID}
}

// Equal reports whether both IDs name the same work.
func (id ID) Equal(other ID) bool {
	return id.Identity() == other.Identity()
}

// StorageID is a deterministic, path-safe identifier combining the source
// and the normalized source id.
func (id ID) StorageID() string {
	if id.source == SourcePubMed {
		return id.sourceID
	}
	return string(id.source) + "-" + normalizeSegment(id.sourceID)
}

// CitationKey is the canonical marker payload: surname, year digits and
// storage id, e.g. smith2023_12345678. Missing segments are left empty.
func (id ID) CitationKey() string {
	return NormalizeSurname(id.surname) + yearDigits(id.year) + "_" + id.StorageID()
}

func (id ID) String() string {
	return id.CitationKey()
}

func canonicalSourceID(source Source, sourceID string) string {
	sourceID = strings.TrimSpace(sourceID)
	switch source {
	case SourcePubMed:
		sourceID = trimPrefixFold(sourceID, "pmid:")
		return strings.TrimSpace(sourceID)
	case SourceDOI:
		sourceID = trimPrefixFold(sourceID, "https://doi.org/")
		sourceID = trimPrefixFold(sourceID, "doi:")
		return strings.ToLower(strings.TrimSpace(sourceID))
	default:
		return sourceID
	}
}

func trimPrefixFold(value, prefix string) string {
	if len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
		return value[len(prefix):]
	}
	return value
}

// normalizeSegment lower-cases and collapses every run of characters outside
// [a-z0-9] into one hyphen.
func normalizeSegment(value string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(foldDiacritics(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// NormalizeSurname lower-cases a surname, folds diacritics and keeps ASCII
// letters only.
func NormalizeSurname(surname string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(foldDiacritics(surname)) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func foldDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return folded
}

func yearDigits(year string) string {
	var b strings.Builder
	for _, r := range year {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == 4 {
				return b.String()
			}
			continue
		}
		if b.Len() > 0 {
			b.Reset()
		}
	}
	return ""
}

func stringField(record map[string]any, field string) string {
	raw, ok := record[field]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func firstAuthor(record map[string]any) string {
	if author := stringField(record, "first_author"); author != "" {
		return author
	}
	switch authors := record["authors"].(type) {
	case []string:
		if len(authors) > 0 {
			return strings.TrimSpace(authors[0])
		}
	case []any:
		if len(authors) > 0 {
			if s, ok := authors[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func recordYear(record map[string]any) string {
	if year := stringField(record, "year"); year != "" {
		return year
	}
	return yearDigits(stringField(record, "date"))
}
