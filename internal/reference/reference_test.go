package reference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromSourceCitationKey(t *testing.T) {
	tests := []struct {
		name       string
		source     Source
		sourceID   string
		author     string
		year       string
		wantKey    string
		wantStored string
	}{
		{"pubmed", SourcePubMed, "12345678", "Smith J", "2023", "smith2023_12345678", "12345678"},
		{"pubmed with prefix", SourcePubMed, "PMID:12345678", "Smith J", "2023", "smith2023_12345678", "12345678"},
		{"doi", SourceDOI, "10.1000/XYZ.123", "Doe A", "2021", "doe2021_doi-10-1000-xyz-123", "doi-10-1000-xyz-123"},
		{"doi url", SourceDOI, "https://doi.org/10.1000/abc", "", "", "_doi-10-1000-abc", "doi-10-1000-abc"},
		{"zotero", SourceZotero, "ABCD1234", "Müller, Hans", "2019-05-01", "muller2019_zotero-abcd1234", "zotero-abcd1234"},
		{"missing author", SourcePubMed, "999", "", "2020", "2020_999", "999"},
		{"missing year", SourceManual, "My Ref", "O'Brien K", "", "obrien_manual-my-ref", "manual-my-ref"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := FromSource(tt.source, tt.sourceID, tt.author, tt.year)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, id.CitationKey())
			assert.Equal(t, tt.wantStored, id.StorageID())
			assert.True(t, IsCitationKey(id.CitationKey()), "key %q should pass the shape check", id.CitationKey())
		})
	}
}

func TestCitationKeyDeterministic(t *testing.T) {
	first, err := FromSource(SourceDOI, "10.1234/Example", "Nguyễn V", "2024")
	require.NoError(t, err)
	second, err := FromSource(SourceDOI, "10.1234/Example", "Nguyễn V", "2024")
	require.NoError(t, err)
	assert.Equal(t, first.CitationKey(), second.CitationKey())
	assert.Equal(t, "nguyen2024_doi-10-1234-example", first.CitationKey())
}

func TestFromSourceErrors(t *testing.T) {
	_, err := FromSource(SourcePubMed, "  ", "Smith", "2020")
	assert.ErrorIs(t, err, ErrMissingIdentifier)

	for _, bad := range []string{"../../etc/passwd", "12a45", "PMID:x1", "1234567890"} {
		_, err = FromSource(SourcePubMed, bad, "", "")
		assert.ErrorIs(t, err, ErrMissingIdentifier, "pubmed id %q", bad)
	}

	_, err = FromSource(Source("arxiv"), "2101.00001", "", "")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestIdentityIgnoresAuthorAndYear(t *testing.T) {
	stale, err := FromSource(SourcePubMed, "12345", "", "")
	require.NoError(t, err)
	fresh, err := FromSource(SourcePubMed, "12345", "Smith J", "2023")
	require.NoError(t, err)

	assert.True(t, stale.Equal(fresh))
	assert.NotEqual(t, stale.CitationKey(), fresh.CitationKey())

	seen := map[Identity]bool{stale.Identity(): true}
	assert.True(t, seen[fresh.Identity()])

	other, err := FromSource(SourceZotero, "12345", "Smith J", "2023")
	require.NoError(t, err)
	assert.False(t, fresh.Equal(other))
}

func TestFromMetadataPriority(t *testing.T) {
	id, err := FromMetadata(map[string]any{
		"doi":        "10.1000/xyz",
		"zotero_key": "ZK1",
		"pmid":       float64(12345678),
		"authors":    []any{"Smith J", "Doe A"},
		"year":       "2023",
	})
	require.NoError(t, err)
	assert.Equal(t, SourcePubMed, id.Source())
	assert.Equal(t, "smith2023_12345678", id.CitationKey())

	id, err = FromMetadata(map[string]any{
		"doi":          "10.1000/xyz",
		"zotero_key":   "ZK1",
		"first_author": "Lee K",
		"date":         "2018-03-04",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceZotero, id.Source())
	assert.Equal(t, "lee2018_zotero-zk1", id.CitationKey())

	id, err = FromMetadata(map[string]any{"doi": "10.1000/xyz"})
	require.NoError(t, err)
	assert.Equal(t, SourceDOI, id.Source())

	_, err = FromMetadata(map[string]any{"title": "No identifiers"})
	assert.ErrorIs(t, err, ErrMissingIdentifier)

	_, err = FromMetadata(map[string]any{"pmid": "../../etc/passwd", "year": "2020"})
	assert.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestParseAuthor(t *testing.T) {
	tests := []struct {
		in   string
		want Author
	}{
		{"Smith J", Author{Surname: "Smith", Initials: "J"}},
		{"Smith JA", Author{Surname: "Smith", Initials: "JA"}},
		{"Smith, John Adam", Author{Surname: "Smith", Initials: "JA"}},
		{"John Smith", Author{Surname: "Smith", Initials: "J"}},
		{"van der Berg A.B.", Author{Surname: "van der Berg", Initials: "AB"}},
		{"Plato", Author{Surname: "Plato"}},
		{"", Author{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAuthor(tt.in))
		})
	}
}

func TestKeyStorageID(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"smith2023_12345678", "12345678", true},
		{"_12345678", "12345678", true},
		{"doe2021_doi-10-1000-xyz", "doi-10-1000-xyz", true},
		{"pmid:999", "999", true},
		{"PMID:12345", "12345", true},
		{"doi:10.1000/XYZ", "doi-10-1000-xyz", true},
		{"zotero:ABCD1234", "zotero-abcd1234", true},
		{"12345678", "12345678", true},
		{"new2025_999", "999", true},
		{"2020_999", "999", true},
		{"12345", "", false},
		{"Getting Started", "", false},
		{"my_page", "", false},
		{"chapter_1", "", false},
		{"note_2", "", false},
		{"section_12", "", false},
		{"_1", "", false},
		{"_12345", "", false},
		{"doi:10.1002/(SICI)1097-4636(199706)35:4<477::AID-JBM8>3.0.CO;2-9", "", false},
		{"doi:10.1000/a|b", "", false},
		{"doi:10.1000/a(b)", "doi-10-1000-a-b", true},
		{"pmid:abc", "", false},
		{"doi:not-a-doi", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := KeyStorageID(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "pmid:12345", CanonicalKey("PMID:12345"))
	assert.Equal(t, "doi:10.1000/XYZ", CanonicalKey("DOI:10.1000/XYZ"))
	assert.Equal(t, "smith2023_1", CanonicalKey(" smith2023_1 "))
	assert.Equal(t, "Some Page", CanonicalKey("Some Page"))
}
