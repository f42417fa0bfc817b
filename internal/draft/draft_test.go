package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/api/internal/reference"
	"folio/api/internal/style"
)

type fakeStore struct {
	records map[string]reference.Metadata
	calls   int
}

func (f *fakeStore) GetMetadata(_ context.Context, key string) (reference.Metadata, error) {
	f.calls++
	md, ok := f.records[key]
	if !ok {
		return reference.Metadata{}, fmt.Errorf("metadata for %s: %w", key, reference.ErrNotFound)
	}
	return md, nil
}

func newStore() *fakeStore {
	return &fakeStore{records: map[string]reference.Metadata{
		"pmid:12345": {
			Authors: []string{"Smith J", "Doe A"},
			Journal: "J Test",
			Year:    "2023",
			Title:   "Test Paper",
		},
		"smith2023_1": {Authors: []string{"Smith J"}, Title: "First", Journal: "J A", Year: "2023"},
		"doe2024_2":   {Authors: []string{"Doe A"}, Title: "Second", Journal: "J B", Year: "2024"},
		"pmid:999":    {Authors: []string{"New N"}, Title: "Inserted", Journal: "J C", Year: "2025"},
		"smith2023_3": {Authors: []string{"Smith J"}, Title: "Third", Journal: "J A", Year: "2023"},
	}}
}

const twoCitations = "# Test Draft\n\nFirst claim [[smith2023_1]]. Second claim [[doe2024_2]].\n"

func TestCreateDraftVancouver(t *testing.T) {
	s := NewSession(newStore())
	doc, err := s.CreateDraft(context.Background(), "claim", "This is a claim (PMID:12345).")
	require.NoError(t, err)

	assert.Equal(t, "This is a claim [1].\n\n## References\n\n[1] Smith J, Doe A. Test Paper. J Test. 2023.\n", doc.Text)
	require.Len(t, doc.Bibliography, 1)
	assert.Equal(t, 1, doc.Bibliography[0].Sequence)
	assert.Equal(t, "This is a claim (PMID:12345).", doc.Raw)
	assert.Equal(t, style.Vancouver, doc.Style)
}

func TestCreateDraftAPA(t *testing.T) {
	s := NewSession(newStore())
	require.NoError(t, s.SetStyle("apa"))
	doc, err := s.CreateDraft(context.Background(), "claim", "This is a claim (PMID:12345).")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.Text, "This is a claim (Smith & Doe, 2023)."))
	assert.Equal(t, []string{"Smith J, Doe A (2023). Test Paper. J Test."}, doc.Entries())
}

func TestInsertCitationRenumbers(t *testing.T) {
	s := NewSession(newStore())
	ctx := context.Background()
	doc, err := s.CreateDraft(ctx, "draft", twoCitations)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "First claim [1]. Second claim [2].")

	updated, err := s.InsertCitation(ctx, doc, "Test Draft", "pmid:999")
	require.NoError(t, err)

	assert.Equal(t, "# Test Draft[[pmid:999]]\n\nFirst claim [[smith2023_1]]. Second claim [[doe2024_2]].\n", updated.Raw)
	assert.Equal(t, "# Test Draft[1]\n\nFirst claim [2]. Second claim [3].\n\n## References\n\n"+
		"[1] New N. Inserted. J C. 2025.\n\n"+
		"[2] Smith J. First. J A. 2023.\n\n"+
		"[3] Doe A. Second. J B. 2024.\n", updated.Text)
}

func TestInsertCitationBetweenExisting(t *testing.T) {
	s := NewSession(newStore())
	ctx := context.Background()
	doc, err := s.CreateDraft(ctx, "draft", twoCitations)
	require.NoError(t, err)

	updated, err := s.InsertCitation(ctx, doc, "Second claim", "PMID:999")
	require.NoError(t, err)
	assert.Contains(t, updated.Text, "First claim [1]. Second claim[2,3].")
	assert.Equal(t, "pmid:999", updated.Bibliography[1].Key)
}

func TestInsertCitationAnchorNotFound(t *testing.T) {
	s := NewSession(newStore())
	ctx := context.Background()
	doc, err := s.CreateDraft(ctx, "draft", twoCitations)
	require.NoError(t, err)

	got, err := s.InsertCitation(ctx, doc, "No Such Text", "pmid:999")
	assert.ErrorIs(t, err, ErrAnchorNotFound)
	assert.Equal(t, doc.Raw, got.Raw)
	assert.Equal(t, doc.Text, got.Text)

	_, err = s.InsertCitation(ctx, doc, "References", "pmid:999")
	assert.ErrorIs(t, err, ErrAnchorNotFound, "anchors in the References section are not used")

	_, err = s.InsertCitation(ctx, doc, "Smith J. First", "pmid:999")
	assert.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestInsertCitationRejectsLinks(t *testing.T) {
	s := NewSession(newStore())
	doc, err := s.CreateDraft(context.Background(), "draft", twoCitations)
	require.NoError(t, err)
	_, err = s.InsertCitation(context.Background(), doc, "First", "Getting Started")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSetStyleBogusKeepsPrevious(t *testing.T) {
	s := NewSession(newStore())
	require.NoError(t, s.SetStyle("harvard"))

	err := s.SetStyle("bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, style.ErrInvalidStyle))
	assert.Equal(t, style.Harvard, s.Style())

	doc, err := s.CreateDraft(context.Background(), "claim", "This is a claim (PMID:12345).")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "This is a claim (Smith and Doe 2023)."))
}

func TestRenderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, annotate := range []bool{false, true} {
		s := NewSession(newStore())
		s.Annotate = annotate

		first, err := s.CreateDraft(ctx, "d", twoCitations)
		require.NoError(t, err)
		again, err := s.CreateDraft(ctx, "d", first.Raw)
		require.NoError(t, err)
		assert.Equal(t, first.Text, again.Text)
		assert.Equal(t, first.Bibliography, again.Bibliography)

		rerendered, err := s.CreateDraft(ctx, "d", first.Text)
		require.NoError(t, err)
		assert.Equal(t, first.Text, rerendered.Text, "annotate=%v", annotate)
	}
}

func TestRepeatedKeySharesNumber(t *testing.T) {
	s := NewSession(newStore())
	doc, err := s.CreateDraft(context.Background(), "d",
		"A [[smith2023_1]] B [[doe2024_2]] C [[smith2023_1]] D (PMID:12345) E [[doe2024_2]].")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "A [1] B [2] C [1] D [3] E [2]."))
	assert.Len(t, doc.Bibliography, 3)
	assert.Equal(t, 1, strings.Count(doc.Text, "First. J A"))
}

func TestAdjacentMarkersShareOneMark(t *testing.T) {
	s := NewSession(newStore())
	ctx := context.Background()
	raw := "Claim [[doe2024_2]][[smith2023_1]], (PMID:12345). Then [[smith2023_1]]."

	doc, err := s.CreateDraft(ctx, "d", raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "Claim [1,2,3]. Then [2]."))

	s.UseStyle(style.APA)
	doc, err = s.CreateDraft(ctx, "d", raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(doc.Text, "Claim (Doe, 2024; Smith, 2023; Smith & Doe, 2023). Then (Smith, 2023)."))
}

func TestAuthorYearDisambiguation(t *testing.T) {
	s := NewSession(newStore())
	s.UseStyle(style.APA)
	doc, err := s.CreateDraft(context.Background(), "d", "Later [[smith2023_3]] and earlier [[smith2023_1]] and [[doe2024_2]].")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(doc.Text, "Later (Smith, 2023a) and earlier (Smith, 2023b) and (Doe, 2024)."))
	assert.Equal(t, []string{
		"Doe A (2024). Second. J B.",
		"Smith J (2023a). Third. J A.",
		"Smith J (2023b). First. J A.",
	}, doc.Entries())
}

func TestUnresolvedReference(t *testing.T) {
	ctx := context.Background()
	raw := "Known [[smith2023_1]] and missing [[ghost2001_9]]."

	s := NewSession(newStore())
	_, err := s.CreateDraft(ctx, "d", raw)
	var unresolved *UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "ghost2001_9", unresolved.Key)
	assert.ErrorIs(t, err, reference.ErrNotFound)

	s.Unresolved = Placeholder
	doc, err := s.CreateDraft(ctx, "d", raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost2001_9"}, doc.Unresolved)
	assert.Contains(t, doc.Text, "[2] Unresolved reference: ghost2001_9.")
}

func TestKnownKeySurvivesStoreMiss(t *testing.T) {
	store := newStore()
	s := NewSession(store)
	ctx := context.Background()
	doc, err := s.CreateDraft(ctx, "d", twoCitations)
	require.NoError(t, err)

	delete(store.records, "smith2023_1")
	updated, err := s.InsertCitation(ctx, doc, "Second claim", "pmid:999")
	require.NoError(t, err)
	assert.Contains(t, updated.Text, "[1] Smith J. First. J A. 2023.")
	assert.Contains(t, updated.Text, "First claim [1]. Second claim[2,3].")
}

func TestExistingReferencesSection(t *testing.T) {
	s := NewSession(newStore())
	ctx := context.Background()

	raw := "Intro [[smith2023_1]].\n\n## References\n\n[1] Outdated.\n[[ghost2001_9]]\n\n## Appendix\n\nMore [[doe2024_2]].\n"
	doc, err := s.CreateDraft(ctx, "d", raw)
	require.NoError(t, err)
	assert.Equal(t, "Intro [1].\n\n## References\n\n[1] Smith J. First. J A. 2023.\n\n[2] Doe A. Second. J B. 2024.\n\n## Appendix\n\nMore [2].\n", doc.Text)
	assert.Equal(t, []string{"ghost2001_9"}, doc.Stale)

	plain := "Already rendered [1].\n\n## References\n\n[1] Smith J. First. J A. 2023.\n"
	doc, err = s.CreateDraft(ctx, "d", plain)
	require.NoError(t, err)
	assert.Equal(t, plain, doc.Text)
	assert.Empty(t, doc.Bibliography)
}

func TestRecoverFromAnnotatedText(t *testing.T) {
	s := NewSession(newStore())
	s.Annotate = true
	ctx := context.Background()
	doc, err := s.CreateDraft(ctx, "d", twoCitations)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "First claim [1]<!-- [[smith2023_1]] -->.")

	assert.Equal(t, strings.TrimRight(twoCitations, "\n")+"\n", Recover(doc.Text))

	detached := Document{Name: doc.Name, Text: doc.Text}
	updated, err := s.InsertCitation(ctx, detached, "Test Draft", "pmid:999")
	require.NoError(t, err)
	assert.Contains(t, updated.Text, "First claim [2]<!-- [[smith2023_1]] -->")
}

func TestCreateDraftHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSession(newStore()).CreateDraft(ctx, "d", twoCitations)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateDraftWithoutCitations(t *testing.T) {
	store := newStore()
	doc, err := NewSession(store).CreateDraft(context.Background(), "d", "Plain text with a [[Wiki Link]].")
	require.NoError(t, err)
	assert.Equal(t, "Plain text with a [[Wiki Link]].", doc.Text)
	assert.Zero(t, store.calls)
}

type failingStore struct{ err error }

func (f failingStore) GetMetadata(context.Context, string) (reference.Metadata, error) {
	return reference.Metadata{}, f.err
}

func TestStoreFailureIsNotUnresolved(t *testing.T) {
	outage := errors.New("conn refused")
	for _, policy := range []UnresolvedPolicy{Abort, Placeholder} {
		s := NewSession(failingStore{err: outage})
		s.Unresolved = policy
		_, err := s.CreateDraft(context.Background(), "d", "Claim [[smith2023_1]].")
		require.Error(t, err)
		assert.ErrorIs(t, err, outage)
		var unresolved *UnresolvedReferenceError
		assert.False(t, errors.As(err, &unresolved), "policy %d reported an outage as unresolved", policy)
		assert.NotErrorIs(t, err, reference.ErrNotFound)
	}
}

func TestKeyFormsOfOneWorkShareANumber(t *testing.T) {
	store := &fakeStore{records: map[string]reference.Metadata{
		"smith2023_12345678": {Authors: []string{"Smith J"}, Title: "T", Journal: "J", Year: "2023"},
		"doe2024_2":          {Authors: []string{"Doe A"}, Title: "Second", Journal: "J B", Year: "2024"},
	}}
	s := NewSession(store)
	raw := "A [[smith2023_12345678]]. B (PMID:12345678). C [[12345678]][[doe2024_2]][[pmid:12345678]]."
	doc, err := s.CreateDraft(context.Background(), "d", raw)
	require.NoError(t, err)

	assert.Equal(t, "A [1]. B [1]. C [1,2].\n\n## References\n\n[1] Smith J. T. J. 2023.\n\n[2] Doe A. Second. J B. 2024.\n", doc.Text)
	require.Len(t, doc.Bibliography, 2)
	assert.Equal(t, "smith2023_12345678", doc.Bibliography[0].Key)
	assert.Equal(t, 2, store.calls, "one lookup per distinct work")
}
