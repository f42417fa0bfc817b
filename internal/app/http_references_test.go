package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"folio/api/internal/convert"
	"folio/api/internal/draft"
	"folio/api/internal/gitrepo"
	"folio/api/internal/reference"
	"folio/api/internal/refstore"
	"folio/api/internal/search"
	"folio/api/internal/style"
)

func TestPutAndGetReference(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/references", map[string]any{
		"pmid":    "777",
		"authors": []string{"Kim K", "Park J"},
		"title":   "Signals",
		"journal": "J Signal",
		"year":    2021,
		"volume":  12,
	})
	expectStatus(t, rr, http.StatusOK)
	rec := decodeJSON[refstore.Record](t, rr)
	if rec.CitationKey != "kim2021_777" {
		t.Fatalf("unexpected citation key %q", rec.CitationKey)
	}
	if rec.Metadata.Year != "2021" || rec.Metadata.Volume != "12" {
		t.Errorf("numeric fields not normalised: %+v", rec.Metadata)
	}

	for _, key := range []string{"kim2021_777", "pmid:777", "PMID:777"} {
		rr = env.do(t, http.MethodGet, "/api/references/"+key, nil)
		expectStatus(t, rr, http.StatusOK)
		if got := decodeJSON[refstore.Record](t, rr); got.StorageID != rec.StorageID {
			t.Errorf("%s resolved to %q, want %q", key, got.StorageID, rec.StorageID)
		}
	}

	expectErrorCode(t, env.do(t, http.MethodGet, "/api/references/pmid:404", nil), http.StatusNotFound, "NOT_FOUND")
	expectErrorCode(t, env.do(t, http.MethodPost, "/api/references", map[string]any{"title": "No id"}), http.StatusBadRequest, "MISSING_IDENTIFIER")
}

func TestPutReferenceMakesDraftsResolvable(t *testing.T) {
	env := newTestEnv(t)
	expectErrorCode(t, env.do(t, http.MethodPost, "/api/drafts", CreateDraftInput{Name: "later", Content: "Cite (PMID:777)."}), http.StatusUnprocessableEntity, "UNRESOLVED_REFERENCE")

	expectStatus(t, env.do(t, http.MethodPost, "/api/references", map[string]any{
		"pmid": "777", "authors": []string{"Kim K"}, "title": "Signals", "journal": "J Signal", "year": "2021",
	}), http.StatusOK)

	view := env.createDraft(t, "later", "Cite (PMID:777).")
	if len(view.Bibliography) != 1 || view.Bibliography[0].Text != "[1] Kim K. Signals. J Signal. 2021." {
		t.Errorf("unexpected bibliography %+v", view.Bibliography)
	}
}

func TestSearchReferencesFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/api/references/search?q=inserted", nil)
	expectStatus(t, rr, http.StatusOK)
	resp := decodeJSON[search.Response](t, rr)
	if resp.Backend != "store" {
		t.Errorf("expected store backend, got %q", resp.Backend)
	}
	if resp.Total != 1 || len(resp.Results) != 1 || resp.Results[0].CitationKey != "new2025_999" {
		t.Errorf("unexpected results %+v", resp)
	}
}

func TestPrefetchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/references/prefetch", map[string]any{"keys": []string{"PMID:12345", "pmid:404", " "}})
	expectStatus(t, rr, http.StatusOK)
	body := decodeJSON[struct {
		Report refstore.PrefetchReport `json:"report"`
		Errors []string                `json:"errors"`
	}](t, rr)
	if len(body.Report.Resolved) != 1 || body.Report.Resolved[0] != "pmid:12345" {
		t.Errorf("unexpected resolved %v", body.Report.Resolved)
	}
	if len(body.Report.Missing) != 1 || body.Report.Missing[0] != "pmid:404" {
		t.Errorf("unexpected missing %v", body.Report.Missing)
	}
	if len(body.Errors) != 0 {
		t.Errorf("unexpected errors %v", body.Errors)
	}
}

func TestConvertEndpoints(t *testing.T) {
	env := newTestEnv(t)
	text := "See [@a2020_1; @b2021_2] and [3]<!-- [[c2022_3]] -->."

	rr := env.do(t, http.MethodPost, "/api/convert/editing", map[string]string{"text": text})
	expectStatus(t, rr, http.StatusOK)
	editing := decodeJSON[convert.Result](t, rr)
	if editing.Text != "See [[a2020_1]][[b2021_2]] and [[c2022_3]]." {
		t.Errorf("unexpected editing text %q", editing.Text)
	}

	rr = env.do(t, http.MethodPost, "/api/convert/interchange", map[string]string{"text": editing.Text})
	expectStatus(t, rr, http.StatusOK)
	interchange := decodeJSON[convert.Result](t, rr)
	if interchange.Text != "See [@a2020_1; @b2021_2] and [@c2022_3]." {
		t.Errorf("unexpected interchange text %q", interchange.Text)
	}

	rr = env.do(t, http.MethodPost, "/api/convert/keys", map[string]string{"text": text})
	expectStatus(t, rr, http.StatusOK)
	keys := decodeJSON[struct {
		Keys []string `json:"keys"`
	}](t, rr)
	if fmt.Sprint(keys.Keys) != "[a2020_1 b2021_2 c2022_3]" {
		t.Errorf("unexpected keys %v", keys.Keys)
	}

	expectErrorCode(t, env.do(t, http.MethodPost, "/api/convert/latex", map[string]string{"text": text}), http.StatusNotFound, "NOT_FOUND")
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unresolved", fmt.Errorf("render: %w", &draft.UnresolvedReferenceError{Key: "pmid:1"}), http.StatusUnprocessableEntity, "UNRESOLVED_REFERENCE"},
		{"anchor", draft.ErrAnchorNotFound, http.StatusNotFound, "ANCHOR_NOT_FOUND"},
		{"style", fmt.Errorf("%w: bogus", style.ErrInvalidStyle), http.StatusBadRequest, "INVALID_STYLE"},
		{"identifier", reference.ErrMissingIdentifier, http.StatusBadRequest, "MISSING_IDENTIFIER"},
		{"reference", reference.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"draft", fmt.Errorf("%w: x", gitrepo.ErrDraftNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"exists", gitrepo.ErrDraftExists, http.StatusConflict, "DRAFT_EXISTS"},
		{"domain", domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot, "TEAPOT"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
		{"canceled", context.Canceled, http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("mapError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}
