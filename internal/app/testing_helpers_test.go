package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/api/internal/config"
	"folio/api/internal/gitrepo"
	"folio/api/internal/objectstore"
	"folio/api/internal/reference"
	"folio/api/internal/refstore"
	"folio/api/internal/snapshot"
)

type testEnv struct {
	server  *HTTPServer
	service *Service
	refs    *refstore.MemoryStore
	objects *objectstore.Dir
}

// pingStore lets readiness tests fail the database check.
type pingStore struct {
	*refstore.MemoryStore
	err error
}

func (p *pingStore) Ping(context.Context) error { return p.err }

func seedReferences(t *testing.T, refs refstore.Store) {
	t.Helper()
	seeds := []struct {
		pmid   string
		author string
		md     reference.Metadata
	}{
		{"12345", "Smith J", reference.Metadata{Authors: []string{"Smith J", "Doe A"}, Title: "Test Paper", Journal: "J Test", Year: "2023"}},
		{"999", "New N", reference.Metadata{Authors: []string{"New N"}, Title: "Inserted", Journal: "J C", Year: "2025"}},
	}
	for _, seed := range seeds {
		id, err := reference.FromSource(reference.SourcePubMed, seed.pmid, seed.author, seed.md.Year)
		if err != nil {
			t.Fatalf("build id: %v", err)
		}
		if _, err := refs.Put(context.Background(), id, seed.md); err != nil {
			t.Fatalf("seed %s: %v", seed.pmid, err)
		}
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	refs := refstore.NewMemoryStore()
	seedReferences(t, refs)
	return newTestEnvWithStore(t, refs, refs)
}

func newTestEnvWithStore(t *testing.T, store refstore.Store, mem *refstore.MemoryStore) *testEnv {
	t.Helper()
	objects, err := objectstore.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("object store: %v", err)
	}
	svc, err := NewService(config.Config{DefaultStyle: "vancouver"}, Deps{
		References: store,
		Drafts:     gitrepo.New(t.TempDir()),
		Snapshots:  snapshot.New(objects),
		Objects:    objects,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEnv{
		server:  NewHTTPServer(svc, "*"),
		service: svc,
		refs:    mem,
		objects: objects,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func expectErrorCode(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) map[string]any {
	t.Helper()
	expectStatus(t, rr, status)
	body := decodeJSON[map[string]any](t, rr)
	if body["code"] != code {
		t.Fatalf("expected code %s, got %v", code, body["code"])
	}
	return body
}

func (e *testEnv) createDraft(t *testing.T, name, content string) DraftView {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/drafts", CreateDraftInput{Name: name, Content: content, Author: "Ana"})
	expectStatus(t, rr, http.StatusCreated)
	return decodeJSON[DraftView](t, rr)
}
