package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"folio/api/internal/config"
	"folio/api/internal/convert"
	"folio/api/internal/draft"
	"folio/api/internal/export"
	"folio/api/internal/gitrepo"
	"folio/api/internal/objectstore"
	"folio/api/internal/reference"
	"folio/api/internal/refstore"
	"folio/api/internal/search"
	"folio/api/internal/snapshot"
	"folio/api/internal/style"
)

const defaultAuthor = "folio"

// draftRepo is the part of gitrepo.Service the app needs. Callers hold
// Lock(name) around the *Locked methods.
type draftRepo interface {
	Lock(name string) func()
	Exists(name string) bool
	CreateDraftRepoLocked(initial gitrepo.Content, author string) (gitrepo.CommitInfo, error)
	CommitContentLocked(content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error)
	GetHeadContentLocked(name string) (gitrepo.Content, gitrepo.CommitInfo, error)
	GetContentByHash(name, hash string) (gitrepo.Content, error)
	History(name string, limit int) ([]gitrepo.CommitInfo, error)
	CreateTag(name, hash, tag string) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, storageID string) error
}

// Deps are the collaborators of a Service. References and Drafts are
// required; the rest may be nil.
type Deps struct {
	References refstore.Store
	// Metadata serves renders and prefetches. Defaults to References.
	Metadata  refstore.MetadataSource
	Drafts    draftRepo
	Snapshots *snapshot.Service
	Objects   objectstore.Store
	Search    *search.Service
	Exporter  *export.Service
	Logger    *slog.Logger
}

type Service struct {
	cfg          config.Config
	defaultStyle style.Style
	refs         refstore.Store
	metadata     refstore.MetadataSource
	git          draftRepo
	snapshots    *snapshot.Service
	objects      objectstore.Store
	search       *search.Service
	exporter     *export.Service
	logger       *slog.Logger

	sessionsMu sync.Mutex
	sessions   map[string]*draft.Session
}

func NewService(cfg config.Config, deps Deps) (*Service, error) {
	if deps.References == nil || deps.Drafts == nil {
		return nil, errors.New("app: references and drafts are required")
	}
	defaultStyle := style.Default
	if strings.TrimSpace(cfg.DefaultStyle) != "" {
		parsed, err := style.Parse(cfg.DefaultStyle)
		if err != nil {
			return nil, fmt.Errorf("default style: %w", err)
		}
		defaultStyle = parsed
	}
	metadata := deps.Metadata
	if metadata == nil {
		metadata = deps.References
	}
	exporter := deps.Exporter
	if exporter == nil {
		exporter = export.NewService(cfg.PandocPath)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:          cfg,
		defaultStyle: defaultStyle,
		refs:         deps.References,
		metadata:     metadata,
		git:          deps.Drafts,
		snapshots:    deps.Snapshots,
		objects:      deps.Objects,
		search:       deps.Search,
		exporter:     exporter,
		logger:       logger,
		sessions:     make(map[string]*draft.Session),
	}, nil
}

type CreateDraftInput struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Style   string `json:"style"`
	Author  string `json:"author"`
}

type InsertCitationInput struct {
	Anchor string `json:"anchor"`
	Key    string `json:"key"`
	Author string `json:"author"`
}

type SetStyleInput struct {
	Style  string `json:"style"`
	Author string `json:"author"`
}

type BibliographyEntry struct {
	Key        string `json:"key"`
	Sequence   int    `json:"sequence"`
	Suffix     string `json:"suffix,omitempty"`
	Text       string `json:"text"`
	Unresolved bool   `json:"unresolved,omitempty"`
}

// DraftView is a draft as the API returns it.
type DraftView struct {
	Name         string              `json:"name"`
	Style        string              `json:"style"`
	Source       string              `json:"source"`
	Rendered     string              `json:"rendered"`
	Keys         []string            `json:"keys"`
	Bibliography []BibliographyEntry `json:"bibliography"`
	Stale        []string            `json:"stale,omitempty"`
	Unresolved   []string            `json:"unresolved,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	Commit       *gitrepo.CommitInfo `json:"commit,omitempty"`
	Snapshot     *snapshot.Snapshot  `json:"snapshot,omitempty"`
}

// session returns the draft's session switched to st. Callers hold the
// draft lock.
func (s *Service) session(name string, st style.Style) *draft.Session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	sess, ok := s.sessions[name]
	if !ok {
		sess = draft.NewSession(s.metadata)
		sess.Annotate = s.cfg.Annotate
		if s.cfg.Placeholders {
			sess.Unresolved = draft.Placeholder
		}
		s.sessions[name] = sess
	}
	sess.UseStyle(st)
	return sess
}

func (s *Service) storedStyle(content gitrepo.Content) style.Style {
	st, err := style.Parse(content.Style)
	if err != nil {
		return s.defaultStyle
	}
	return st
}

// CreateDraft renders content and stores it as the draft's new head. An
// existing draft is replaced, its previous rendering snapshotted first.
func (s *Service) CreateDraft(ctx context.Context, input CreateDraftInput) (DraftView, error) {
	name := strings.TrimSpace(input.Name)
	if err := gitrepo.ValidateName(name); err != nil {
		return DraftView{}, err
	}
	unlock := s.git.Lock(name)
	defer unlock()

	var (
		previous gitrepo.Content
		exists   = s.git.Exists(name)
	)
	st := s.defaultStyle
	if exists {
		head, _, err := s.git.GetHeadContentLocked(name)
		if err != nil {
			return DraftView{}, err
		}
		previous = head
		st = s.storedStyle(head)
	}
	if strings.TrimSpace(input.Style) != "" {
		parsed, err := style.Parse(input.Style)
		if err != nil {
			return DraftView{}, err
		}
		st = parsed
	}

	doc, err := s.session(name, st).CreateDraft(ctx, name, input.Content)
	if err != nil {
		return DraftView{}, err
	}
	if !exists {
		commit, err := s.git.CreateDraftRepoLocked(contentOf(doc), authorOr(input.Author))
		if err != nil {
			return DraftView{}, err
		}
		return viewOf(doc, &commit, nil), nil
	}
	return s.save(ctx, name, previous, doc, input.Author, "Replace draft "+name)
}

// GetDraft returns the stored head of a draft. The bibliography is rebuilt
// from the raw source; when that fails the stored rendering is returned
// with the failure as a warning.
func (s *Service) GetDraft(ctx context.Context, name string) (DraftView, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return DraftView{}, err
	}
	unlock := s.git.Lock(name)
	defer unlock()

	head, commit, err := s.git.GetHeadContentLocked(name)
	if err != nil {
		return DraftView{}, err
	}
	doc, err := s.session(name, s.storedStyle(head)).CreateDraft(ctx, name, head.Source)
	if err != nil {
		if ctx.Err() != nil {
			return DraftView{}, ctx.Err()
		}
		view := DraftView{
			Name:         head.Name,
			Style:        head.Style,
			Source:       head.Source,
			Rendered:     head.Rendered,
			Keys:         convert.ExtractKeys(head.Source),
			Bibliography: []BibliographyEntry{},
			Warnings:     []string{err.Error()},
			Commit:       &commit,
		}
		return view, nil
	}
	doc.Text = head.Rendered
	return viewOf(doc, &commit, nil), nil
}

// InsertCitation adds key after the first occurrence of anchor and commits
// the re-rendered draft.
func (s *Service) InsertCitation(ctx context.Context, name string, input InsertCitationInput) (DraftView, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return DraftView{}, err
	}
	if strings.TrimSpace(input.Anchor) == "" {
		return DraftView{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "anchor is required", nil)
	}
	unlock := s.git.Lock(name)
	defer unlock()

	head, _, err := s.git.GetHeadContentLocked(name)
	if err != nil {
		return DraftView{}, err
	}
	st := s.storedStyle(head)
	current := draft.Document{Name: name, Raw: head.Source, Text: head.Rendered, Style: st}
	doc, err := s.session(name, st).InsertCitation(ctx, current, input.Anchor, input.Key)
	if err != nil {
		return DraftView{}, err
	}
	key := reference.CanonicalKey(input.Key)
	return s.save(ctx, name, head, doc, input.Author, fmt.Sprintf("Cite %s after %q", key, input.Anchor))
}

// SetStyle switches the draft's style and re-renders it. An unknown style
// leaves the draft untouched.
func (s *Service) SetStyle(ctx context.Context, name string, input SetStyleInput) (DraftView, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return DraftView{}, err
	}
	st, err := style.Parse(input.Style)
	if err != nil {
		return DraftView{}, err
	}
	unlock := s.git.Lock(name)
	defer unlock()

	head, _, err := s.git.GetHeadContentLocked(name)
	if err != nil {
		return DraftView{}, err
	}
	doc, err := s.session(name, st).CreateDraft(ctx, name, head.Source)
	if err != nil {
		return DraftView{}, err
	}
	return s.save(ctx, name, head, doc, input.Author, "Switch style to "+st.String())
}

// save snapshots the previous rendering and commits doc. Unchanged content
// is not committed.
func (s *Service) save(ctx context.Context, name string, previous gitrepo.Content, doc draft.Document, author, message string) (DraftView, error) {
	next := contentOf(doc)
	if !gitrepo.HasChanges(previous, next) {
		_, commit, err := s.git.GetHeadContentLocked(name)
		if err != nil {
			return DraftView{}, err
		}
		return viewOf(doc, &commit, nil), nil
	}

	var snap *snapshot.Snapshot
	if s.snapshots != nil {
		taken, err := s.snapshots.Take(ctx, name, previous.Rendered)
		if err != nil {
			return DraftView{}, err
		}
		if taken.ID != "" {
			snap = &taken
		}
	}
	commit, err := s.git.CommitContentLocked(next, authorOr(author), message)
	if err != nil {
		return DraftView{}, err
	}
	s.logger.Info("draft committed", "draft", name, "commit", commit.Hash, "style", doc.Style.String())
	return viewOf(doc, &commit, snap), nil
}

func (s *Service) History(name string, limit int) ([]gitrepo.CommitInfo, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.git.History(name, limit)
}

type CompareResult struct {
	From    string              `json:"from"`
	To      string              `json:"to"`
	Changed bool                `json:"changed"`
	Fields  []map[string]string `json:"fields"`
}

func (s *Service) Compare(name, from, to string) (CompareResult, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return CompareResult{}, err
	}
	if from == "" || to == "" {
		return CompareResult{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "from and to are required", nil)
	}
	before, err := s.git.GetContentByHash(name, from)
	if err != nil {
		return CompareResult{}, err
	}
	after, err := s.git.GetContentByHash(name, to)
	if err != nil {
		return CompareResult{}, err
	}
	return CompareResult{
		From:    from,
		To:      to,
		Changed: gitrepo.HasChanges(before, after),
		Fields:  gitrepo.DiffFields(before, after),
	}, nil
}

func (s *Service) Tag(name, hash, tag string) error {
	if err := gitrepo.ValidateName(name); err != nil {
		return err
	}
	if strings.TrimSpace(hash) == "" || strings.TrimSpace(tag) == "" {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "hash and tag are required", nil)
	}
	return s.git.CreateTag(name, hash, tag)
}

func (s *Service) Snapshots(ctx context.Context, name string) ([]snapshot.Snapshot, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return nil, err
	}
	if s.snapshots == nil {
		return []snapshot.Snapshot{}, nil
	}
	return s.snapshots.List(ctx, name)
}

func (s *Service) Snapshot(ctx context.Context, name, id string) (string, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return "", err
	}
	if s.snapshots == nil {
		return "", snapshot.ErrNotFound
	}
	return s.snapshots.Get(ctx, name, id)
}

// Export renders the draft head in format. When an object store is
// configured the output is also uploaded under exports/<draft>/.
func (s *Service) Export(ctx context.Context, name, format string) (*export.Result, error) {
	if err := gitrepo.ValidateName(name); err != nil {
		return nil, err
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	unlock := s.git.Lock(name)
	head, commit, err := s.git.GetHeadContentLocked(name)
	if err != nil {
		unlock()
		return nil, err
	}
	doc, err := s.session(name, s.storedStyle(head)).CreateDraft(ctx, name, head.Source)
	unlock()
	if err != nil {
		return nil, err
	}

	result, err := s.exporter.Export(ctx, export.Document{
		Name:         name,
		Title:        export.Title(doc.Raw, name),
		Author:       commit.Author,
		Style:        doc.Style,
		Source:       doc.Raw,
		Rendered:     doc.Text,
		Bibliography: doc.Bibliography,
		UpdatedAt:    commit.CreatedAt,
	}, f)
	if err != nil {
		return nil, err
	}
	if s.objects != nil {
		key := fmt.Sprintf("exports/%s/%s-%s", name, commit.Hash, result.Filename)
		if err := s.objects.Put(ctx, key, result.Data, result.MimeType); err != nil {
			s.logger.Warn("export upload failed", "draft", name, "key", key, "error", err)
		}
	}
	return result, nil
}

// PutReference stores a metadata record. The identifier is taken from the
// record's pmid, zotero_key or doi field, in that order.
func (s *Service) PutReference(ctx context.Context, record map[string]any) (refstore.Record, error) {
	id, err := reference.FromMetadata(record)
	if err != nil {
		return refstore.Record{}, err
	}
	md, err := metadataFromRecord(record)
	if err != nil {
		return refstore.Record{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	rec, err := s.refs.Put(ctx, id, md)
	if err != nil {
		return refstore.Record{}, err
	}
	if inv, ok := s.metadata.(cacheInvalidator); ok {
		if err := inv.Invalidate(ctx, rec.StorageID); err != nil {
			s.logger.Warn("cache invalidation failed", "storage_id", rec.StorageID, "error", err)
		}
	}
	if s.search != nil {
		s.search.IndexReference(rec)
	}
	return rec, nil
}

func (s *Service) GetReference(ctx context.Context, key string) (refstore.Record, error) {
	storageID, err := refstore.StorageIDForKey(key)
	if err != nil {
		return refstore.Record{}, err
	}
	return s.refs.Get(ctx, storageID)
}

func (s *Service) SearchReferences(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.NewService(nil, search.NewStoreSearcher(s.refs), s.logger).Search(ctx, q)
	}
	return s.search.Search(ctx, q)
}

// PrefetchReferences warms the metadata cache for keys.
func (s *Service) PrefetchReferences(ctx context.Context, keys []string) (refstore.PrefetchReport, error) {
	canonical := make([]string, 0, len(keys))
	for _, key := range keys {
		key = reference.CanonicalKey(key)
		if key == "" {
			continue
		}
		canonical = append(canonical, key)
	}
	return refstore.Prefetch(ctx, s.metadata, canonical, 0)
}

// ReindexReferences pushes every stored reference into the search index.
func (s *Service) ReindexReferences(ctx context.Context) {
	if s.search == nil {
		return
	}
	s.search.ReindexAll(ctx, s.refs)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.refs.Ping(ctx)
}

func contentOf(doc draft.Document) gitrepo.Content {
	return gitrepo.Content{
		Name:     doc.Name,
		Style:    doc.Style.String(),
		Source:   doc.Raw,
		Rendered: doc.Text,
	}
}

func viewOf(doc draft.Document, commit *gitrepo.CommitInfo, snap *snapshot.Snapshot) DraftView {
	entries := make([]BibliographyEntry, len(doc.Bibliography))
	for i, c := range doc.Bibliography {
		entries[i] = BibliographyEntry{
			Key:        c.Key,
			Sequence:   c.Sequence,
			Suffix:     c.Suffix,
			Text:       style.RenderEntry(doc.Style, c),
			Unresolved: c.Unresolved,
		}
	}
	return DraftView{
		Name:         doc.Name,
		Style:        doc.Style.String(),
		Source:       doc.Raw,
		Rendered:     doc.Text,
		Keys:         convert.ExtractKeys(doc.Raw),
		Bibliography: entries,
		Stale:        doc.Stale,
		Unresolved:   doc.Unresolved,
		Warnings:     doc.Warnings,
		Commit:       commit,
		Snapshot:     snap,
	}
}

// metadataFromRecord decodes the bibliographic fields of a loosely typed
// record. Numeric years and volumes are accepted.
func metadataFromRecord(record map[string]any) (reference.Metadata, error) {
	normalized := make(map[string]any, len(record))
	for k, v := range record {
		switch k {
		case "year", "volume", "issue", "pages":
			if f, ok := v.(float64); ok {
				v = strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
		normalized[k] = v
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return reference.Metadata{}, err
	}
	var md reference.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return reference.Metadata{}, fmt.Errorf("invalid reference metadata: %w", err)
	}
	if md.Year == "" {
		if date, ok := record["date"].(string); ok && len(date) >= 4 {
			md.Year = date[:4]
		}
	}
	return md, nil
}

func authorOr(author string) string {
	if author = strings.TrimSpace(author); author != "" {
		return author
	}
	return defaultAuthor
}
