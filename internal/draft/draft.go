// Package draft renders manuscripts: it parses citation markers, numbers
// them, resolves their metadata and writes styled marks plus a References
// section. The raw source is retained on every Document and is the only
// form edits are applied to; rendered text is always derived from it.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"folio/api/internal/convert"
	"folio/api/internal/marker"
	"folio/api/internal/numbering"
	"folio/api/internal/reference"
	"folio/api/internal/style"
)

// MetadataStore supplies bibliographic metadata for a citation key. It
// returns an error wrapping reference.ErrNotFound for unknown keys.
type MetadataStore interface {
	GetMetadata(ctx context.Context, key string) (reference.Metadata, error)
}

// UnresolvedPolicy decides what happens to keys without metadata.
type UnresolvedPolicy int

const (
	// Abort fails the render with an *UnresolvedReferenceError.
	Abort UnresolvedPolicy = iota
	// Placeholder renders the key with a placeholder entry and reports it
	// in Document.Unresolved.
	Placeholder
)

var (
	ErrAnchorNotFound = errors.New("anchor not found in rendered text")
	ErrInvalidKey     = errors.New("not a citation key")
)

// UnresolvedReferenceError reports the key whose metadata could not be
// obtained.
type UnresolvedReferenceError struct {
	Key string
	Err error
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %q: %v", e.Key, e.Unwrap())
}

func (e *UnresolvedReferenceError) Unwrap() error {
	if e.Err == nil {
		return reference.ErrNotFound
	}
	return e.Err
}

// Document is one rendered draft.
type Document struct {
	Name string
	// Raw is the unrendered source with citation markers as authored.
	Raw string
	// Text is Raw rendered in Style, References section included.
	Text         string
	Style        style.Style
	Bibliography []style.Citation
	// Stale lists keys found only in the previous References section.
	Stale []string
	// Unresolved lists keys rendered as placeholders.
	Unresolved []string
	Warnings   []string

	spans []span
}

// Entries renders the bibliography entries in order.
func (d Document) Entries() []string {
	entries := make([]string, len(d.Bibliography))
	for i, c := range d.Bibliography {
		entries[i] = style.RenderEntry(d.Style, c)
	}
	return entries
}

// Session carries the rendering configuration for a sequence of draft
// operations. It is safe for concurrent use.
type Session struct {
	Store      MetadataStore
	Unresolved UnresolvedPolicy
	// Annotate appends the citation keys as an HTML comment to every
	// rendered mark so the rendered text can be turned back into source.
	Annotate bool

	mu    sync.RWMutex
	style style.Style
	known map[string]reference.Metadata
}

// NewSession returns a session rendering in the default style.
func NewSession(store MetadataStore) *Session {
	return &Session{
		Store: store,
		style: style.Default,
		known: make(map[string]reference.Metadata),
	}
}

// Style returns the current style.
func (s *Session) Style() style.Style {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

// SetStyle switches the current style by name. An unknown name returns an
// error wrapping style.ErrInvalidStyle and the current style is kept.
func (s *Session) SetStyle(name string) error {
	parsed, err := style.Parse(name)
	if err != nil {
		return err
	}
	s.UseStyle(parsed)
	return nil
}

// UseStyle switches the current style.
func (s *Session) UseStyle(st style.Style) {
	s.mu.Lock()
	s.style = st
	s.mu.Unlock()
}

// CreateDraft renders raw in the current style.
func (s *Session) CreateDraft(ctx context.Context, name, raw string) (Document, error) {
	return s.render(ctx, name, raw, nil)
}

// InsertCitation inserts a marker for key right after the first occurrence
// of anchor in the rendered body text and renders the result. The
// References section is not searched. On error doc is returned unchanged.
func (s *Session) InsertCitation(ctx context.Context, doc Document, anchor, key string) (Document, error) {
	key = reference.CanonicalKey(key)
	if !reference.IsCitationKey(key) {
		return doc, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	current := doc
	if current.Raw == "" && current.Text != "" {
		current.Raw = Recover(current.Text)
		current.spans = nil
	}
	if current.spans == nil || current.Style != s.Style() {
		rendered, err := s.render(ctx, doc.Name, current.Raw, doc.Bibliography)
		if err != nil {
			return doc, err
		}
		current = rendered
	}

	at, ok := locate(current, anchor)
	if !ok {
		return doc, fmt.Errorf("%w: %q", ErrAnchorNotFound, anchor)
	}
	raw := current.Raw[:at] + "[[" + key + "]]" + current.Raw[at:]
	updated, err := s.render(ctx, doc.Name, raw, current.Bibliography)
	if err != nil {
		return doc, err
	}
	return updated, nil
}

// Recover rebuilds editable source from a rendered document: annotated marks
// become [[key]] markers and the generated References section is removed.
func Recover(text string) string {
	source := convert.ToEditing(text).Text
	if stripped, ok := marker.StripReferences(source); ok {
		return stripped
	}
	return source
}

func (s *Session) render(ctx context.Context, name, raw string, prior []style.Citation) (Document, error) {
	current := s.Style()
	markers, skipped := marker.Scan(raw)
	section := marker.FindReferences(raw)

	var body, inSection []marker.Marker
	for _, m := range markers {
		if section.Found && m.Start >= section.Start && m.Start < section.End {
			inSection = append(inSection, m)
			continue
		}
		body = append(body, m)
	}
	aliases := make(keyAliases)
	body = aliases.unify(body)
	inSection = aliases.unify(inSection)
	occurrences := marker.Occurrences(body)

	doc := Document{
		Name:  name,
		Raw:   raw,
		Style: current,
		Stale: numbering.Stale(occurrences, marker.Occurrences(inSection)),
	}
	for _, sk := range skipped {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("left %q at offset %d unchanged: %s", sk.Raw, sk.Start, sk.Reason))
	}

	cites, err := s.resolve(ctx, current, occurrences, prior)
	if err != nil {
		return Document{}, err
	}
	ordered := make([]style.Citation, 0, len(cites))
	for _, key := range numbering.Order(occurrences) {
		c := cites[key]
		if c.Unresolved {
			doc.Unresolved = append(doc.Unresolved, key)
		}
		ordered = append(ordered, c)
	}
	doc.Bibliography = style.SortBibliography(current, ordered)

	var references string
	if len(doc.Bibliography) > 0 {
		references = marker.ReferencesHeading + "\n\n" + strings.Join(doc.Entries(), "\n\n")
	}

	w := &textWriter{raw: raw}
	replaceSection := section.Found && references != ""
	writeSection := func() {
		w.copyTo(section.Start)
		if section.End < len(raw) {
			w.emit(references+"\n\n", section.End)
		} else {
			w.emit(references+"\n", section.End)
		}
		replaceSection = false
	}
	for _, group := range marker.Groups(raw, body) {
		start, end := group[0].Start, group[len(group)-1].End
		if replaceSection && start >= section.End {
			writeSection()
		}
		w.copyTo(start)
		w.emit(s.mark(current, group, cites), end)
	}
	if replaceSection {
		writeSection()
	}
	w.copyTo(len(raw))

	doc.Text = w.String()
	if !section.Found && references != "" {
		doc.Text = strings.TrimRight(doc.Text, " \t\n") + "\n\n" + references + "\n"
	}
	doc.spans = w.spans
	return doc, nil
}

// resolve numbers the keys and fetches their metadata. prior carries the
// metadata of a previous render, used when the store no longer has a key.
func (s *Session) resolve(ctx context.Context, st style.Style, occurrences []marker.Occurrence, prior []style.Citation) (map[string]style.Citation, error) {
	sequence := numbering.AssignSequence(occurrences)
	keys := numbering.Order(occurrences)

	known := make(map[string]reference.Metadata, len(prior))
	for _, c := range prior {
		if !c.Unresolved {
			known[identityOf(c.Key)] = c.Metadata
		}
	}

	cites := make(map[string]style.Citation, len(keys))
	for _, key := range keys {
		c := style.Citation{Key: key, Sequence: sequence[key]}
		md, err := s.lookup(ctx, key, known)
		if err != nil {
			var unresolved *UnresolvedReferenceError
			if s.Unresolved != Placeholder || !errors.As(err, &unresolved) {
				return nil, err
			}
			c.Unresolved = true
		}
		c.Metadata = md
		cites[key] = c
	}

	switch st {
	case style.APA, style.Harvard:
		entries := make([]numbering.AuthorYear, 0, len(keys))
		for _, key := range keys {
			c := cites[key]
			if c.Unresolved {
				continue
			}
			entries = append(entries, numbering.AuthorYear{
				Key:      key,
				Surnames: style.Surnames(c.Metadata),
				Year:     style.Year(c.Metadata),
			})
		}
		for key, suffix := range numbering.Disambiguate(entries) {
			c := cites[key]
			c.Suffix = suffix
			cites[key] = c
		}
	case style.Vancouver, style.Nature, style.AMA, style.NLM, style.MDPI:
	}
	return cites, nil
}

func (s *Session) lookup(ctx context.Context, key string, known map[string]reference.Metadata) (reference.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return reference.Metadata{}, err
	}
	id := identityOf(key)
	var cause error
	if s.Store != nil {
		md, err := s.Store.GetMetadata(ctx, key)
		if err == nil {
			s.remember(id, md)
			return md, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reference.Metadata{}, ctxErr
		}
		// a miss is unresolved; any other store failure aborts the render
		if !errors.Is(err, reference.ErrNotFound) {
			return reference.Metadata{}, fmt.Errorf("metadata for %q: %w", key, err)
		}
		cause = err
	}
	if md, ok := known[id]; ok {
		return md, nil
	}
	if md, ok := s.recall(id); ok {
		return md, nil
	}
	return reference.Metadata{}, &UnresolvedReferenceError{Key: key, Err: cause}
}

func (s *Session) remember(id string, md reference.Metadata) {
	s.mu.Lock()
	if s.known == nil {
		s.known = make(map[string]reference.Metadata)
	}
	s.known[id] = md
	s.mu.Unlock()
}

func (s *Session) recall(id string) (reference.Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	md, ok := s.known[id]
	return md, ok
}

func (s *Session) mark(st style.Style, group []marker.Marker, cites map[string]style.Citation) string {
	var keys []string
	seen := make(map[string]struct{})
	for _, m := range group {
		for _, key := range m.Keys {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	citations := make([]style.Citation, len(keys))
	for i, key := range keys {
		citations[i] = cites[key]
	}
	mark := style.RenderInText(st, citations...)
	if !s.Annotate {
		return mark
	}
	annotations := make([]string, len(keys))
	for i, key := range keys {
		annotations[i] = "[[" + key + "]]"
	}
	return mark + "<!-- " + strings.Join(annotations, " ") + " -->"
}

// locate maps the end of the first body occurrence of anchor in the rendered
// text back to an offset in the raw source.
func locate(doc Document, anchor string) (int, bool) {
	if anchor == "" {
		return 0, false
	}
	section := marker.FindReferences(doc.Text)
	from := 0
	for {
		i := strings.Index(doc.Text[from:], anchor)
		if i < 0 {
			return 0, false
		}
		start := from + i
		end := start + len(anchor)
		if !(section.Found && start < section.End && end > section.Start) {
			return rawOffset(doc.spans, end)
		}
		from = start + 1
	}
}
