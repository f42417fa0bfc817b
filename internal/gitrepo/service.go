package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile  = "content.json"
	renderedFile = "draft.md"
	mainBranch   = "main"
)

var (
	ErrDraftNotFound = errors.New("draft not found")
	ErrDraftExists   = errors.New("draft already exists")
	ErrInvalidName   = errors.New("invalid draft name")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Content is what every commit of a draft holds. Source is the canonical
// editable text; Rendered is derived from it and Style.
type Content struct {
	Name     string `json:"name"`
	Style    string `json:"style"`
	Source   string `json:"source"`
	Rendered string `json:"rendered"`
}

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// ValidateName rejects names that are not safe as a directory name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Lock serializes writers of one draft. Callers that read, render and
// commit hold it across the whole sequence and use the *Locked methods.
func (s *Service) Lock(name string) func() {
	lock := s.draftLock(name)
	lock.Lock()
	return lock.Unlock
}

// Exists reports whether a repository exists for name.
func (s *Service) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.repoPath(name), ".git"))
	return err == nil
}

// CreateDraftRepo initialises the repository for a new draft with a
// baseline commit.
func (s *Service) CreateDraftRepo(initial Content, author string) (CommitInfo, error) {
	unlock := s.Lock(initial.Name)
	defer unlock()
	return s.CreateDraftRepoLocked(initial, author)
}

func (s *Service) CreateDraftRepoLocked(initial Content, author string) (CommitInfo, error) {
	if err := ValidateName(initial.Name); err != nil {
		return CommitInfo{}, err
	}
	path := s.repoPath(initial.Name)
	if _, err := os.Stat(path); err == nil {
		return CommitInfo{}, fmt.Errorf("%w: %s", ErrDraftExists, initial.Name)
	} else if !errors.Is(err, os.ErrNotExist) {
		return CommitInfo{}, fmt.Errorf("stat repo path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return CommitInfo{}, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return CommitInfo{}, fmt.Errorf("set HEAD to main: %w", err)
	}

	hash, err := s.commit(repo, initial, author, "Create draft "+initial.Name)
	if err != nil {
		return CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// CommitContent records a new version of the draft on main.
func (s *Service) CommitContent(content Content, author, message string) (CommitInfo, error) {
	unlock := s.Lock(content.Name)
	defer unlock()
	return s.CommitContentLocked(content, author, message)
}

func (s *Service) CommitContentLocked(content Content, author, message string) (CommitInfo, error) {
	repo, err := s.open(content.Name)
	if err != nil {
		return CommitInfo{}, err
	}
	hash, err := s.commit(repo, content, author, message)
	if err != nil {
		return CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// GetHeadContent returns the latest version of the draft.
func (s *Service) GetHeadContent(name string) (Content, CommitInfo, error) {
	unlock := s.Lock(name)
	defer unlock()
	return s.GetHeadContentLocked(name)
}

func (s *Service) GetHeadContentLocked(name string) (Content, CommitInfo, error) {
	repo, err := s.open(name)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return Content{}, CommitInfo{}, fmt.Errorf("load commit object: %w", err)
	}
	content, err := readContentFromCommit(commitObj)
	if err != nil {
		return Content{}, CommitInfo{}, err
	}
	return content, toCommitInfo(commitObj), nil
}

func (s *Service) GetContentByHash(name, hash string) (Content, error) {
	unlock := s.Lock(name)
	defer unlock()

	repo, err := s.open(name)
	if err != nil {
		return Content{}, err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return Content{}, err
	}
	commitObj, err := repo.CommitObject(resolvedHash)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContentFromCommit(commitObj)
}

func (s *Service) History(name string, limit int) ([]CommitInfo, error) {
	unlock := s.Lock(name)
	defer unlock()

	repo, err := s.open(name)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", mainBranch, err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, max(limit, 0))
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// CreateTag marks a version, e.g. the one sent to a journal. Tagging the
// same name twice is not an error.
func (s *Service) CreateTag(name, hash, tag string) error {
	unlock := s.Lock(name)
	defer unlock()

	repo, err := s.open(name)
	if err != nil {
		return err
	}
	resolvedHash, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag(tag, resolvedHash, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "Folio",
			Email: "folio@localhost",
			When:  time.Now(),
		},
		Message: tag,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

func (s *Service) repoPath(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *Service) open(name string) (*git.Repository, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	repo, err := git.PlainOpen(s.repoPath(name))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrDraftNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) draftLock(name string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[name]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[name] = lock
	return lock
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (plumbing.Hash, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal content: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, renderedFile), []byte(content.Rendered), 0o644); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write %s: %w", renderedFile, err)
	}
	for _, file := range []string{contentFile, renderedFile} {
		if _, err := worktree.Add(file); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("git add %s: %w", file, err)
		}
	}

	if author == "" {
		author = "folio"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.folio.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("commit content: %w", err)
	}
	return hash, nil
}

func readContentFromCommit(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return Content{}, fmt.Errorf("open content reader: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Content{}, fmt.Errorf("read content bytes: %w", err)
	}
	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

// DiffFields lists the fields that differ between two versions. Source and
// rendered text are summarised by length.
func DiffFields(from, to Content) []map[string]string {
	type pair struct {
		field  string
		before string
		after  string
	}
	pairs := []pair{
		{field: "name", before: from.Name, after: to.Name},
		{field: "style", before: from.Style, after: to.Style},
		{field: "source", before: from.Source, after: to.Source},
		{field: "rendered", before: from.Rendered, after: to.Rendered},
	}
	result := make([]map[string]string, 0)
	for _, item := range pairs {
		if item.before == item.after {
			continue
		}
		before, after := item.before, item.after
		if item.field == "source" || item.field == "rendered" {
			before = fmt.Sprintf("[%d bytes]", len(before))
			after = fmt.Sprintf("[%d bytes]", len(after))
		}
		result = append(result, map[string]string{
			"field":  item.field,
			"before": before,
			"after":  after,
		})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i]["field"] < result[j]["field"]
	})
	return result
}

func HasChanges(from, to Content) bool {
	return from != to
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
