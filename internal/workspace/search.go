package workspace

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrOutsideRoot is returned for paths that resolve outside the root.
	ErrOutsideRoot = errors.New("path is outside the source root")
	// ErrNoMatch is returned when a search finds nothing.
	ErrNoMatch = errors.New("no match found")
)

// ignoreDirs are directories skipped during tree walks.
var ignoreDirs = map[string]bool{
	"node_modules": true, ".git": true, ".hg": true, ".svn": true,
	"vendor": true, "dist": true, "build": true, "target": true,
	"__pycache__": true, ".venv": true, "venv": true, ".idea": true,
	".vscode": true, "coverage": true, ".cache": true,
}

const (
	// maxFileSize caps files read or searched (256KB).
	maxFileSize = 256 * 1024
	// maxExcerptLines is how many lines a file excerpt shows.
	maxExcerptLines = 40
	// matchContext is the number of lines shown around a search hit.
	matchContext = 5
	// sniffLen is how much of a file is checked for NUL bytes.
	sniffLen = 8000
)

// Excerpt is a contiguous, line-numbered slice of a file.
type Excerpt struct {
	Path       string   `json:"path"`
	StartLine  int      `json:"start_line"`
	Lines      []string `json:"lines"`
	TotalLines int      `json:"total_lines"`
	// MatchLine is the 1-based line of a search hit, or 0 for plain reads.
	MatchLine int `json:"match_line,omitempty"`
}

// String renders the excerpt with right-aligned line numbers.
func (e *Excerpt) String() string {
	last := e.StartLine + len(e.Lines) - 1
	width := len(fmt.Sprint(last))

	var b strings.Builder
	for i, line := range e.Lines {
		n := e.StartLine + i
		marker := " "
		if n == e.MatchLine {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s%*d | %s\n", marker, width, n, line)
	}
	return b.String()
}

// Searcher reads and searches files under a source root.
type Searcher interface {
	ReadFile(ctx context.Context, path string) (*Excerpt, error)
	Search(ctx context.Context, query string) (*Excerpt, error)
}

// FSSearcher is a Searcher over the local filesystem.
type FSSearcher struct {
	root string
}

// NewFSSearcher confines reads and searches to root.
func NewFSSearcher(root string) (*FSSearcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving source root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	return &FSSearcher{root: abs}, nil
}

// Root returns the absolute source root.
func (s *FSSearcher) Root() string {
	return s.root
}

// Resolve maps path (relative to the root, or absolute) to an absolute path
// inside the root.
func (s *FSSearcher) Resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.root, path)
	}
	abs = filepath.Clean(abs)

	if !within(s.root, abs) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}

	// Symlinks must not lead out either.
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		root := s.root
		if r, err := filepath.EvalSymlinks(s.root); err == nil {
			root = r
		}
		if !within(root, real) {
			return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
		}
	}
	return abs, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadFile returns the first lines of a text file under the root.
func (s *FSSearcher) ReadFile(ctx context.Context, path string) (*Excerpt, error) {
	abs, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}

	lines, err := readTextLines(abs)
	if err != nil {
		return nil, err
	}

	shown := lines
	if len(shown) > maxExcerptLines {
		shown = shown[:maxExcerptLines]
	}
	return &Excerpt{
		Path:       s.rel(abs),
		StartLine:  1,
		Lines:      shown,
		TotalLines: len(lines),
	}, nil
}

// Search walks the root in lexical order and returns an excerpt around the
// first line containing query, compared case-insensitively.
func (s *FSSearcher) Search(ctx context.Context, query string) (*Excerpt, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, errors.New("query is required")
	}

	var found *Excerpt
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if d.IsDir() {
			if path != s.root && ignoreDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lines, err := readTextLines(path)
		if err != nil {
			return nil
		}
		for i, line := range lines {
			if strings.Contains(strings.ToLower(line), needle) {
				found = excerptAround(s.rel(path), lines, i)
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.root, err)
	}
	if found == nil {
		return nil, ErrNoMatch
	}
	return found, nil
}

// ListDirs returns the names of the visible top-level directories of root,
// sorted.
func ListDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || ignoreDirs[e.Name()] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (s *FSSearcher) rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func excerptAround(path string, lines []string, idx int) *Excerpt {
	start := max(idx-matchContext, 0)
	end := min(idx+matchContext+1, len(lines))
	return &Excerpt{
		Path:       path,
		StartLine:  start + 1,
		Lines:      lines[start:end],
		TotalLines: len(lines),
		MatchLine:  idx + 1,
	}
}

// readTextLines reads a file's lines, rejecting directories, oversized
// files and anything that looks binary.
func readTextLines(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", filepath.Base(path))
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s is too large (%d bytes)", filepath.Base(path), info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isBinary(data) {
		return nil, fmt.Errorf("%s is a binary file", filepath.Base(path))
	}

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxFileSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func isBinary(data []byte) bool {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
