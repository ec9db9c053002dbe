package tools

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrExists is returned when creating a file that already exists.
	ErrExists = errors.New("file already exists")
	// ErrWriteDisabled is returned for writes when configuration forbids them.
	ErrWriteDisabled = errors.New("write is disabled by configuration")
)

// Filesystem provides safe file operations rooted at a workspace directory.
type Filesystem struct {
	guard      *PathGuard
	allowWrite bool
}

// NewFilesystem builds a filesystem tool with write permissions controlled by allowWrite.
// The base directory is created when missing.
func NewFilesystem(baseDir string, allowWrite bool) (*Filesystem, error) {
	guard, err := NewPathGuard(baseDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(guard.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Filesystem{guard: guard, allowWrite: allowWrite}, nil
}

// Base returns the absolute workspace root.
func (f *Filesystem) Base() string {
	return f.guard.BaseDir
}

// CanWrite reports whether writes are enabled.
func (f *Filesystem) CanWrite() bool {
	return f.allowWrite
}

// ReadFile returns file contents as string.
func (f *Filesystem) ReadFile(path string) (string, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteFile writes content to a file, creating parent directories.
func (f *Filesystem) WriteFile(path string, content string) error {
	if !f.allowWrite {
		return ErrWriteDisabled
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return err
	}
	return os.WriteFile(resolved, []byte(content), 0o644)
}

// CreateFile writes a new file and fails with ErrExists when path is taken.
func (f *Filesystem) CreateFile(path string, content string) error {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(resolved); err == nil {
		return fmt.Errorf("%s: %w", path, ErrExists)
	}
	return f.WriteFile(path, content)
}

// UpdateFile replaces the content of an existing file.
func (f *Filesystem) UpdateFile(path string, content string) error {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return f.WriteFile(path, content)
}

// Delete removes a file or a directory tree. The workspace root cannot be removed.
func (f *Filesystem) Delete(path string) error {
	if !f.allowWrite {
		return ErrWriteDisabled
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return err
	}
	if resolved == f.guard.BaseDir {
		return errors.New("cannot delete the workspace root")
	}
	if _, err := os.Stat(resolved); err != nil {
		return err
	}
	return os.RemoveAll(resolved)
}

// Stat returns file info for a path inside the guard.
func (f *Filesystem) Stat(path string) (fs.FileInfo, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(resolved)
}

// ListDir lists entries in a directory (names only).
func (f *Filesystem) ListDir(path string) ([]fs.DirEntry, error) {
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(resolved)
}

// SearchResult represents a single pattern match.
type SearchResult struct {
	Path    string `json:"path"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet"`
}

// Search looks for pattern occurrences in files under root (relative path).
func (f *Filesystem) Search(root string, pattern string, maxResults int) ([]SearchResult, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, maxResults)
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if len(results) >= maxResults {
			return filepath.SkipAll
		}
		if d.IsDir() {
			if path != resolved && skipStructureDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(f.guard.BaseDir, path)

		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		lineNum := 1
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), pattern) {
				results = append(results, SearchResult{
					Path:    filepath.ToSlash(rel),
					Line:    lineNum,
					Snippet: strings.TrimSpace(scanner.Text()),
				})
				if len(results) >= maxResults {
					return filepath.SkipAll
				}
			}
			lineNum++
		}
		return nil
	})
	if err != nil {
		return results, err
	}
	return results, nil
}

// WalkFiles walks files under root and invokes fn with relative path and entry.
func (f *Filesystem) WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error {
	if fn == nil {
		return fmt.Errorf("fn is required")
	}
	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return err
	}
	count := 0
	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != resolved && skipStructureDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if maxFiles > 0 && count >= maxFiles {
			return filepath.SkipAll
		}
		rel, _ := filepath.Rel(f.guard.BaseDir, path)
		count++
		return fn(filepath.ToSlash(rel), d)
	})
}

func skipStructureDir(name string) bool {
	switch strings.ToLower(name) {
	case ".git", "node_modules", ".idea", ".vscode", "vendor", ".cache", "__pycache__", "venv", ".venv":
		return true
	default:
		return false
	}
}
