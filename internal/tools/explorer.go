package tools

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one node of a directory listing.
type Entry struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"` // file or directory
	Path     string  `json:"path"`
	FileType string  `json:"file_type,omitempty"`
	Size     int64   `json:"size,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// FileType returns the lower-case extension of path without the dot.
func FileType(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// List returns the entries under path down to maxDepth levels. Hidden entries
// are skipped; directories sort before files, then by name.
func (f *Filesystem) List(path string, maxDepth int) ([]Entry, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	resolved, err := f.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	return f.list(resolved, 1, maxDepth)
}

func (f *Filesystem) list(dir string, depth, maxDepth int) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, d := range dirEntries {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)
		rel, _ := filepath.Rel(f.guard.BaseDir, full)
		e := Entry{Name: name, Path: filepath.ToSlash(rel)}
		if d.IsDir() {
			e.Type = "directory"
			if depth < maxDepth {
				if children, err := f.list(full, depth+1, maxDepth); err == nil {
					e.Children = children
				}
			}
		} else {
			info, err := d.Info()
			if err != nil {
				continue
			}
			e.Type = "file"
			e.FileType = FileType(name)
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if (out[i].Type == "directory") != (out[j].Type == "directory") {
			return out[i].Type == "directory"
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Search kinds accepted by Find.
const (
	FindByName      = "name"
	FindByExtension = "extension"
	FindByContent   = "content"
)

var textExtensions = map[string]bool{
	"txt": true, "md": true, "py": true, "js": true, "html": true, "css": true, "json": true,
	"xml": true, "csv": true, "ts": true, "jsx": true, "tsx": true, "vue": true, "php": true,
	"java": true, "c": true, "cpp": true, "h": true, "sh": true, "bat": true, "go": true,
	"yaml": true, "yml": true, "toml": true,
}

// Find returns workspace-relative paths under root matching query. Names and
// extensions match case-insensitively; content search only reads text files.
func (f *Filesystem) Find(root, query, kind string, maxResults int) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	if kind == "" {
		kind = FindByName
	}
	needle := strings.ToLower(query)
	if kind == FindByExtension {
		needle = "." + strings.TrimPrefix(needle, ".")
	}
	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return nil, err
	}

	var found []string
	err = filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == resolved {
			return nil
		}
		if maxResults > 0 && len(found) >= maxResults {
			return filepath.SkipAll
		}
		if d.IsDir() && skipStructureDir(d.Name()) {
			return filepath.SkipDir
		}
		name := strings.ToLower(d.Name())
		match := false
		switch kind {
		case FindByName:
			match = strings.Contains(name, needle)
		case FindByExtension:
			match = !d.IsDir() && strings.HasSuffix(name, needle)
		case FindByContent:
			if d.IsDir() || !textExtensions[FileType(name)] {
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			match = strings.Contains(strings.ToLower(string(data)), needle)
		default:
			return fmt.Errorf("unknown search type %q", kind)
		}
		if match {
			rel, _ := filepath.Rel(f.guard.BaseDir, path)
			found = append(found, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return found, err
	}
	return found, nil
}

var importantFiles = map[string]bool{
	"package.json": true, "package-lock.json": true, "requirements.txt": true, "setup.py": true,
	"Dockerfile": true, "docker-compose.yml": true, ".gitignore": true, "README.md": true,
	"LICENSE": true, "Makefile": true, "CMakeLists.txt": true, "tsconfig.json": true,
	"webpack.config.js": true, "babel.config.js": true, "jest.config.js": true, "angular.json": true,
	"pubspec.yaml": true, "go.mod": true, "Cargo.toml": true, "pyproject.toml": true,
}

// Analysis summarizes a project directory.
type Analysis struct {
	Structure      []Entry        `json:"structure"`
	Outline        string         `json:"outline"`
	FileCount      int            `json:"file_count"`
	FileTypes      map[string]int `json:"file_types"`
	ImportantFiles []string       `json:"important_files"`
}

// Analyze lists root, counts files by type and flags well-known project files.
func (f *Filesystem) Analyze(root string, maxDepth int) (Analysis, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	structure, err := f.List(root, maxDepth)
	if err != nil {
		return Analysis{}, err
	}
	outline, err := f.DescribeStructure(root, maxDepth, 200)
	if err != nil {
		return Analysis{}, err
	}

	a := Analysis{Structure: structure, Outline: outline, FileTypes: make(map[string]int)}
	err = f.WalkFiles(root, 0, func(rel string, d fs.DirEntry) error {
		a.FileCount++
		ft := FileType(rel)
		if ft == "" {
			ft = "unknown"
		}
		a.FileTypes[ft]++
		if importantFiles[d.Name()] {
			a.ImportantFiles = append(a.ImportantFiles, rel)
		}
		return nil
	})
	if err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// DescribeStructure returns a tree-like outline for a directory with depth/entry caps.
func (f *Filesystem) DescribeStructure(root string, maxDepth int, maxEntries int) (string, error) {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	if maxEntries <= 0 {
		maxEntries = 200
	}

	resolved, err := f.guard.Resolve(root)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", root)
	}

	lines := []string{filepath.Clean(root) + "/"}
	added := 0

	var walk func(string, int) error
	walk = func(path string, depth int) error {
		if depth > maxDepth {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			name := e.Name()
			if skipStructureDir(name) {
				continue
			}

			prefix := strings.Repeat("  ", depth-1)
			line := fmt.Sprintf("%s- %s", prefix, name)
			if e.IsDir() {
				line += "/"
			}
			lines = append(lines, line)
			added++
			if added >= maxEntries {
				lines = append(lines, fmt.Sprintf("%s... truncated after %d entries", prefix, maxEntries))
				return filepath.SkipAll
			}

			if e.IsDir() {
				if err := walk(filepath.Join(path, name), depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(resolved, 1); err != nil && !errors.Is(err, filepath.SkipAll) {
		return "", err
	}

	return strings.Join(lines, "\n"), nil
}
