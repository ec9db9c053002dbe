package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned for paths that leave the base directory.
var ErrOutsideWorkspace = errors.New("path is outside the workspace")

// PathGuard ensures operations stay within a base directory.
type PathGuard struct {
	BaseDir string
}

// NewPathGuard constructs a guard rooted at baseDir (defaults to current working directory).
func NewPathGuard(baseDir string) (*PathGuard, error) {
	if baseDir == "" {
		var err error
		baseDir, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &PathGuard{BaseDir: absBase}, nil
}

// Resolve validates and returns an absolute path inside BaseDir.
func (g *PathGuard) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths are not allowed: %w", ErrOutsideWorkspace)
	}
	abs := filepath.Join(g.BaseDir, clean)
	abs = filepath.Clean(abs)

	if !g.within(abs) {
		return "", fmt.Errorf("%s escapes base directory: %w", p, ErrOutsideWorkspace)
	}
	if err := g.checkLinks(p, abs); err != nil {
		return "", err
	}
	return abs, nil
}

func (g *PathGuard) within(abs string) bool {
	return abs == g.BaseDir || strings.HasPrefix(abs, g.BaseDir+string(os.PathSeparator))
}

// checkLinks rejects paths whose deepest existing ancestor is a symlink
// leading out of BaseDir.
func (g *PathGuard) checkLinks(p, abs string) error {
	base, err := filepath.EvalSymlinks(g.BaseDir)
	if err != nil {
		return nil
	}
	for dir := abs; g.within(dir); dir = filepath.Dir(dir) {
		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			continue
		}
		if resolved != base && !strings.HasPrefix(resolved, base+string(os.PathSeparator)) {
			return fmt.Errorf("%s links outside base directory: %w", p, ErrOutsideWorkspace)
		}
		return nil
	}
	return nil
}
