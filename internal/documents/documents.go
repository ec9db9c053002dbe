// Package documents stores uploaded reference documents and extracts their
// text for use as chat context.
package documents

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/josedcape/codestorm-preeliminar/internal/markdown"
)

const (
	// DefaultMaxBytes caps an upload.
	DefaultMaxBytes = 10 << 20
	// PreviewLength is the rune length of a document preview.
	PreviewLength = 1000
	// ContextLength is the rune length of text handed to an agent.
	ContextLength = 10000

	truncatedSuffix = "... [Contenido truncado debido a su longitud]"
)

var (
	// ErrUnsupported is returned for extensions without a text extractor.
	ErrUnsupported = errors.New("formato de archivo no permitido")
	// ErrInvalidName is returned for empty names or names with path elements.
	ErrInvalidName = errors.New("nombre de archivo no válido")
	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("el documento supera el tamaño máximo")
	// ErrNoText is returned when a document yields no text.
	ErrNoText = errors.New("no se pudo extraer texto del documento")
)

var extractors = map[string]func([]byte) (string, error){
	".txt": plainText, ".py": plainText, ".js": plainText, ".ts": plainText, ".go": plainText,
	".css": plainText, ".json": plainText, ".csv": plainText, ".xml": plainText,
	".yml": plainText, ".yaml": plainText, ".toml": plainText, ".sql": plainText,
	".html": htmlText, ".htm": htmlText,
	".md": markdownText,
}

// Extensions lists the accepted file extensions in order.
func Extensions() []string {
	out := make([]string, 0, len(extractors))
	for ext := range extractors {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

// Info describes a stored document.
type Info struct {
	Filename     string    `json:"filename"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	WordCount    int       `json:"word_count,omitempty"`
	Preview      string    `json:"preview,omitempty"`
}

// Context is extracted document text ready to be placed in a prompt.
type Context struct {
	Source    string `json:"source"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Store keeps documents as plain files in one directory.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates dir when missing. A non-positive maxBytes uses DefaultMaxBytes.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("documents dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{dir: abs, maxBytes: maxBytes}, nil
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// MaxBytes returns the upload limit.
func (s *Store) MaxBytes() int64 { return s.maxBytes }

func (s *Store) path(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", "", ErrInvalidName
	}
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := extractors[ext]; !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	return filepath.Join(s.dir, name), ext, nil
}

// Save writes r under name, replacing an existing document, and returns its
// info with a preview. Documents without extractable text are not kept.
func (s *Store) Save(name string, r io.Reader) (Info, error) {
	p, _, err := s.path(name)
	if err != nil {
		return Info{}, err
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return Info{}, err
	}
	if int64(len(data)) > s.maxBytes {
		return Info{}, ErrTooLarge
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return Info{}, err
	}
	info, err := s.Info(filepath.Base(p))
	if err != nil {
		_ = os.Remove(p)
		return Info{}, err
	}
	return info, nil
}

// List returns stored documents, most recently modified first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := extractors[ext]; !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Info{Filename: e.Name(), Type: ext, Size: fi.Size(), LastModified: fi.ModTime().UTC()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// Info returns a document's metadata, word count and preview.
func (s *Store) Info(name string) (Info, error) {
	p, ext, err := s.path(name)
	if err != nil {
		return Info{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		return Info{}, err
	}
	text, err := s.Text(name)
	if err != nil {
		return Info{}, err
	}
	preview, _ := truncate(text, PreviewLength, "...")
	return Info{
		Filename:     fi.Name(),
		Type:         ext,
		Size:         fi.Size(),
		LastModified: fi.ModTime().UTC(),
		WordCount:    len(strings.Fields(text)),
		Preview:      preview,
	}, nil
}

// Raw opens the stored file.
func (s *Store) Raw(name string) (*os.File, error) {
	p, _, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Text returns the extracted text of a document.
func (s *Store) Text(name string) (string, error) {
	p, ext, err := s.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	text, err := extractors[ext](data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Context loads a document as agent context, truncated to maxLen runes
// (ContextLength when non-positive).
func (s *Store) Context(name string, maxLen int) (Context, error) {
	text, err := s.Text(name)
	if err != nil {
		return Context{}, err
	}
	if maxLen <= 0 {
		maxLen = ContextLength
	}
	text, cut := truncate(text, maxLen, truncatedSuffix)
	return Context{
		Source:    filepath.Base(name),
		Type:      strings.ToLower(filepath.Ext(name)),
		Content:   text,
		WordCount: len(strings.Fields(text)),
		Truncated: cut,
	}, nil
}

// Delete removes a document.
func (s *Store) Delete(name string) error {
	p, _, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func truncate(text string, limit int, suffix string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]) + suffix, true
}

func plainText(data []byte) (string, error) {
	return string(data), nil
}

func markdownText(data []byte) (string, error) {
	rendered, err := markdown.Render(string(data))
	if err != nil {
		return "", err
	}
	return htmlText([]byte(rendered))
}

// htmlText returns the visible text of an HTML document with whitespace
// collapsed.
func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(b.String()), " "), nil
}
