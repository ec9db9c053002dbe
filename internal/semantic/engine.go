// Package semantic ranks workspace files by word overlap with a query.
package semantic

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// FileWalker abstracts file traversal and reading.
type FileWalker interface {
	WalkFiles(root string, maxFiles int, fn func(rel string, info fs.DirEntry) error) error
	ReadFile(path string) (string, error)
}

// Engine performs relevance search across workspace files.
type Engine struct {
	fs           FileWalker
	maxFiles     int
	maxFileBytes int
}

// Result captures a search hit.
type Result struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
}

// NewEngine constructs an engine over the provided walker.
func NewEngine(fw FileWalker, maxFiles int, maxFileBytes int) *Engine {
	if maxFiles <= 0 {
		maxFiles = 200
	}
	if maxFileBytes <= 0 {
		maxFileBytes = 64 * 1024
	}
	return &Engine{fs: fw, maxFiles: maxFiles, maxFileBytes: maxFileBytes}
}

// Search returns the top files under root ranked by the share of query words
// they contain. Ties sort by path.
func (e *Engine) Search(root, query string, limit int) ([]Result, error) {
	if e == nil || e.fs == nil {
		return nil, fmt.Errorf("semantic engine unavailable")
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if root == "" {
		root = "."
	}
	if limit <= 0 {
		limit = 5
	}

	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil, fmt.Errorf("query too short")
	}

	results := make([]Result, 0, limit*2)
	err := e.fs.WalkFiles(root, e.maxFiles, func(rel string, info fs.DirEntry) error {
		if info.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		content, err := e.fs.ReadFile(rel)
		if err != nil || !utf8.ValidString(content) {
			return nil
		}
		if len(content) > e.maxFileBytes {
			content = content[:e.maxFileBytes]
		}
		// File names count as content so "login" finds login.js.
		score := overlapScore(qTokens, tokenize(rel+" "+content))
		if score <= 0 {
			return nil
		}
		results = append(results, Result{Path: rel, Score: score, Snippet: summarize(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].Path < results[j].Path
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func overlapScore(query, doc []string) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		seen[t] = struct{}{}
	}
	var overlap int
	for _, q := range query {
		if _, ok := seen[q]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(query))
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopwords = map[string]bool{
	"a": true, "de": true, "del": true, "el": true, "en": true, "la": true, "las": true, "los": true,
	"un": true, "una": true, "y": true, "o": true, "que": true, "con": true, "por": true, "para": true,
	"the": true, "of": true, "and": true, "to": true, "in": true,
}

func tokenize(s string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(s), -1)
	out := matches[:0]
	for _, m := range matches {
		if !stopwords[m] {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func summarize(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		return truncate(trim, 200)
	}
	return truncate(content, 200)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
