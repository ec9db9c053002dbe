// Package markdown extracts code blocks from model responses and renders them to HTML.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var fencePattern = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")

// CodeBlock is a fenced block found in a response.
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// ExtractCodeBlocks returns fenced code blocks in order of appearance. Blocks
// without a language tag are reported as "plaintext".
func ExtractCodeBlocks(text string) []CodeBlock {
	var blocks []CodeBlock
	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		lang := m[1]
		if lang == "" {
			lang = "plaintext"
		}
		blocks = append(blocks, CodeBlock{Language: lang, Code: strings.TrimSpace(m[2])})
	}
	return blocks
}

// FirstCode returns the first code block's body, or text trimmed when there is none.
func FirstCode(text string) string {
	if blocks := ExtractCodeBlocks(text); len(blocks) > 0 {
		return blocks[0].Code
	}
	return strings.TrimSpace(text)
}

var renderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Render converts markdown to HTML. Raw HTML in the input is escaped.
func Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := renderer.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
