package tools

import (
	"testing"

	"github.com/josedcape/codestorm-preeliminar/internal/semantic"
)

func TestValidateCallSchema(t *testing.T) {
	fsTool, err := NewFilesystem(t.TempDir(), false)
	requireNoError(t, err)
	reg := NewRegistry(fsTool, nil, nil)

	if err := ValidateCall(reg, "fs.read_file", map[string]interface{}{"path": "file.txt"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateCall(reg, "fs.read_file", map[string]interface{}{}); err == nil {
		t.Fatalf("expected missing path error")
	}
	if err := ValidateCall(reg, "terminal.run", map[string]interface{}{"command": 123}); err == nil {
		t.Fatalf("expected type error")
	}
	if err := ValidateCall(reg, "fs.create_file", map[string]interface{}{"path": "a.txt"}); err == nil {
		t.Fatalf("expected write disabled error")
	}
	if err := ValidateCall(reg, "fs.search", map[string]interface{}{"query": "x", "type": "fuzzy"}); err == nil {
		t.Fatalf("expected enum error")
	}
	if err := ValidateCall(reg, "git.apply_patch", map[string]interface{}{}); err == nil {
		t.Fatalf("expected unknown tool error")
	}
}

func TestValidateTerminalRun(t *testing.T) {
	reg := NewRegistry(nil, &Terminal{AllowExecution: true}, nil)
	if err := ValidateCall(reg, "terminal.run", map[string]interface{}{"command": "ls"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg = NewRegistry(nil, &Terminal{}, nil)
	if err := ValidateCall(reg, "terminal.run", map[string]interface{}{"command": "ls"}); err == nil {
		t.Fatalf("expected exec disabled error")
	}
}

func TestValidateSemanticSearch(t *testing.T) {
	reg := NewRegistry(nil, nil, nil)
	if err := ValidateCall(reg, "semantic.search", map[string]interface{}{"query": "hi"}); err == nil {
		t.Fatalf("expected error when semantic engine is nil")
	}
	reg = NewRegistry(nil, nil, &semantic.Engine{})
	if err := ValidateCall(reg, "semantic.search", map[string]interface{}{"query": "hi", "limit": 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
