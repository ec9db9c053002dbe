package tools

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
)

func zipNames(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	requireNoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		requireNoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		requireNoError(t, err)
		out[f.Name] = string(body)
	}
	return out
}

func TestWriteZipNamesEntriesFromDirectory(t *testing.T) {
	fsTool, err := NewFilesystem(t.TempDir(), true)
	requireNoError(t, err)
	requireNoError(t, fsTool.WriteFile("proj/app/main.py", "print('hola')"))
	requireNoError(t, fsTool.WriteFile("proj/app/static/style.css", "body{}"))
	requireNoError(t, fsTool.WriteFile("proj/app/node_modules/x.js", "skip"))
	requireNoError(t, fsTool.WriteFile("other.txt", "no"))

	var buf bytes.Buffer
	n, err := fsTool.WriteZip(&buf, "proj/app")
	requireNoError(t, err)
	if n != 2 {
		t.Fatalf("archived %d files, want 2", n)
	}
	files := zipNames(t, buf.Bytes())
	var names []string
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "app/main.py" || names[1] != "app/static/style.css" {
		t.Fatalf("unexpected entries %v", names)
	}
	if files["app/main.py"] != "print('hola')" {
		t.Fatalf("unexpected content %q", files["app/main.py"])
	}

	buf.Reset()
	n, err = fsTool.WriteZip(&buf, ".")
	requireNoError(t, err)
	if n != 3 {
		t.Fatalf("archived %d files from root, want 3", n)
	}
	if _, ok := zipNames(t, buf.Bytes())["other.txt"]; !ok {
		t.Fatalf("root archive misses other.txt")
	}
}

func TestWriteZipRejectsFilesAndEscapes(t *testing.T) {
	fsTool, err := NewFilesystem(t.TempDir(), true)
	requireNoError(t, err)
	requireNoError(t, fsTool.WriteFile("a.txt", "x"))

	if _, err := fsTool.WriteZip(io.Discard, "a.txt"); err == nil {
		t.Fatalf("expected error for a regular file")
	}
	if _, err := fsTool.WriteZip(io.Discard, "../"); !errors.Is(err, ErrOutsideWorkspace) {
		t.Fatalf("expected outside workspace error, got %v", err)
	}
	if _, err := fsTool.WriteZip(io.Discard, "missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}
