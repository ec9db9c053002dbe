package documents

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "docs"), maxBytes)
	require.NoError(t, err)
	return s
}

func TestSaveAndInfo(t *testing.T) {
	s := newStore(t, 0)
	info, err := s.Save("notas.txt", strings.NewReader("uno dos tres"))
	require.NoError(t, err)
	require.Equal(t, "notas.txt", info.Filename)
	require.Equal(t, ".txt", info.Type)
	require.Equal(t, int64(12), info.Size)
	require.Equal(t, 3, info.WordCount)
	require.Equal(t, "uno dos tres", info.Preview)
}

func TestSaveRejectsNamesAndFormats(t *testing.T) {
	s := newStore(t, 8)
	_, err := s.Save("../fuera.txt", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.Save("", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.Save("informe.pdf", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrUnsupported)
	_, err = s.Save("grande.txt", strings.NewReader("123456789"))
	require.ErrorIs(t, err, ErrTooLarge)
	_, err = os.Stat(filepath.Join(s.Dir(), "grande.txt"))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestPreviewIsTruncated(t *testing.T) {
	s := newStore(t, 0)
	_, err := s.Save("largo.txt", strings.NewReader(strings.Repeat("ñ", PreviewLength+10)))
	require.NoError(t, err)
	info, err := s.Info("largo.txt")
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("ñ", PreviewLength)+"...", info.Preview)
}

func TestHTMLAndMarkdownExtraction(t *testing.T) {
	s := newStore(t, 0)
	_, err := s.Save("page.html", strings.NewReader(`<html><head><style>p{}</style><script>alert(1)</script></head>
<body><h1>Título</h1>
<p>Hola   <b>mundo</b></p></body></html>`))
	require.NoError(t, err)
	text, err := s.Text("page.html")
	require.NoError(t, err)
	require.Equal(t, "Título Hola mundo", text)

	_, err = s.Save("README.md", strings.NewReader("# Guía\n\nUsa **go test** para probar.\n"))
	require.NoError(t, err)
	text, err = s.Text("README.md")
	require.NoError(t, err)
	require.Equal(t, "Guía Usa go test para probar.", text)
}

func TestContextTruncatesLongDocuments(t *testing.T) {
	s := newStore(t, 0)
	_, err := s.Save("log.txt", strings.NewReader(strings.Repeat("a ", 50)))
	require.NoError(t, err)

	doc, err := s.Context("log.txt", 20)
	require.NoError(t, err)
	require.True(t, doc.Truncated)
	require.Equal(t, strings.Repeat("a ", 10)+truncatedSuffix, doc.Content)
	require.Equal(t, "log.txt", doc.Source)

	doc, err = s.Context("log.txt", 0)
	require.NoError(t, err)
	require.False(t, doc.Truncated)
	require.Equal(t, 50, doc.WordCount)
}

func TestEmptyDocumentHasNoText(t *testing.T) {
	s := newStore(t, 0)
	_, err := s.Save("vacio.txt", strings.NewReader("   \n"))
	require.ErrorIs(t, err, ErrNoText)
	docs, err := s.List()
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestListNewestFirstAndDelete(t *testing.T) {
	s := newStore(t, 0)
	for _, name := range []string{"a.txt", "b.md"} {
		_, err := s.Save(name, strings.NewReader("contenido"))
		require.NoError(t, err)
	}
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), "a.txt"), old, old))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "ignorado.bin"), []byte{1}, 0o644))

	docs, err := s.List()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "b.md", docs[0].Filename)
	require.Equal(t, "a.txt", docs[1].Filename)

	require.NoError(t, s.Delete("a.txt"))
	require.ErrorIs(t, s.Delete("a.txt"), fs.ErrNotExist)
	_, err = s.Info("a.txt")
	require.ErrorIs(t, err, fs.ErrNotExist)
}
