package workspace

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func (f *fixture) raw(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestDownloadFile(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, "proj/app.py", "print('hola')")

	rr := f.raw(t, "/api/download_file/proj/app.py")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "print('hola')", rr.Body.String())
	require.Contains(t, rr.Header().Get("Content-Disposition"), `filename=app.py`)

	code, out := f.do(t, http.MethodGet, "/api/download_file/proj", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, msgDirAsFile, out["error"])

	code, out = f.do(t, http.MethodGet, "/api/download_file/proj/missing.py", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, msgNoFile, out["error"])
}

func TestDownloadDirectoryAsZip(t *testing.T) {
	f := newFixture(t, false)
	f.write(t, "proj/app.py", "print('hola')")
	f.write(t, "proj/templates/index.html", "<h1>hola</h1>")

	rr := f.raw(t, "/api/download_directory/proj")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
	require.Contains(t, rr.Header().Get("Content-Disposition"), "proj.zip")

	data := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var got []string
	for _, file := range zr.File {
		got = append(got, file.Name)
		if file.Name == "proj/app.py" {
			rc, err := file.Open()
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			require.Equal(t, "print('hola')", string(body))
		}
	}
	sort.Strings(got)
	require.Equal(t, []string{"proj/app.py", "proj/templates/index.html"}, got)

	code, out := f.do(t, http.MethodGet, "/api/download_directory/proj/app.py", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, msgNoDir, out["error"])
}
