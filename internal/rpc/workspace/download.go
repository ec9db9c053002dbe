package workspace

import (
	"bytes"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

const (
	msgNoFile     = "El archivo no existe"
	msgNoDir      = "El directorio no existe"
	msgDirAsFile  = "No se puede descargar un directorio. Use la opción de descargar como ZIP"
	zipMediaType  = "application/zip"
	workspaceName = "workspace"
)

func attachment(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
}

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "filesystem unavailable")
		return
	}
	p := cleanPath(r.PathValue("path"))
	if p == "." {
		rpc.WriteError(w, http.StatusBadRequest, msgNeedPath)
		return
	}
	file, info, err := fsys.Open(p)
	if err != nil {
		h.fail(w, err, msgNoFile)
		return
	}
	defer file.Close()
	if info.IsDir() {
		rpc.WriteError(w, http.StatusBadRequest, msgDirAsFile)
		return
	}
	attachment(w, info.Name())
	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}

func (h *Handler) downloadDirectory(w http.ResponseWriter, r *http.Request) {
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "filesystem unavailable")
		return
	}
	dir := cleanPath(r.PathValue("path"))
	info, err := fsys.Stat(dir)
	if err == nil && !info.IsDir() {
		err = fs.ErrNotExist
	}
	if err != nil {
		h.fail(w, err, msgNoDir)
		return
	}

	var buf bytes.Buffer
	n, err := fsys.WriteZip(&buf, dir)
	if err != nil {
		if errors.Is(err, tools.ErrOutsideWorkspace) || errors.Is(err, fs.ErrNotExist) {
			h.fail(w, err, msgNoDir)
			return
		}
		h.logger.Warn("archive directory", zap.String("path", dir), zap.Error(err))
		rpc.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	name := path.Base(dir)
	if dir == "." {
		name = workspaceName
	}
	h.logger.Debug("directory archived", zap.String("path", dir), zap.Int("files", n))
	attachment(w, name+".zip")
	w.Header().Set("Content-Type", zipMediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
