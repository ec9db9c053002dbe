// Package documents serves upload and retrieval of context documents.
package documents

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

const (
	msgNoFile    = "No se ha proporcionado ningún archivo"
	msgEmptyName = "Nombre de archivo vacío"
	msgNotFound  = "El documento no existe"
)

// Handler exposes a documents.Store over HTTP.
type Handler struct {
	store  *documents.Store
	logger *zap.Logger
}

// NewHandler builds a Handler. logger may be nil.
func NewHandler(store *documents.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger.Named("documents")}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents/upload", h.upload)
	mux.HandleFunc("GET /api/documents/list", h.list)
	mux.HandleFunc("GET /api/documents/info/{name}", h.info)
	mux.HandleFunc("GET /api/documents/content/{name}", h.content)
	mux.HandleFunc("DELETE /api/documents/delete/{name}", h.delete)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxBytes()+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rpc.WriteError(w, http.StatusRequestEntityTooLarge, documents.ErrTooLarge.Error())
			return
		}
		rpc.WriteError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()
	if strings.TrimSpace(header.Filename) == "" {
		rpc.WriteError(w, http.StatusBadRequest, msgEmptyName)
		return
	}

	// Some browsers send the client path; only the base name is kept.
	name := header.Filename[strings.LastIndexAny(header.Filename, `/\`)+1:]
	info, err := h.store.Save(name, file)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.logger.Info("document uploaded", zap.String("file", info.Filename), zap.Int64("size", info.Size))
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Documento subido correctamente",
		"document": info,
	})
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	docs, err := h.store.List()
	if err != nil {
		h.fail(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.Info(r.PathValue("name"))
	if err != nil {
		h.fail(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "document": info})
}

func (h *Handler) content(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		f, err := h.store.Raw(name)
		if err != nil {
			h.fail(w, err)
			return
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			h.fail(w, err)
			return
		}
		http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
		return
	}
	doc, err := h.store.Context(name, -1)
	if err != nil {
		h.fail(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"filename":   doc.Source,
		"content":    doc.Content,
		"word_count": doc.WordCount,
		"truncated":  doc.Truncated,
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.store.Delete(name); err != nil {
		h.fail(w, err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Documento %s eliminado correctamente", name),
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rpc.WriteError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, documents.ErrUnsupported):
		rpc.WriteError(w, http.StatusBadRequest, "Formato de archivo no permitido. Formatos soportados: "+strings.Join(documents.Extensions(), ", "))
	case errors.Is(err, documents.ErrInvalidName), errors.Is(err, documents.ErrNoText):
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, documents.ErrTooLarge):
		rpc.WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		h.logger.Warn("document request failed", zap.Error(err))
		rpc.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
