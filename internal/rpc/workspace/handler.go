// Package workspace serves the file explorer, terminal and command endpoints.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/cache"
	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

const (
	defaultListDepth = 2
	maxListDepth     = 5
	maxSearchResults = 100

	msgOutside   = "Acceso denegado: la ruta se sale del espacio de trabajo"
	msgNeedPath  = "Debe especificar una ruta de archivo"
	msgNeedBody  = "Debe especificar una ruta de archivo y contenido"
	msgNeedQuery = "Debe especificar un texto de búsqueda"
	msgNoCommand = "No command provided"
)

// Options configure a Handler. Cache, Executor and Logger may be nil.
type Options struct {
	Tools    *tools.Registry
	Executor *commands.Executor
	Cache    cache.Cache
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// Handler exposes the workspace tools over HTTP.
type Handler struct {
	tools    *tools.Registry
	executor *commands.Executor
	cache    cache.Cache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := opts.Cache
	if c == nil {
		c = cache.NewMemory(opts.CacheTTL)
	}
	return &Handler{
		tools:    opts.Tools,
		executor: opts.Executor,
		cache:    c,
		ttl:      opts.CacheTTL,
		logger:   logger.Named("workspace"),
	}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/explorer/list", h.list)
	mux.HandleFunc("GET /api/explorer/file", h.readFile)
	mux.HandleFunc("POST /api/explorer/file", h.updateFile)
	mux.HandleFunc("PUT /api/explorer/file", h.createFile)
	mux.HandleFunc("POST /api/explorer/delete", h.delete)
	mux.HandleFunc("DELETE /api/explorer/delete", h.delete)
	mux.HandleFunc("GET /api/explorer/search", h.search)
	mux.HandleFunc("GET /api/explorer/analyze", h.analyze)
	mux.HandleFunc("POST /api/execute_command", h.executeCommand)
	mux.HandleFunc("POST /api/commands/execute", h.executeInstruction)
	mux.HandleFunc("GET /api/commands/history", h.history)
	mux.HandleFunc("GET /api/commands/schemas", h.schemas)
	mux.HandleFunc("GET /api/download_file/{path...}", h.downloadFile)
	mux.HandleFunc("GET /api/download_directory/{path...}", h.downloadDirectory)
}

func (h *Handler) fs() *tools.Filesystem {
	if h.tools == nil {
		return nil
	}
	return h.tools.FS
}

func listKey(dir string, depth int) string {
	return "explorer:list:" + strconv.Itoa(depth) + ":" + dir
}

type listResponse struct {
	Success bool          `json:"success"`
	Path    string        `json:"path"`
	Items   []tools.Entry `json:"items"`
	Cached  bool          `json:"cached,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	dir := cleanPath(r.URL.Query().Get("path"))
	depth := defaultListDepth
	if v := r.URL.Query().Get("max_depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rpc.WriteError(w, http.StatusBadRequest, "max_depth inválido: "+v)
			return
		}
		depth = min(max(n, 1), maxListDepth)
	}

	key := listKey(dir, depth)
	if data, err := h.cache.Get(r.Context(), key); err == nil {
		var items []tools.Entry
		if json.Unmarshal(data, &items) == nil {
			rpc.WriteJSON(w, http.StatusOK, listResponse{Success: true, Path: dir, Items: items, Cached: true})
			return
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		h.logger.Warn("explorer cache read failed", zap.Error(err))
	}

	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	items, err := fsys.List(dir, depth)
	if err != nil {
		h.fail(w, err, "El directorio \""+dir+"\" no existe.")
		return
	}
	if items == nil {
		items = []tools.Entry{}
	}
	if data, err := json.Marshal(items); err == nil {
		if err := h.cache.Set(r.Context(), key, data, h.ttl); err != nil {
			h.logger.Warn("explorer cache write failed", zap.Error(err))
		}
	}
	rpc.WriteJSON(w, http.StatusOK, listResponse{Success: true, Path: dir, Items: items})
}

// invalidate drops cached listings that can contain p.
func (h *Handler) invalidate(ctx context.Context, p string) {
	var keys []string
	dir := path.Dir(cleanPath(p))
	for {
		for depth := 1; depth <= maxListDepth; depth++ {
			keys = append(keys, listKey(dir, depth))
		}
		if dir == "." || dir == "/" {
			break
		}
		dir = path.Dir(dir)
	}
	if err := h.cache.Delete(ctx, keys...); err != nil {
		h.logger.Warn("explorer cache invalidation failed", zap.Error(err))
	}
}

func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if strings.TrimSpace(p) == "" {
		rpc.WriteError(w, http.StatusBadRequest, msgNeedPath)
		return
	}
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	content, err := fsys.ReadFile(p)
	if err != nil {
		h.fail(w, err, "Archivo no encontrado: "+p)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"path":      p,
		"content":   content,
		"file_type": tools.FileType(p),
	})
}

type fileRequest struct {
	Path    string  `json:"path"`
	Content *string `json:"content"`
}

// updateFile replaces an existing file.
func (h *Handler) updateFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" || req.Content == nil {
		rpc.WriteError(w, http.StatusBadRequest, msgNeedBody)
		return
	}
	h.write(w, r, req.Path, "Archivo actualizado correctamente", func(fsys *tools.Filesystem) error {
		return fsys.UpdateFile(req.Path, *req.Content)
	})
}

// createFile writes a new file and refuses to overwrite.
func (h *Handler) createFile(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		rpc.WriteError(w, http.StatusBadRequest, msgNeedPath)
		return
	}
	content := ""
	if req.Content != nil {
		content = *req.Content
	}
	h.write(w, r, req.Path, "Archivo creado correctamente", func(fsys *tools.Filesystem) error {
		return fsys.CreateFile(req.Path, content)
	})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, p, ok string, fn func(*tools.Filesystem) error) {
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	if err := fn(fsys); err != nil {
		h.fail(w, err, "Archivo no encontrado: "+p)
		return
	}
	h.invalidate(r.Context(), p)
	h.logger.Info("file written", zap.String("path", p))
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "path": p, "message": ok})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		var req fileRequest
		if err := rpc.DecodeJSON(r, &req); err != nil {
			rpc.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		p = req.Path
	}
	p = strings.TrimPrefix(strings.TrimSpace(p), "./")
	if p == "" {
		rpc.WriteError(w, http.StatusBadRequest, "No path provided")
		return
	}
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	if err := fsys.Delete(p); err != nil {
		h.fail(w, err, "Path not found")
		return
	}
	h.invalidate(r.Context(), p)
	h.logger.Info("path deleted", zap.String("path", p))
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Deleted " + p})
}

// search matches by name, extension or content, or ranks files by relevance
// when type=relevance.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("query"))
	if query == "" {
		rpc.WriteError(w, http.StatusBadRequest, msgNeedQuery)
		return
	}
	kind := q.Get("type")
	if kind == "" {
		kind = tools.FindByName
	}
	base := cleanPath(q.Get("path"))

	if kind == "relevance" {
		if h.tools == nil || h.tools.Semantic == nil {
			rpc.WriteError(w, http.StatusServiceUnavailable, "relevance search unavailable")
			return
		}
		hits, err := h.tools.Semantic.Search(base, query, 10)
		if err != nil {
			h.fail(w, err, "El directorio \""+base+"\" no existe.")
			return
		}
		rpc.WriteJSON(w, http.StatusOK, map[string]any{
			"success": true, "query": query, "type": kind, "base_path": base,
			"results": hits, "count": len(hits),
		})
		return
	}

	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	found, err := fsys.Find(base, query, kind, maxSearchResults)
	if err != nil {
		h.fail(w, err, "El directorio \""+base+"\" no existe.")
		return
	}
	if found == nil {
		found = []string{}
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true, "query": query, "type": kind, "base_path": base,
		"results": found, "count": len(found),
	})
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	fsys := h.fs()
	if fsys == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "workspace unavailable")
		return
	}
	root := cleanPath(r.URL.Query().Get("path"))
	a, err := fsys.Analyze(root, 3)
	if err != nil {
		h.fail(w, err, "El directorio \""+root+"\" no existe.")
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "path": root, "analysis": a})
}

// fail maps workspace errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, err error, notFound string) {
	switch {
	case errors.Is(err, tools.ErrOutsideWorkspace):
		rpc.WriteError(w, http.StatusForbidden, msgOutside)
	case errors.Is(err, fs.ErrNotExist):
		rpc.WriteError(w, http.StatusNotFound, notFound)
	case errors.Is(err, tools.ErrWriteDisabled), errors.Is(err, fs.ErrPermission):
		rpc.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, tools.ErrExists):
		rpc.WriteError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Debug("workspace request failed", zap.Error(err))
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
	}
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "."
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}
