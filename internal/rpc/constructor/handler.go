package constructor

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/build"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

const (
	msgNotFound      = "Proyecto no encontrado"
	msgNotActive     = "Proyecto no encontrado o no está activo"
	msgDescription   = "Se requiere una descripción del proyecto"
	msgMessage       = "Se requiere un mensaje"
	msgStillRunning  = "El proyecto sigue en construcción"
	msgStarted       = "Construcción del proyecto iniciada correctamente"
	msgPaused        = "Proyecto pausado correctamente"
	msgResumed       = "Proyecto reanudado correctamente"
	msgDeleted       = "Proyecto eliminado correctamente"
	msgWebsocketsOff = "Las actualizaciones en tiempo real están deshabilitadas"
)

// Handler serves /api/constructor on top of a build.Builder.
type Handler struct {
	builder   *build.Builder
	logger    *zap.Logger
	metrics   *observability.Metrics
	websocket bool
}

// Options configure a Handler.
type Options struct {
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Websocket enables GET ws/{id}.
	Websocket bool
}

// NewHandler wraps b.
func NewHandler(b *build.Builder, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{builder: b, logger: logger.Named("constructor"), metrics: opts.Metrics, websocket: opts.Websocket}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/constructor/projects", h.list)
	mux.HandleFunc("GET /api/constructor/projects/{id}", h.get)
	mux.HandleFunc("DELETE /api/constructor/projects/{id}", h.delete)
	mux.HandleFunc("POST /api/constructor/start", h.start)
	mux.HandleFunc("POST /api/constructor/pause/{id}", h.pause)
	mux.HandleFunc("POST /api/constructor/resume/{id}", h.resume)
	mux.HandleFunc("POST /api/constructor/message/{id}", h.message)
	mux.HandleFunc("GET /api/constructor/ws/{id}", h.watch)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.builder.List(r.Context())
	if err != nil {
		h.internal(w, "list projects", err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "projects": jobs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	job, err := h.builder.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, build.ErrNotFound) {
		rpc.WriteError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		h.internal(w, "get project", err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "project": job})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.builder.Delete(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, build.ErrNotFound):
		rpc.WriteError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, build.ErrRunning):
		rpc.WriteError(w, http.StatusConflict, msgStillRunning)
	case err != nil:
		h.internal(w, "delete project", err)
	default:
		rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": msgDeleted})
	}
}

type startResponse struct {
	Success   bool        `json:"success"`
	ProjectID string      `json:"project_id"`
	Message   string      `json:"message"`
	Config    startConfig `json:"config"`
}

type startConfig struct {
	Model            string       `json:"model"`
	Agents           build.Agents `json:"agents"`
	DevelopmentSpeed string       `json:"development_speed"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var cfg build.Config
	if err := rpc.DecodeJSON(r, &cfg); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := h.builder.Start(r.Context(), cfg)
	if errors.Is(err, build.ErrDescriptionRequired) {
		rpc.WriteError(w, http.StatusBadRequest, msgDescription)
		return
	}
	if err != nil {
		h.internal(w, "start project", err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, startResponse{
		Success:   true,
		ProjectID: job.ID,
		Message:   msgStarted,
		Config: startConfig{
			Model:            job.Model,
			Agents:           job.Agents,
			DevelopmentSpeed: job.DevelopmentSpeed,
		},
	})
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.builder.Pause, msgPaused)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.builder.Resume, msgResumed)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (build.Job, error), ok string) {
	_, err := fn(r.Context(), r.PathValue("id"))
	if errors.Is(err, build.ErrNotFound) || errors.Is(err, build.ErrNotActive) {
		rpc.WriteError(w, http.StatusNotFound, msgNotActive)
		return
	}
	if err != nil {
		h.internal(w, "change project status", err)
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": ok})
}

func (h *Handler) message(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	reply, _, err := h.builder.PostMessage(r.Context(), r.PathValue("id"), req.Message)
	switch {
	case errors.Is(err, build.ErrEmptyMessage):
		rpc.WriteError(w, http.StatusBadRequest, msgMessage)
	case errors.Is(err, build.ErrNotFound):
		rpc.WriteError(w, http.StatusNotFound, msgNotFound)
	case err != nil:
		h.internal(w, "post message", err)
	default:
		rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "response": reply})
	}
}

func (h *Handler) internal(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op, zap.Error(err))
	rpc.WriteError(w, http.StatusInternalServerError, err.Error())
}
