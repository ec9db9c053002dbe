package chat

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

// API serves the request/response chat endpoints.
type API struct {
	agent  *agent.Agent
	docs   *documents.Store
	logger *zap.Logger
}

// NewAPI wires the chat endpoints to an agent.
func NewAPI(a *agent.Agent, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{agent: a, logger: logger.Named("chat_api")}
}

// WithDocuments enables document-context chat backed by store.
func (a *API) WithDocuments(store *documents.Store) *API {
	a.docs = store
	return a
}

// Register mounts the endpoints on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", a.chat)
	mux.HandleFunc("POST /api/chat/clear", a.clear)
	mux.HandleFunc("POST /api/chat/delegate", a.delegate)
	if a.docs != nil {
		mux.HandleFunc("POST /api/chat/with-context", a.chatWithDocument)
	}
	mux.HandleFunc("POST /api/route", a.route)
	mux.HandleFunc("GET /api/agents", a.agents)
	mux.HandleFunc("POST /api/process_code", a.processCode)
}

type chatResponse struct {
	Success bool `json:"success"`
	agent.Response
}

func (a *API) chat(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := a.agent.Run(r.Context(), req)
	if errors.Is(err, agent.ErrEmptyMessage) {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.logger.Warn("chat failed", zap.String("agent", resp.AgentID), zap.Error(err))
		rpc.WriteJSON(w, http.StatusInternalServerError, struct {
			rpc.ErrorBody
			AgentID   string `json:"agent_id,omitempty"`
			SessionID string `json:"session_id,omitempty"`
		}{rpc.ErrorBody{Error: err.Error()}, resp.AgentID, resp.SessionID})
		return
	}
	rpc.WriteJSON(w, http.StatusOK, chatResponse{Success: true, Response: resp})
}

func (a *API) clear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		rpc.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"cleared": a.agent.Clear(req.SessionID),
	})
}

func (a *API) delegate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		AgentID   string `json:"agent_id"`
		Reason    string `json:"reason"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		rpc.WriteError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	active, err := a.agent.Delegate(req.SessionID, req.AgentID, req.Reason)
	if errors.Is(err, agent.ErrUnknownAgent) {
		rpc.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		rpc.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": req.SessionID,
		"agent_id":   active,
	})
}

type routeResponse struct {
	Success         bool                    `json:"success"`
	Selection       router.Selection        `json:"selection"`
	Agent           router.Agent            `json:"agent"`
	Recommendations []router.Recommendation `json:"recommendations"`
}

// route scores a message without touching any conversation.
func (a *API) route(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		rpc.WriteError(w, http.StatusBadRequest, agent.ErrEmptyMessage.Error())
		return
	}
	rt := a.agent.Router()
	sel := rt.Select(req.Message)
	recs := rt.Recommendations(req.Message, sel.AgentID)
	if recs == nil {
		recs = []router.Recommendation{}
	}
	rpc.WriteJSON(w, http.StatusOK, routeResponse{
		Success:         true,
		Selection:       sel,
		Agent:           rt.Registry().Resolve(sel.AgentID),
		Recommendations: recs,
	})
}

func (a *API) agents(w http.ResponseWriter, _ *http.Request) {
	rpc.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"agents":  a.agent.Router().Registry().Agents(),
		"default": a.agent.Router().Registry().DefaultAgent(),
	})
}

type codeResponse struct {
	Success bool `json:"success"`
	agent.CodeResult
}

func (a *API) processCode(w http.ResponseWriter, r *http.Request) {
	var req agent.CodeRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		rpc.WriteError(w, http.StatusBadRequest, "Se requiere código para procesar")
		return
	}
	res, err := a.agent.CorrectCode(r.Context(), req)
	if err != nil {
		a.logger.Warn("code correction failed", zap.String("file", req.FilePath), zap.Error(err))
		rpc.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rpc.WriteJSON(w, http.StatusOK, codeResponse{Success: true, CodeResult: res})
}
