package workspace

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/commands"
	"github.com/josedcape/codestorm-preeliminar/internal/history"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
	"github.com/josedcape/codestorm-preeliminar/internal/tools"
)

type execResponse struct {
	Success bool `json:"success"`
	tools.ExecResult
}

// executeCommand runs a raw shell line in the workspace.
func (h *Handler) executeCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command     string `json:"command"`
		Instruction string `json:"instruction,omitempty"`
		Model       string `json:"model,omitempty"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		rpc.WriteError(w, http.StatusBadRequest, msgNoCommand)
		return
	}

	var (
		out tools.ExecResult
		err error
	)
	switch {
	case h.executor != nil:
		out, err = h.executor.Run(r.Context(), req.Instruction, req.Command, req.Model)
	case h.tools != nil && h.tools.Terminal != nil:
		out, err = h.tools.Terminal.Run(r.Context(), req.Command)
	default:
		err = tools.ErrExecDisabled
	}
	if errors.Is(err, tools.ErrExecDisabled) {
		rpc.WriteError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("command failed", zap.String("command", req.Command), zap.Error(err))
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.invalidate(r.Context(), ".")
	rpc.WriteJSON(w, http.StatusOK, execResponse{Success: out.ExitCode == 0, ExecResult: out})
}

type instructionResponse struct {
	Success bool             `json:"success"`
	Command commands.Command `json:"command"`
	Result  commands.Result  `json:"result"`
}

// executeInstruction parses a natural-language instruction and performs it.
func (h *Handler) executeInstruction(w http.ResponseWriter, r *http.Request) {
	if h.executor == nil {
		rpc.WriteError(w, http.StatusServiceUnavailable, "command executor unavailable")
		return
	}
	var req struct {
		Instruction string `json:"instruction"`
	}
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmd, err := commands.Parse(req.Instruction)
	if err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.executor.Execute(r.Context(), cmd)
	if err != nil {
		h.fail(w, err, err.Error())
		return
	}
	if res.Path != "" {
		h.invalidate(r.Context(), res.Path)
	}
	rpc.WriteJSON(w, http.StatusOK, instructionResponse{Success: true, Command: cmd, Result: res})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			rpc.WriteError(w, http.StatusBadRequest, "limit inválido: "+v)
			return
		}
		limit = min(n, 200)
	}
	var entries []history.Command
	if h.executor != nil {
		var err error
		entries, err = h.executor.History(r.Context(), limit)
		if err != nil {
			h.logger.Error("load command history", zap.Error(err))
			rpc.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if entries == nil {
		entries = []history.Command{}
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "history": entries})
}

// schemas lists the actions natural-language commands can trigger.
func (h *Handler) schemas(w http.ResponseWriter, _ *http.Request) {
	reg := h.tools
	if reg == nil {
		reg = tools.NewRegistry(nil, nil, nil)
	}
	rpc.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "schemas": reg.Schemas()})
}
