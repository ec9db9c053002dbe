package chat

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/observability"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

// StreamHandler serves chat turns as an NDJSON stream of rpc.ChatEvent.
type StreamHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewStreamHandler constructs a handler instance.
func NewStreamHandler(runner Runner, metrics *observability.Metrics) *StreamHandler {
	return &StreamHandler{runner: runner, metrics: metrics}
}

// ServeHTTP handles POST /api/chat/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError("ndjson", "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.IncActiveSessions("ndjson")
	defer h.metrics.DecActiveSessions("ndjson")

	var req rpc.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError("ndjson", "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	fillIDs(&req)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.metrics.RecordTransportError("ndjson", "runner_error")
		status := http.StatusInternalServerError
		if errors.Is(err, agent.ErrEmptyMessage) {
			status = http.StatusBadRequest
		}
		http.Error(w, fmt.Sprintf("runner error: %v", err), status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	enc := json.NewEncoder(writer)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			break
		}
		writer.Flush()
		flusher.Flush()
	}
}

func fillIDs(req *rpc.ChatRequest) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.CorrelationID == "" {
		req.CorrelationID = req.SessionID + "-corr"
	}
}
