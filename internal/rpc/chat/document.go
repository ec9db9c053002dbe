package chat

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/agent"
	"github.com/josedcape/codestorm-preeliminar/internal/conversation"
	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/rpc"
)

// directContentWords is the largest document returned verbatim instead of
// being sent to a model.
const directContentWords = 1000

type documentChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Document  string `json:"document_filename"`
	AgentID   string `json:"agent_id"`
	Model     string `json:"model"`
}

type documentRef struct {
	Filename  string `json:"filename"`
	WordCount int    `json:"word_count"`
	Truncated bool   `json:"truncated,omitempty"`
}

type documentChatResponse struct {
	Success          bool        `json:"success"`
	SessionID        string      `json:"session_id"`
	AgentID          string      `json:"agent_id"`
	Message          string      `json:"message"`
	Response         string      `json:"response"`
	HTML             string      `json:"html,omitempty"`
	Model            string      `json:"model,omitempty"`
	UseDirectContent bool        `json:"use_direct_content"`
	DocumentContent  string      `json:"document_content,omitempty"`
	Document         documentRef `json:"document"`
}

// chatWithDocument answers a message using a stored document as context.
// Short documents are returned directly; longer ones go to the agent, and
// the extracted text is returned if every model fails.
func (a *API) chatWithDocument(w http.ResponseWriter, r *http.Request) {
	var req documentChatRequest
	if err := rpc.DecodeJSON(r, &req); err != nil {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		rpc.WriteError(w, http.StatusBadRequest, "No se ha proporcionado un mensaje")
		return
	}
	if strings.TrimSpace(req.Document) == "" {
		rpc.WriteError(w, http.StatusBadRequest, "No se ha especificado un documento como contexto")
		return
	}

	doc, err := a.docs.Context(req.Document, documents.ContextLength)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rpc.WriteError(w, http.StatusNotFound, "El documento especificado no existe")
		return
	case err != nil:
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref := documentRef{Filename: doc.Source, WordCount: doc.WordCount, Truncated: doc.Truncated}

	if doc.WordCount <= directContentWords {
		state := a.agent.Sessions().Get(req.SessionID)
		content := fmt.Sprintf("He extraído el contenido del documento '%s' (contiene %d palabras). Aquí está el contenido completo:\n\n%s\n\nPuedes hacerme preguntas específicas sobre este documento.",
			doc.Source, doc.WordCount, doc.Content)
		agentID := a.directAgent(state, req.AgentID)
		state.Append(conversation.Entry{Role: conversation.RoleUser, Content: req.Message})
		state.Append(conversation.Entry{Role: conversation.RoleAssistant, Content: content, AgentID: agentID})
		rpc.WriteJSON(w, http.StatusOK, documentChatResponse{
			Success:          true,
			SessionID:        state.ID,
			AgentID:          agentID,
			Message:          "Documento procesado directamente",
			Response:         content,
			UseDirectContent: true,
			DocumentContent:  doc.Content,
			Document:         ref,
		})
		return
	}

	resp, err := a.agent.Run(r.Context(), agent.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		AgentID:   req.AgentID,
		Model:     req.Model,
		Document:  &doc,
	})
	if errors.Is(err, agent.ErrEmptyMessage) {
		rpc.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		a.logger.Warn("document chat failed", zap.String("document", doc.Source), zap.Error(err))
		rpc.WriteJSON(w, http.StatusOK, documentChatResponse{
			Success:   true,
			SessionID: resp.SessionID,
			AgentID:   resp.AgentID,
			Message:   "Documento procesado directamente",
			Response: fmt.Sprintf("Hubo un problema al procesar este documento con el asistente IA (%s), pero he extraído su contenido:\n\n%s",
				err.Error(), doc.Content),
			UseDirectContent: true,
			DocumentContent:  doc.Content,
			Document:         ref,
		})
		return
	}
	rpc.WriteJSON(w, http.StatusOK, documentChatResponse{
		Success:   true,
		SessionID: resp.SessionID,
		AgentID:   resp.AgentID,
		Message:   "Respuesta generada con el documento como contexto",
		Response:  resp.Content,
		HTML:      resp.HTML,
		Model:     resp.Model,
		Document:  ref,
	})
}

func (a *API) directAgent(state *conversation.State, requested string) string {
	registry := a.agent.Router().Registry()
	if id := strings.TrimSpace(requested); id != "" && id != "auto" {
		return registry.Resolve(id).ID
	}
	if id := state.ActiveAgentID(); id != "" {
		return id
	}
	return registry.DefaultAgent()
}
