package agent

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/josedcape/codestorm-preeliminar/internal/conversation"
	"github.com/josedcape/codestorm-preeliminar/internal/documents"
	"github.com/josedcape/codestorm-preeliminar/internal/llm"
	"github.com/josedcape/codestorm-preeliminar/internal/router"
)

const defaultInstructions = "Corrige errores y mejora la calidad del código"

const correctionSystemPrompt = "Eres un experto en programación y tu tarea es corregir y mejorar código. Responde siempre en JSON."

// buildSystemPrompt combines the agent template with an optional client prompt.
func buildSystemPrompt(agent router.Agent, extra string) string {
	base := strings.TrimSpace(agent.PromptTemplate)
	if base == "" {
		base = fmt.Sprintf("Eres el %s. %s", agent.Name, agent.Description)
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		base += "\n\n" + extra
	}
	return base
}

// withDocument appends a reference document to a system prompt.
func withDocument(prompt string, doc *documents.Context) string {
	if doc == nil || strings.TrimSpace(doc.Content) == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nUtiliza el siguiente documento como contexto para responder. Documento: %s\n\n%s", prompt, doc.Source, doc.Content)
}

// historyMessages converts the most recent exchanges into chat messages.
// Client-supplied context wins over server history when present.
func historyMessages(entries []conversation.Entry, supplied []ContextMessage, limit int) []llm.ChatMessage {
	var out []llm.ChatMessage
	if len(supplied) > 0 {
		if limit > 0 && len(supplied) > limit {
			supplied = supplied[len(supplied)-limit:]
		}
		for _, m := range supplied {
			role := llm.RoleUser
			if strings.EqualFold(m.Role, string(llm.RoleAssistant)) {
				role = llm.RoleAssistant
			}
			if strings.TrimSpace(m.Content) != "" {
				out = append(out, llm.ChatMessage{Role: role, Content: m.Content})
			}
		}
		return out
	}

	var kept []conversation.Entry
	for _, e := range entries {
		if e.Error || (e.Role != conversation.RoleUser && e.Role != conversation.RoleAssistant) {
			continue
		}
		kept = append(kept, e)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	for _, e := range kept {
		role := llm.RoleUser
		if e.Role == conversation.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.ChatMessage{Role: role, Content: e.Content})
	}
	return out
}

// detectLanguage maps a file extension onto the language named in prompts.
func detectLanguage(path string) string {
	switch strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".") {
	case "py", "pyw":
		return "python"
	case "js", "ts", "jsx", "tsx":
		return "javascript"
	case "html", "htm":
		return "html"
	case "css", "scss", "sass":
		return "css"
	case "json":
		return "json"
	case "go":
		return "go"
	}
	return "unknown"
}

func buildCorrectionPrompt(language, instructions, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Eres un experto corrector de código en %s.\n\n", language)
	fmt.Fprintf(&b, "Analiza el siguiente código y realiza correcciones y mejoras siguiendo estas instrucciones:\n%s\n\n", instructions)
	fmt.Fprintf(&b, "Código original:\n```\n%s\n```\n\n", code)
	b.WriteString("Por favor, proporciona:\n")
	b.WriteString("1. El código corregido\n")
	b.WriteString("2. Un resumen de los cambios realizados (máximo 5 puntos)\n")
	b.WriteString("3. Una explicación detallada de las correcciones y mejoras\n\n")
	b.WriteString("Formato de respuesta:\n")
	b.WriteString(`{"corrected_code": "código corregido aquí", "summary": ["punto 1", "punto 2"], "explanation": "explicación detallada aquí"}`)
	return b.String()
}

func pickTemperature(cfgTemp float64, routeTemp float64) float64 {
	if cfgTemp > 0 {
		return cfgTemp
	}
	if routeTemp > 0 {
		return routeTemp
	}
	return 0.7
}

func pickMaxTokens(cfgMax int, routeMax int) int {
	if cfgMax > 0 {
		return cfgMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
