package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/josedcape/codestorm-preeliminar/internal/llm"
)

// CorrectCode asks the model for a corrected version of req.Code. Responses
// that are not valid JSON keep the original code and carry the raw text as
// the explanation.
func (a *Agent) CorrectCode(ctx context.Context, req CodeRequest) (CodeResult, error) {
	if strings.TrimSpace(req.Code) == "" {
		return CodeResult{}, errors.New("no se proporcionó código para procesar")
	}
	instructions := strings.TrimSpace(req.Instructions)
	if instructions == "" {
		instructions = defaultInstructions
	}
	language := detectLanguage(req.FilePath)

	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: correctionSystemPrompt},
		{Role: llm.RoleUser, Content: buildCorrectionPrompt(language, instructions, req.Code)},
	}
	start := time.Now()
	resp, route, err := a.complete(ctx, "developer", req.Model, messages)
	if err != nil {
		a.metrics.RecordChat("developer", route.Name, "error", time.Since(start))
		return CodeResult{}, err
	}
	a.metrics.RecordChat("developer", route.Name, "ok", time.Since(start))

	out := parseCorrection(resp.Message.Content, req.Code)
	out.Language = language
	out.Model = route.Name
	a.logger.Debug("code corrected", zap.String("language", language), zap.Int("summary_points", len(out.Summary)))
	return out, nil
}

type correctionPayload struct {
	CorrectedCode *string         `json:"corrected_code"`
	Summary       json.RawMessage `json:"summary"`
	Explanation   *string         `json:"explanation"`
}

func parseCorrection(raw, original string) CodeResult {
	var p correctionPayload
	if err := json.Unmarshal([]byte(extractJSON(raw)), &p); err != nil {
		return CodeResult{
			CorrectedCode: original,
			Summary:       []string{"No se pudieron procesar las correcciones"},
			Explanation:   raw,
		}
	}

	out := CodeResult{
		CorrectedCode: original,
		Summary:       []string{"No se generó resumen de cambios"},
		Explanation:   "No se generó explicación detallada",
	}
	if p.CorrectedCode != nil {
		out.CorrectedCode = *p.CorrectedCode
	}
	if p.Explanation != nil {
		out.Explanation = *p.Explanation
	}
	if len(p.Summary) > 0 {
		var list []string
		var single string
		switch {
		case json.Unmarshal(p.Summary, &list) == nil && len(list) > 0:
			out.Summary = list
		case json.Unmarshal(p.Summary, &single) == nil && single != "":
			out.Summary = []string{single}
		}
	}
	return out
}

// extractJSON trims code fences and text around the outermost object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
