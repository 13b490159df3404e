package analysis

import (
	"encoding/json"
	"strings"

	"github.com/chenyingxinghen/Statistics-on-predicted-winning-rates/internal/domain"
)

// BuildResult turns the accumulated content of a completed session into the
// final result. A JSON object content contributes its prediction (falling
// back to its content field, then to the raw text), success and message
// fields; anything else becomes the prediction text verbatim.
func BuildResult(content string) domain.NewsAnalysisResult {
	trimmed := strings.TrimSpace(content)
	fallback := domain.NewsAnalysisResult{Prediction: trimmed, Success: true}
	if !strings.HasPrefix(trimmed, "{") {
		return fallback
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err != nil || fields == nil {
		return fallback
	}

	res := domain.NewsAnalysisResult{Prediction: trimmed, Success: true}
	if v, ok := fields["prediction"]; ok && !isNull(v) {
		res.Prediction = fieldText(v)
	} else if v, ok := fields["content"]; ok && !isNull(v) {
		res.Prediction = fieldText(v)
	}
	if v, ok := fields["success"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			res.Success = b
		}
	}
	if v, ok := fields["message"]; ok && !isNull(v) {
		msg := fieldText(v)
		res.Message = &msg
	}
	return res
}
