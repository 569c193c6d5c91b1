package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/trustgate/agent-gateway/internal/common"
)

// GeminiAdapter handles Google Gemini generateContent format requests.
// Gemini uses contents[]/parts[] with functionCall/functionResponse
// objects, distinct from both OpenAI and Anthropic formats.
//
// Key format differences:
//   - Tool calls: parts[].functionCall with name/args (no call id)
//   - Tool responses: parts[].functionResponse with name/response (object)
//   - Usage: usageMetadata.promptTokenCount/candidatesTokenCount
//
// Because functionResponse carries no call id, tool results get synthetic
// "msgIdx_partIdx" ids, stable across ToCommon and ApplyToolResults.
type GeminiAdapter struct {
	BaseAdapter
}

// NewGeminiAdapter creates a new Gemini adapter.
func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{
		BaseAdapter: BaseAdapter{
			name:     "gemini",
			provider: ProviderGemini,
		},
	}
}

// =============================================================================
// TO COMMON
// =============================================================================

// ToCommon converts Gemini contents into common form. A content entry
// holding functionResponse parts becomes one tool-role common message;
// the tool name comes straight from the functionResponse (no backward
// scan needed: Gemini repeats the name on the response).
func (a *GeminiAdapter) ToCommon(body []byte) ([]common.Message, error) {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	contents, ok := req["contents"].([]any)
	if !ok {
		return nil, nil
	}

	out := make([]common.Message, 0, len(contents))
	for i, contentAny := range contents {
		content, ok := contentAny.(map[string]any)
		if !ok {
			out = append(out, common.Message{Role: common.RoleUser})
			continue
		}

		role := geminiRole(getString(content, "role"))
		parts, ok := content["parts"].([]any)
		if !ok {
			out = append(out, common.Message{Role: role})
			continue
		}

		var results []common.ToolResult
		for j, partAny := range parts {
			part, ok := partAny.(map[string]any)
			if !ok {
				continue
			}
			fnResp, ok := part["functionResponse"].(map[string]any)
			if !ok {
				continue
			}

			name := getString(fnResp, "name")
			if name == "" {
				name = common.UnknownToolName
			}
			results = append(results, common.ToolResult{
				ID:      fmt.Sprintf("%d_%d", i, j),
				Name:    name,
				Content: fnResp["response"],
				IsError: false,
			})
		}

		if len(results) == 0 {
			out = append(out, common.Message{Role: role})
			continue
		}
		out = append(out, common.Message{
			Role:      common.RoleTool,
			ToolCalls: results,
		})
	}

	return out, nil
}

// geminiRole maps Gemini's role vocabulary onto the common model.
func geminiRole(role string) common.Role {
	switch role {
	case "model":
		return common.RoleAssistant
	case "user":
		return common.RoleUser
	default:
		return common.Role(role)
	}
}

// =============================================================================
// TOOL CALL EXTRACTION
// =============================================================================

// ExtractToolCalls extracts tool invocations from a Gemini payload: a
// single content entry, a full request body (contents[] is walked), or a
// response body (candidates[].content). Gemini has a single call shape:
// functionCall parts with a structured args object and no call id; ids
// are synthesized from the part index.
func (a *GeminiAdapter) ExtractToolCalls(payload []byte) []common.ToolCall {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}

	if contents, ok := m["contents"].([]any); ok {
		var calls []common.ToolCall
		for _, contentAny := range contents {
			if content, ok := contentAny.(map[string]any); ok {
				calls = append(calls, callsFromParts(content["parts"])...)
			}
		}
		return calls
	}

	if candidates, ok := m["candidates"].([]any); ok {
		var calls []common.ToolCall
		for _, candAny := range candidates {
			cand, ok := candAny.(map[string]any)
			if !ok {
				continue
			}
			if content, ok := cand["content"].(map[string]any); ok {
				calls = append(calls, callsFromParts(content["parts"])...)
			}
		}
		return calls
	}

	return callsFromParts(m["parts"])
}

// callsFromParts extracts functionCall parts from a parts array.
func callsFromParts(partsAny any) []common.ToolCall {
	parts, ok := partsAny.([]any)
	if !ok {
		return nil
	}

	var calls []common.ToolCall
	for j, partAny := range parts {
		part, ok := partAny.(map[string]any)
		if !ok {
			continue
		}
		fnCall, ok := part["functionCall"].(map[string]any)
		if !ok {
			continue
		}

		args, ok := fnCall["args"].(map[string]any)
		if !ok {
			args = make(map[string]any)
		}
		calls = append(calls, common.ToolCall{
			ID:        fmt.Sprintf("%d", j),
			Name:      getString(fnCall, "name"),
			Arguments: args,
		})
	}

	return calls
}

// =============================================================================
// APPLY TOOL RESULTS
// =============================================================================

// ApplyToolResults patches updated tool-result content back into
// functionResponse parts addressed by synthetic "msgIdx_partIdx" ids.
// The replacement is wrapped as {"result": ...} because Gemini requires
// response to be an object.
func (a *GeminiAdapter) ApplyToolResults(body []byte, updates map[string]string) ([]byte, error) {
	if len(updates) == 0 {
		return body, nil
	}

	out := body
	for i, content := range gjson.GetBytes(body, "contents").Array() {
		for j := range content.Get("parts").Array() {
			if !content.Get(fmt.Sprintf("parts.%d.functionResponse", j)).Exists() {
				continue
			}
			id := fmt.Sprintf("%d_%d", i, j)
			updated, found := updates[id]
			if !found {
				continue
			}
			var err error
			out, err = sjson.SetBytes(out,
				fmt.Sprintf("contents.%d.parts.%d.functionResponse.response", i, j),
				map[string]any{"result": updated})
			if err != nil {
				return nil, fmt.Errorf("failed to patch tool result %s: %w", id, err)
			}
		}
	}

	return out, nil
}

// =============================================================================
// MODEL / USAGE EXTRACTION
// =============================================================================

// ExtractModel extracts the model name from the request body. Gemini
// typically puts the model in the URL path (/models/{model}:generateContent);
// some clients also include a "model" field in the body.
func (a *GeminiAdapter) ExtractModel(body []byte) string {
	model := gjson.GetBytes(body, "model").String()

	// Strip "models/" prefix if present (e.g., "models/gemini-2.0-flash" -> "gemini-2.0-flash")
	if strings.HasPrefix(model, "models/") {
		return model[len("models/"):]
	}
	return model
}

// ExtractUsage extracts token usage from a Gemini API response.
// Format: {"usageMetadata": {"promptTokenCount": N, "candidatesTokenCount": N, "totalTokenCount": N}}
func (a *GeminiAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}

	var resp struct {
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
			TotalTokenCount      int `json:"totalTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return UsageInfo{}
	}

	return UsageInfo{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  resp.UsageMetadata.TotalTokenCount,
	}
}

var _ Adapter = (*GeminiAdapter)(nil)
