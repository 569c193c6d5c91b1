package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/trustgate/agent-gateway/internal/common"
)

// OpenAIAdapter handles OpenAI chat-completions format requests.
// Tool results arrive as messages with role="tool" addressed by
// tool_call_id; tool calls appear on assistant messages in either the
// "function" or "custom" variant.
type OpenAIAdapter struct {
	BaseAdapter
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{
		BaseAdapter: BaseAdapter{
			name:     "openai",
			provider: ProviderOpenAI,
		},
	}
}

// =============================================================================
// TO COMMON
// =============================================================================

// ToCommon converts chat-completions messages into common form.
// Tool-role messages become tool messages carrying one result each; the
// originating tool name is resolved by backward search through preceding
// assistant messages. Assistant messages carrying tool calls are not
// translated into common tool-call form: only results are evaluated
// downstream.
func (a *OpenAIAdapter) ToCommon(body []byte) ([]common.Message, error) {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}

	messages, ok := req["messages"].([]any)
	if !ok {
		return nil, nil
	}

	out := make([]common.Message, 0, len(messages))
	for i, msgAny := range messages {
		msg, ok := msgAny.(map[string]any)
		if !ok {
			out = append(out, common.Message{Role: common.RoleUser})
			continue
		}

		role := common.Role(getString(msg, "role"))
		if role != common.RoleTool {
			out = append(out, common.Message{Role: role})
			continue
		}

		callID := getString(msg, "tool_call_id")
		name, resolved := ResolveToolName(messages[:i], callID)
		if !resolved {
			name = common.UnknownToolName
		}

		content := extractStringContent(msg["content"])
		out = append(out, common.Message{
			Role: common.RoleTool,
			ToolCalls: []common.ToolResult{{
				ID:      callID,
				Name:    name,
				Content: parseContent(content),
				IsError: false,
			}},
		})
	}

	return out, nil
}

// =============================================================================
// TOOL CALL EXTRACTION
// =============================================================================

// ExtractToolCalls extracts tool invocations from a native tool-call
// payload. The payload may be a single assistant message, a full request
// body (messages[] is walked), or a full response body (choices[] is
// walked). Both the "function" and "custom" call shapes are supported;
// arguments parse as JSON with fallback to an empty map.
func (a *OpenAIAdapter) ExtractToolCalls(payload []byte) []common.ToolCall {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}

	if messages, ok := m["messages"].([]any); ok {
		var calls []common.ToolCall
		for _, msgAny := range messages {
			if msg, ok := msgAny.(map[string]any); ok {
				calls = append(calls, callsFromMessage(msg)...)
			}
		}
		return calls
	}

	if choices, ok := m["choices"].([]any); ok {
		var calls []common.ToolCall
		for _, choiceAny := range choices {
			choice, ok := choiceAny.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := choice["message"].(map[string]any); ok {
				calls = append(calls, callsFromMessage(msg)...)
			}
		}
		return calls
	}

	return callsFromMessage(m)
}

// callsFromMessage extracts tool calls from one message object.
func callsFromMessage(msg map[string]any) []common.ToolCall {
	toolCalls, ok := msg["tool_calls"].([]any)
	if !ok {
		return nil
	}

	var calls []common.ToolCall
	for _, tcAny := range toolCalls {
		tc, ok := tcAny.(map[string]any)
		if !ok {
			continue
		}
		v, ok := decodeToolCall(tc)
		if !ok {
			continue
		}
		switch v.shape {
		case shapeFunction, shapeCustom:
			calls = append(calls, common.ToolCall{
				ID:        v.id,
				Name:      v.name,
				Arguments: parseArguments(v.args),
			})
		}
	}

	return calls
}

// =============================================================================
// APPLY TOOL RESULTS
// =============================================================================

// ApplyToolResults patches updated tool-result content back into the
// message list. Only the content field of matching tool messages changes;
// everything else in the body is preserved byte for byte.
func (a *OpenAIAdapter) ApplyToolResults(body []byte, updates map[string]string) ([]byte, error) {
	if len(updates) == 0 {
		return body, nil
	}

	out := body
	for i, msg := range gjson.GetBytes(body, "messages").Array() {
		if msg.Get("role").String() != "tool" {
			continue
		}
		callID := msg.Get("tool_call_id").String()
		updated, found := updates[callID]
		if !found {
			continue
		}
		var err error
		out, err = sjson.SetBytes(out, fmt.Sprintf("messages.%d.content", i), updated)
		if err != nil {
			return nil, fmt.Errorf("failed to patch tool result %s: %w", callID, err)
		}
	}

	return out, nil
}

// extractStringContent flattens message content to a string. Content can
// be a plain string or an array of text parts.
func extractStringContent(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		if s, ok := m["text"].(string); ok {
			return s
		}
	}
	arr, ok := v.([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, it := range arr {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["text"].(string); ok && s != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s)
		}
	}
	return b.String()
}

// =============================================================================
// MODEL / USAGE EXTRACTION
// =============================================================================

// ExtractModel extracts the model name from the request body.
func (a *OpenAIAdapter) ExtractModel(body []byte) string {
	model := gjson.GetBytes(body, "model").String()

	// Strip provider prefix if present (e.g., "openai/gpt-4o" -> "gpt-4o")
	if idx := strings.Index(model, "/"); idx != -1 {
		return model[idx+1:]
	}
	return model
}

// ExtractUsage extracts token usage from an OpenAI API response.
// Format: {"usage": {"prompt_tokens": N, "completion_tokens": N, "total_tokens": N}}
func (a *OpenAIAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}

	var resp struct {
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return UsageInfo{}
	}

	return UsageInfo{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
}

var _ Adapter = (*OpenAIAdapter)(nil)
