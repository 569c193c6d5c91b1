package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/trustgate/agent-gateway/internal/common"
)

// AnthropicAdapter handles Anthropic Messages API format requests.
// Tool results arrive as content blocks with type:"tool_result" inside
// user messages, addressed by tool_use_id; tool calls are tool_use blocks
// on assistant messages.
type AnthropicAdapter struct {
	BaseAdapter
}

// NewAnthropicAdapter creates a new Anthropic adapter.
func NewAnthropicAdapter() *AnthropicAdapter {
	return &AnthropicAdapter{
		BaseAdapter: BaseAdapter{
			name:     "anthropic",
			provider: ProviderAnthropic,
		},
	}
}

// =============================================================================
// TO COMMON
// =============================================================================

// ToCommon converts Anthropic messages into common form. A user message
// containing tool_result blocks becomes a single tool-role common message
// carrying one result per block, so message count and role ordering are
// preserved. Anthropic's is_error flag maps onto ToolResult.IsError; an
// error result renders its content as the error string and is excluded
// from trust evaluation and compression.
func (a *AnthropicAdapter) ToCommon(body []byte) ([]common.Message, error) {
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
		results := a.toolResultsFromBlocks(messages, i, msg)
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

// toolResultsFromBlocks extracts tool_result blocks from a user message.
func (a *AnthropicAdapter) toolResultsFromBlocks(messages []any, idx int, msg map[string]any) []common.ToolResult {
	if getString(msg, "role") != "user" {
		return nil
	}
	blocks, ok := msg["content"].([]any)
	if !ok {
		return nil
	}

	var results []common.ToolResult
	for _, blockAny := range blocks {
		block, ok := blockAny.(map[string]any)
		if !ok {
			continue
		}
		if getString(block, "type") != "tool_result" {
			continue
		}

		toolUseID := getString(block, "tool_use_id")
		name, resolved := resolveBlockToolName(messages[:idx], toolUseID)
		if !resolved {
			name = common.UnknownToolName
		}

		content := extractBlockContent(block)
		isError, _ := block["is_error"].(bool)

		result := common.ToolResult{
			ID:      toolUseID,
			Name:    name,
			IsError: isError,
		}
		if isError {
			result.Error = content
		} else {
			result.Content = parseContent(content)
		}
		results = append(results, result)
	}

	return results
}

// =============================================================================
// TOOL CALL EXTRACTION
// =============================================================================

// ExtractToolCalls extracts tool invocations from a native tool-call
// payload: a single message, a full request body (messages[] is walked),
// or a response body (top-level content blocks). Anthropic has a single
// call shape: tool_use content blocks with a structured input object.
func (a *AnthropicAdapter) ExtractToolCalls(payload []byte) []common.ToolCall {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil
	}

	if messages, ok := msg["messages"].([]any); ok {
		var calls []common.ToolCall
		for _, msgAny := range messages {
			if m, ok := msgAny.(map[string]any); ok {
				calls = append(calls, callsFromBlocks(m["content"])...)
			}
		}
		return calls
	}

	return callsFromBlocks(msg["content"])
}

// callsFromBlocks extracts tool_use blocks from a message content array.
func callsFromBlocks(content any) []common.ToolCall {
	blocks, ok := content.([]any)
	if !ok {
		return nil
	}

	var calls []common.ToolCall
	for _, blockAny := range blocks {
		block, ok := blockAny.(map[string]any)
		if !ok {
			continue
		}
		if getString(block, "type") != "tool_use" {
			continue
		}

		args, ok := block["input"].(map[string]any)
		if !ok {
			args = make(map[string]any)
		}
		calls = append(calls, common.ToolCall{
			ID:        getString(block, "id"),
			Name:      getString(block, "name"),
			Arguments: args,
		})
	}

	return calls
}

// =============================================================================
// APPLY TOOL RESULTS
// =============================================================================

// ApplyToolResults patches updated tool-result content back into
// tool_result blocks addressed by tool_use_id.
func (a *AnthropicAdapter) ApplyToolResults(body []byte, updates map[string]string) ([]byte, error) {
	if len(updates) == 0 {
		return body, nil
	}

	out := body
	for i, msg := range gjson.GetBytes(body, "messages").Array() {
		if msg.Get("role").String() != "user" {
			continue
		}
		for j, block := range msg.Get("content").Array() {
			if block.Get("type").String() != "tool_result" {
				continue
			}
			toolUseID := block.Get("tool_use_id").String()
			updated, found := updates[toolUseID]
			if !found {
				continue
			}
			var err error
			out, err = sjson.SetBytes(out, fmt.Sprintf("messages.%d.content.%d.content", i, j), updated)
			if err != nil {
				return nil, fmt.Errorf("failed to patch tool result %s: %w", toolUseID, err)
			}
		}
	}

	return out, nil
}

// extractBlockContent gets the content string from a tool_result block.
// Content can be a string or an array of text blocks.
func extractBlockContent(block map[string]any) string {
	content := block["content"]
	if content == nil {
		return ""
	}

	if str, ok := content.(string); ok {
		return str
	}

	if arr, ok := content.([]any); ok {
		var text string
		for _, item := range arr {
			if itemMap, ok := item.(map[string]any); ok {
				if itemMap["type"] == "text" {
					if t, ok := itemMap["text"].(string); ok {
						text += t
					}
				}
			}
		}
		return text
	}

	return ""
}

// =============================================================================
// MODEL / USAGE EXTRACTION
// =============================================================================

// ExtractModel extracts the model name from the request body.
func (a *AnthropicAdapter) ExtractModel(body []byte) string {
	model := gjson.GetBytes(body, "model").String()

	// Strip provider prefix if present (e.g., "anthropic/claude-sonnet-4-5" -> "claude-sonnet-4-5")
	if strings.HasPrefix(model, "anthropic/") {
		return model[len("anthropic/"):]
	}
	return model
}

// ExtractUsage extracts token usage from an Anthropic API response.
// Format: {"usage": {"input_tokens": N, "output_tokens": N}}
func (a *AnthropicAdapter) ExtractUsage(responseBody []byte) UsageInfo {
	if len(responseBody) == 0 {
		return UsageInfo{}
	}

	var resp struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return UsageInfo{}
	}

	return UsageInfo{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}
}

var _ Adapter = (*AnthropicAdapter)(nil)
