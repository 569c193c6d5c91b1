// Tool-call bridge: associates a tool result with the call that produced
// it by walking message history backward.
//
// DESIGN: an explicit linear scan, worst case O(conversation length) per
// tool result. Correctness (nearest-preceding match) matters more than
// speed here; no index is built. Duplicate tool-call ids within one turn
// are an upstream invariant violation: the scan is defensive and the
// nearest (most recent) preceding assistant message wins.
package adapters

// callShape distinguishes the two tool-call payload variants carried by
// OpenAI-compatible requests. The variant is decoded once at the boundary;
// everything downstream switches exhaustively on the shape.
type callShape int

const (
	// shapeFunction: {"id":..,"type":"function","function":{"name":..,"arguments":".."}}
	shapeFunction callShape = iota

	// shapeCustom: {"id":..,"type":"custom","custom":{"name":..,"input":".."}}
	shapeCustom
)

// toolCallVariant is a decoded tool-call entry, tagged by shape.
type toolCallVariant struct {
	shape callShape
	id    string
	name  string
	args  string
}

// decodeToolCall decodes one entry of an assistant tool_calls array.
// Returns false when the entry matches neither known shape.
func decodeToolCall(tc map[string]any) (toolCallVariant, bool) {
	if fn, ok := tc["function"].(map[string]any); ok {
		return toolCallVariant{
			shape: shapeFunction,
			id:    getString(tc, "id"),
			name:  getString(fn, "name"),
			args:  getString(fn, "arguments"),
		}, true
	}
	if cu, ok := tc["custom"].(map[string]any); ok {
		return toolCallVariant{
			shape: shapeCustom,
			id:    getString(tc, "id"),
			name:  getString(cu, "name"),
			args:  getString(cu, "input"),
		}, true
	}
	return toolCallVariant{}, false
}

// ResolveToolName returns the tool name bound to toolCallID in the nearest
// preceding assistant message. Callers pass the history up to (excluding)
// the tool result being resolved. Both call-shape variants are checked.
// Returns false when no assistant message defines the id: the result is
// still processed but attributed to an unknown tool.
func ResolveToolName(messages []any, toolCallID string) (string, bool) {
	if toolCallID == "" {
		return "", false
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if getString(msg, "role") != "assistant" {
			continue
		}
		toolCalls, ok := msg["tool_calls"].([]any)
		if !ok {
			continue
		}
		for _, tcAny := range toolCalls {
			tc, ok := tcAny.(map[string]any)
			if !ok {
				continue
			}
			v, ok := decodeToolCall(tc)
			if !ok || v.id != toolCallID {
				continue
			}
			switch v.shape {
			case shapeFunction, shapeCustom:
				return v.name, true
			}
		}
	}
	return "", false
}

// resolveBlockToolName is the Anthropic-shape bridge: tool_use blocks live
// inside assistant message content arrays and bind id → name.
func resolveBlockToolName(messages []any, toolUseID string) (string, bool) {
	if toolUseID == "" {
		return "", false
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok {
			continue
		}
		if getString(msg, "role") != "assistant" {
			continue
		}
		blocks, ok := msg["content"].([]any)
		if !ok {
			continue
		}
		for _, blockAny := range blocks {
			block, ok := blockAny.(map[string]any)
			if !ok {
				continue
			}
			if getString(block, "type") != "tool_use" {
				continue
			}
			if getString(block, "id") == toolUseID {
				return getString(block, "name"), true
			}
		}
	}
	return "", false
}
