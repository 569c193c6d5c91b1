// Package adapters provides provider-specific request handling.
//
// DESIGN: The gateway fronts three wire families (OpenAI chat completions,
// Anthropic messages, Gemini generateContent). Each adapter is a
// bidirectional converter between its native schema and the common message
// model:
//
//   - ToCommon:          native messages → []common.Message
//   - ExtractToolCalls:  native tool-call payload → []common.ToolCall
//   - ApplyToolResults:  patch updated tool-result content back into the
//     native message list by tool-call id
//
// FLOW:
//  1. Gateway identifies provider from the request path and gets the
//     adapter from the registry
//  2. Pipeline calls ToCommon(body) to get common-form messages
//  3. Policy engine and compression work on common form only
//  4. Pipeline calls ApplyToolResults(body, updates) to patch results back
//
// Malformed payloads never fail the pipeline: unparseable tool-call
// arguments degrade to an empty map and unresolvable tool results are
// attributed to common.UnknownToolName.
//
// To add a new provider: implement Adapter and register it in Registry.
package adapters

import (
	"encoding/json"

	"github.com/trustgate/agent-gateway/internal/common"
)

// Provider identifies a wire-format family.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// UsageInfo holds token usage extracted from an API response.
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Adapter defines the unified interface for provider-specific handling.
// Adapters are stateless and thread-safe.
type Adapter interface {
	// Name returns the adapter identifier (e.g., "openai", "anthropic").
	Name() string

	// Provider returns the provider type for this adapter.
	Provider() Provider

	// ToCommon converts the native message list into common form.
	// One common message is produced per native message, in order, so the
	// conversion preserves message count and role ordering. Tool results
	// carry the originating tool name, resolved by backward search through
	// the preceding assistant messages.
	ToCommon(body []byte) ([]common.Message, error)

	// ExtractToolCalls extracts tool invocations from a native tool-call
	// payload (an assistant message or response choice). Both call-shape
	// variants are supported where the provider has them. Never fails:
	// unparseable arguments yield an empty map.
	ExtractToolCalls(payload []byte) []common.ToolCall

	// ApplyToolResults merges updates (tool-call id → new content) back
	// into the native message list, replacing only the content field of
	// matching tool messages. Messages with no update pass through
	// unchanged. Identity when updates is empty.
	ApplyToolResults(body []byte, updates map[string]string) ([]byte, error)

	// ExtractModel extracts the model name from the request body.
	ExtractModel(body []byte) string

	// ExtractUsage extracts token usage from the API response body.
	ExtractUsage(responseBody []byte) UsageInfo
}

// BaseAdapter provides common functionality for all adapters.
type BaseAdapter struct {
	name     string
	provider Provider
}

// Name returns the adapter name.
func (a *BaseAdapter) Name() string {
	return a.name
}

// Provider returns the provider type.
func (a *BaseAdapter) Provider() Provider {
	return a.provider
}

// getString reads a string field from a decoded JSON object.
func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// parseArguments decodes a JSON arguments string into a map.
// Falls back to an empty map on any parse failure: never fails the
// pipeline.
func parseArguments(raw string) map[string]any {
	args := make(map[string]any)
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return make(map[string]any)
	}
	return args
}

// parseContent decodes tool-result content as JSON when possible,
// otherwise keeps the raw string.
func parseContent(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
