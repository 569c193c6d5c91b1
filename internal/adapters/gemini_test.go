package adapters

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/agent-gateway/internal/common"
)

// =============================================================================
// GEMINI TO-COMMON TESTS
// =============================================================================

func TestGemini_ToCommon_FunctionResponses(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"text": "what is the weather"}]},
			{"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"city": "Oslo"}}}]},
			{"role": "user", "parts": [{"functionResponse": {"name": "get_weather", "response": {"temp": -3}}}]}
		]
	}`)

	messages, err := adapter.ToCommon(body)

	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, common.RoleUser, messages[0].Role)
	assert.Equal(t, common.RoleAssistant, messages[1].Role)

	require.Equal(t, common.RoleTool, messages[2].Role)
	require.Len(t, messages[2].ToolCalls, 1)
	result := messages[2].ToolCalls[0]
	assert.Equal(t, "2_0", result.ID)
	assert.Equal(t, "get_weather", result.Name)
	assert.Equal(t, map[string]any{"temp": float64(-3)}, result.Content)
}

func TestGemini_ToCommon_SyntheticIDsFollowPositions(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"contents": [
			{"role": "user", "parts": [
				{"text": "ignored"},
				{"functionResponse": {"name": "a", "response": {}}},
				{"functionResponse": {"name": "b", "response": {}}}
			]}
		]
	}`)

	messages, err := adapter.ToCommon(body)

	require.NoError(t, err)
	require.Len(t, messages[0].ToolCalls, 2)
	assert.Equal(t, "0_1", messages[0].ToolCalls[0].ID)
	assert.Equal(t, "0_2", messages[0].ToolCalls[1].ID)
}

// =============================================================================
// GEMINI TOOL CALL EXTRACTION TESTS
// =============================================================================

func TestGemini_ExtractToolCalls_FromRequest(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"contents": [
			{"role": "model", "parts": [{"functionCall": {"name": "get_weather", "args": {"city": "Oslo"}}}]}
		]
	}`)

	calls := adapter.ExtractToolCalls(body)

	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "Oslo", calls[0].Arguments["city"])
}

func TestGemini_ExtractToolCalls_FromResponse(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"candidates": [
			{"content": {"role": "model", "parts": [
				{"functionCall": {"name": "search", "args": {"q": "go"}}}
			]}}
		]
	}`)

	calls := adapter.ExtractToolCalls(body)

	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
}

func TestGemini_ExtractToolCalls_MissingArgsDegradeToEmptyMap(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"contents": [
			{"role": "model", "parts": [{"functionCall": {"name": "noop"}}]}
		]
	}`)

	calls := adapter.ExtractToolCalls(body)

	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Arguments)
	assert.Empty(t, calls[0].Arguments)
}

// =============================================================================
// GEMINI APPLY TOOL RESULTS TESTS
// =============================================================================

func TestGemini_ApplyToolResults_WrapsAsResultObject(t *testing.T) {
	adapter := NewGeminiAdapter()

	body := []byte(`{
		"contents": [
			{"role": "user", "parts": [{"functionResponse": {"name": "get_weather", "response": {"temp": -3}}}]}
		]
	}`)

	modified, err := adapter.ApplyToolResults(body, map[string]string{"0_0": "temp: -3"})

	require.NoError(t, err)

	var req map[string]any
	require.NoError(t, json.Unmarshal(modified, &req))
	part := req["contents"].([]any)[0].(map[string]any)["parts"].([]any)[0].(map[string]any)
	response := part["functionResponse"].(map[string]any)["response"].(map[string]any)
	assert.Equal(t, "temp: -3", response["result"])
}

// =============================================================================
// GEMINI MODEL / USAGE TESTS
// =============================================================================

func TestGemini_ExtractModel(t *testing.T) {
	adapter := NewGeminiAdapter()

	assert.Equal(t, "gemini-2.0-flash", adapter.ExtractModel([]byte(`{"model": "models/gemini-2.0-flash"}`)))
	assert.Equal(t, "gemini-2.0-flash", adapter.ExtractModel([]byte(`{"model": "gemini-2.0-flash"}`)))
	assert.Equal(t, "", adapter.ExtractModel([]byte(`{}`)))
}

func TestGemini_ExtractUsage(t *testing.T) {
	adapter := NewGeminiAdapter()

	usage := adapter.ExtractUsage([]byte(`{"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}}`))

	assert.Equal(t, 4, usage.InputTokens)
	assert.Equal(t, 2, usage.OutputTokens)
	assert.Equal(t, 6, usage.TotalTokens)
}
