// Gateway types - types carried through the request pipeline.
//
// DESIGN: Types used by the gateway for:
//   - Pipeline processing context
//   - Per-tool-result processing records
//
// Defined here to avoid circular imports and provide clear contracts.
package gateway

import (
	"time"

	"github.com/trustgate/agent-gateway/internal/adapters"
	"github.com/trustgate/agent-gateway/internal/common"
	"github.com/trustgate/agent-gateway/internal/policy"
	"github.com/trustgate/agent-gateway/internal/store"
	"github.com/trustgate/agent-gateway/internal/tokens"
)

// PipelineContext carries data through the processing pipeline.
// Created when a request arrives; ownership ends with the request.
type PipelineContext struct {
	// Provider info
	Provider adapters.Provider
	Adapter  adapters.Adapter

	// Request data
	OriginalRequest []byte // Raw original request for forwarding
	OriginalPath    string // Original request path (e.g., /v1/anthropic/v1/messages)
	Model           string // Model being used
	Stream          bool   // Is this a streaming request?
	ReceivedAt      time.Time

	// Agent bound to this request, nil when anonymous.
	Agent *store.Agent

	// Pipeline outputs
	ProcessedRequest []byte             // nil when the pipeline passed the body through untouched
	Results          []ToolResultRecord // one entry per tool result in the exchange
	Stats            tokens.Stats       // aggregated token accounting
	SavedUSD         *float64           // estimated savings, nil when unknown
	Usage            adapters.UsageInfo // provider-reported usage, zero for streamed exchanges
}

// NewPipelineContext creates a new pipeline context.
func NewPipelineContext(provider adapters.Provider, adapter adapters.Adapter, body []byte, path string) *PipelineContext {
	return &PipelineContext{
		Provider:        provider,
		Adapter:         adapter,
		OriginalRequest: body,
		OriginalPath:    path,
		ReceivedAt:      time.Now(),
	}
}

// AgentID returns the bound agent id, empty when anonymous.
func (c *PipelineContext) AgentID() string {
	if c.Agent == nil {
		return ""
	}
	return c.Agent.ID
}

// ToolResultRecord tracks the processing of one tool result.
type ToolResultRecord struct {
	ToolCallID   string           `json:"tool_call_id"`
	ToolName     string           `json:"tool_name"`
	Treatment    common.Treatment `json:"treatment"`
	Compressed   bool             `json:"compressed"`
	TokensBefore int              `json:"tokens_before"`
	TokensAfter  int              `json:"tokens_after"`
}

// InvocationOutcome is the policy decision for one tool call proposed by
// the model.
type InvocationOutcome struct {
	Call     common.ToolCall
	Decision policy.Decision
}
