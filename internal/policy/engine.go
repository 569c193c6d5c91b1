package policy

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/trustgate/agent-gateway/internal/common"
	"github.com/trustgate/agent-gateway/internal/store"
)

// Engine binds policy evaluation to the durable store. Evaluation itself
// is pure (EvaluateInvocation / ClassifyResult); the engine only performs
// the reads.
type Engine struct {
	store *store.Store
}

// NewEngine creates a policy engine over the given store.
func NewEngine(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Rules holds everything configured for one agent-tool pairing.
type Rules struct {
	AgentTool   *store.AgentTool
	Invocation  []store.InvocationPolicy
	TrustedData []store.TrustedDataPolicy
}

// Rules loads the pairing and both policy lists for an agent and tool
// name. An unknown pairing yields empty rules: the default untrusted
// treatment applies and no policies fire.
func (e *Engine) Rules(ctx context.Context, agentID, toolName string) (*Rules, error) {
	agentTool, err := e.store.AgentToolByName(ctx, agentID, toolName)
	if err != nil {
		return nil, err
	}
	if agentTool == nil {
		return &Rules{}, nil
	}

	invocation, err := e.store.InvocationPolicies(ctx, agentTool.ID)
	if err != nil {
		return nil, err
	}
	trusted, err := e.store.TrustedDataPolicies(ctx, agentTool.ID)
	if err != nil {
		return nil, err
	}

	return &Rules{AgentTool: agentTool, Invocation: invocation, TrustedData: trusted}, nil
}

// CheckInvocation decides whether a tool call may proceed for this agent.
// untrustedData reports whether the surrounding exchange carried tool
// results classified untrusted; pairings not configured to allow usage
// in that situation are blocked regardless of their argument policies.
func (e *Engine) CheckInvocation(ctx context.Context, agentID string, call common.ToolCall, untrustedData bool) (Decision, error) {
	rules, err := e.Rules(ctx, agentID, call.Name)
	if err != nil {
		return Decision{}, err
	}

	decision := EvaluateInvocation(rules.Invocation, call)
	if decision.Allowed() && untrustedData && rules.AgentTool != nil && !rules.AgentTool.AllowWhenUntrusted {
		decision = Decision{Action: ActionBlock, Reason: "untrusted tool results present in context"}
	}
	if !decision.Allowed() {
		log.Warn().
			Str("agent_id", agentID).
			Str("tool", call.Name).
			Str("policy_id", decision.PolicyID).
			Str("reason", decision.Reason).
			Msg("policy: tool invocation blocked")
	}
	return decision, nil
}

// Classify returns the trust treatment for a tool result produced for
// this agent.
func (e *Engine) Classify(ctx context.Context, agentID string, result common.ToolResult) (common.Treatment, error) {
	rules, err := e.Rules(ctx, agentID, result.Name)
	if err != nil {
		return common.TreatmentUntrusted, err
	}
	return ClassifyResult(rules.AgentTool, rules.TrustedData, result), nil
}
