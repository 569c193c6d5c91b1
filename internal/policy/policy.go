// Package policy implements the trust policy engine.
//
// DESIGN: Policies are authored externally and consumed read-only at
// request time. Two policy classes exist per agent-tool pairing:
//
//   - invocation policies: evaluated against a call's arguments before
//     the tool runs, producing allow / block / sanitize_with_dual_llm
//   - trusted-data policies: evaluated against a result's attributes,
//     optionally overriding the pairing's default trust treatment
//
// Evaluation is deterministic: given identical (agentTool, policies,
// arguments-or-result) inputs the decision is identical: no hidden
// mutable state. Within each class, policies run in list order and the
// first true match wins; non-matching policies leave the default in
// force. Unknown operators or actions never match (degraded, not fatal).
package policy

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/trustgate/agent-gateway/internal/common"
	"github.com/trustgate/agent-gateway/internal/store"
)

// Operator is the closed set of comparison operators a policy may use.
type Operator string

const (
	OpEqual       Operator = "equal"
	OpNotEqual    Operator = "not_equal"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
)

// Invocation policy actions.
const (
	ActionAllow    = "allow"
	ActionBlock    = "block"
	ActionSanitize = "sanitize_with_dual_llm"
)

// Trusted-data policy actions.
const (
	ActionMarkTrusted   = "mark_as_trusted"
	ActionMarkUntrusted = "mark_as_untrusted"
)

// Decision is the outcome of invocation policy evaluation.
type Decision struct {
	Action   string // allow | block | sanitize_with_dual_llm
	PolicyID string // matching policy, empty for the default
	Reason   string
}

// Allowed reports whether the call may proceed (possibly sanitized).
func (d Decision) Allowed() bool {
	return d.Action != ActionBlock
}

// match applies one operator to an actual value. Unknown operators never
// match.
func match(op Operator, actual, expected string) bool {
	switch op {
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	case OpContains:
		return strings.Contains(actual, expected)
	case OpNotContains:
		return !strings.Contains(actual, expected)
	case OpStartsWith:
		return strings.HasPrefix(actual, expected)
	}
	return false
}

// renderValue flattens an argument or attribute value to the string form
// policies compare against: strings pass through, everything else is
// JSON-rendered.
func renderValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// EvaluateInvocation evaluates the invocation policies for a tool call,
// in order. The first matching policy determines the action; with no
// match the call is allowed.
func EvaluateInvocation(policies []store.InvocationPolicy, call common.ToolCall) Decision {
	for _, p := range policies {
		actual := renderValue(call.Arguments[p.ArgumentName])
		if !match(Operator(p.Operator), actual, p.Value) {
			continue
		}
		switch p.Action {
		case ActionAllow, ActionBlock, ActionSanitize:
			return Decision{Action: p.Action, PolicyID: p.ID, Reason: p.Reason}
		}
		// Unknown action: skip, keep evaluating.
	}
	return Decision{Action: ActionAllow}
}

// ClassifyResult returns the trust treatment for a tool result. The
// pairing's configured treatment is the default; matching trusted-data
// policies override it, first match wins. Error results are never
// reclassified: their content is not used for trust evaluation.
func ClassifyResult(agentTool *store.AgentTool, policies []store.TrustedDataPolicy, result common.ToolResult) common.Treatment {
	treatment := common.TreatmentUntrusted
	if agentTool != nil && agentTool.ToolResultTreatment.Valid() {
		treatment = agentTool.ToolResultTreatment
	}

	if result.IsError {
		return treatment
	}

	content, err := json.Marshal(result.Content)
	if err != nil {
		return treatment
	}

	for _, p := range policies {
		actual := attributeValue(content, p.AttributePath)
		if !match(Operator(p.Operator), actual, p.Value) {
			continue
		}
		switch p.Action {
		case ActionMarkTrusted:
			return common.TreatmentTrusted
		case ActionMarkUntrusted:
			return common.TreatmentUntrusted
		case ActionSanitize:
			return common.TreatmentSanitize
		}
		// Unknown action: skip, keep evaluating.
	}

	return treatment
}

// attributeValue resolves a gjson attribute path against the
// JSON-rendered result content.
func attributeValue(content []byte, path string) string {
	res := gjson.GetBytes(content, path)
	if !res.Exists() {
		return ""
	}
	return res.String()
}
