// Package common defines the provider-agnostic message model.
//
// DESIGN: Every provider adapter converts its native wire format into these
// types so that the trust policy engine and the compression pipeline never
// see provider-specific JSON. The model is deliberately narrow: assistant
// tool *calls* are not carried over into common form: only tool *results*
// are evaluated downstream, so canonicalization keeps result identity and
// content and discards call metadata on assistant messages.
//
// Common model objects are ephemeral: they live for the duration of one
// request and are never persisted.
package common

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Message is one conversation turn in common form.
// Tool-role messages carry exactly one entry in ToolCalls holding the
// result; other roles carry none.
type Message struct {
	Role      Role
	ToolCalls []ToolResult
}

// ToolCall is a single tool invocation extracted from a native payload.
// Arguments is never nil: unparseable native arguments degrade to an
// empty map rather than failing the pipeline.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of one tool invocation.
// When IsError is true, Content is not used for trust evaluation or
// compression; Error carries the rendered error string instead.
type ToolResult struct {
	ID      string
	Name    string
	Content any
	IsError bool
	Error   string
}

// Treatment classifies how a tool result may be used downstream.
type Treatment string

const (
	// TreatmentTrusted allows the result into context untouched.
	TreatmentTrusted Treatment = "trusted"

	// TreatmentSanitize requires a secondary model pass before use.
	TreatmentSanitize Treatment = "sanitize_with_dual_llm"

	// TreatmentUntrusted marks the result as potentially adversarial.
	TreatmentUntrusted Treatment = "untrusted"
)

// Valid reports whether t is one of the defined treatments.
func (t Treatment) Valid() bool {
	switch t {
	case TreatmentTrusted, TreatmentSanitize, TreatmentUntrusted:
		return true
	}
	return false
}

// UnknownToolName tags results whose originating call could not be
// resolved from message history. The result is still processed; policy
// lookup and compression proceed with degraded metadata.
const UnknownToolName = "unknown"
