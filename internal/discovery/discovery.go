// Package discovery persists tools newly observed in request traffic.
//
// DESIGN: Agents reference tools the platform has never seen (client-side
// tools, ad-hoc functions). Auto-discovery records them so that trust
// policies can be attached, without ever re-registering tools already
// reachable through the agent's MCP-connected servers or the built-in
// set.
//
// FLOW:
//  1. Pipeline extracts tool calls from the inbound request
//  2. Persist filters connected/built-in names, dedupes first-wins
//  3. One bulk create-if-not-exists for tools, one for agent-tool links
//
// CONCURRENCY: concurrent requests observing the same new tool race to
// the same INSERT; the unique-name constraint plus ON CONFLICT DO NOTHING
// makes the outcome a single row regardless of interleaving. Committed
// writes are not rolled back on request abort: at-least-once is fine
// because the write is idempotent by name.
package discovery

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/trustgate/agent-gateway/internal/common"
	"github.com/trustgate/agent-gateway/internal/store"
)

// Registry persists newly observed tools for an agent.
type Registry struct {
	store   *store.Store
	builtin map[string]bool
}

// New creates a discovery registry. builtin names the platform-provided
// tools that are never auto-registered.
func New(st *store.Store, builtin []string) *Registry {
	b := make(map[string]bool, len(builtin))
	for _, name := range builtin {
		b[name] = true
	}
	return &Registry{store: st, builtin: b}
}

// Persist records the observed tool calls for the agent: unknown tool
// names get a tool row and an agent-tool link with the default untrusted
// treatment. Returns the number of names submitted for persistence.
func (r *Registry) Persist(ctx context.Context, agentID string, calls []common.ToolCall) (int, error) {
	if agentID == "" || len(calls) == 0 {
		return 0, nil
	}

	connected, err := r.store.ConnectedToolNames(ctx, agentID)
	if err != nil {
		return 0, fmt.Errorf("discovery: %w", err)
	}

	// Dedupe within the batch, first occurrence wins; skip names already
	// reachable via MCP servers or built-ins.
	seen := make(map[string]bool, len(calls))
	var names []string
	var tools []store.Tool
	for _, call := range calls {
		name := call.Name
		if name == "" || name == common.UnknownToolName {
			continue
		}
		if seen[name] || connected[name] || r.builtin[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		tools = append(tools, store.Tool{Name: name})
	}

	if len(names) == 0 {
		return 0, nil
	}

	if err := r.store.BulkInsertTools(ctx, tools); err != nil {
		return 0, fmt.Errorf("discovery: %w", err)
	}
	if err := r.store.BulkLinkAgentTools(ctx, agentID, names, common.TreatmentUntrusted); err != nil {
		return 0, fmt.Errorf("discovery: %w", err)
	}

	log.Debug().
		Str("agent_id", agentID).
		Int("tools", len(names)).
		Msg("discovery: persisted observed tools")

	return len(names), nil
}
