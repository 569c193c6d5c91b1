package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/trustgate/agent-gateway/internal/common"
)

// =============================================================================
// TOOL REGISTRY WRITES - idempotent bulk inserts
// =============================================================================

// BulkInsertTools creates tool rows for any names not yet known, in one
// statement per batch. The unique(name) constraint plus ON CONFLICT DO
// NOTHING makes the write idempotent under concurrent requests: no
// duplicate rows, no application-level locking.
func (s *Store) BulkInsertTools(ctx context.Context, tools []Tool) error {
	if len(tools) == 0 {
		return nil
	}

	query := `INSERT INTO tools (id, name, description, parameters_schema, catalog_id, mcp_server_id) VALUES `
	args := make([]any, 0, len(tools)*6)
	for i, t := range tools {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?)"
		id := t.ID
		if id == "" {
			id = uuid.New().String()
		}
		args = append(args, id, t.Name, t.Description, t.ParametersSchema, t.CatalogID, t.MCPServerID)
	}
	query += " ON CONFLICT(name) DO NOTHING"

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to bulk insert tools: %w", err)
	}
	return nil
}

// BulkLinkAgentTools creates agent-tool links for the named tools,
// skipping pairs that already exist. New links get the given default
// treatment. Idempotent via unique(agent_id, tool_id).
func (s *Store) BulkLinkAgentTools(ctx context.Context, agentID string, toolNames []string, treatment common.Treatment) error {
	if len(toolNames) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO agent_tools (id, agent_id, tool_id, tool_result_treatment)
		 SELECT ?, ?, id, ? FROM tools WHERE name = ?
		 ON CONFLICT(agent_id, tool_id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range toolNames {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), agentID, string(treatment), name); err != nil {
			return fmt.Errorf("failed to link agent tool %s: %w", name, err)
		}
	}

	return tx.Commit()
}

// SetAllowWhenUntrusted updates whether the agent may keep using the
// named tool while untrusted tool results are present in the exchange.
func (s *Store) SetAllowWhenUntrusted(ctx context.Context, agentID, toolName string, allow bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_tools SET allow_when_untrusted = ?
		 WHERE agent_id = ? AND tool_id = (SELECT id FROM tools WHERE name = ?)`,
		allow, agentID, toolName)
	if err != nil {
		return fmt.Errorf("failed to update agent tool %s/%s: %w", agentID, toolName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no pairing for agent %s and tool %s", agentID, toolName)
	}
	return nil
}

// =============================================================================
// TOOL / AGENT-TOOL READS
// =============================================================================

// ToolByName loads a tool record by its immutable name. Returns nil when
// unknown.
func (s *Store) ToolByName(ctx context.Context, name string) (*Tool, error) {
	t := &Tool{}
	var desc, schema, catalogID, mcpServerID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, parameters_schema, catalog_id, mcp_server_id
		 FROM tools WHERE name = ?`, name,
	).Scan(&t.ID, &t.Name, &desc, &schema, &catalogID, &mcpServerID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tool %s: %w", name, err)
	}
	t.Description = desc.String
	t.ParametersSchema = schema.String
	t.CatalogID = catalogID.String
	t.MCPServerID = mcpServerID.String
	return t, nil
}

// AgentToolByName loads the agent-tool pairing for an agent and a tool
// name. Returns nil when the pairing does not exist: callers fall back
// to the default (untrusted) treatment.
func (s *Store) AgentToolByName(ctx context.Context, agentID, toolName string) (*AgentTool, error) {
	at := &AgentTool{}
	var treatment string
	err := s.db.QueryRowContext(ctx,
		`SELECT at.id, at.agent_id, at.tool_id, at.tool_result_treatment, at.allow_when_untrusted
		 FROM agent_tools at JOIN tools t ON t.id = at.tool_id
		 WHERE at.agent_id = ? AND t.name = ?`,
		agentID, toolName,
	).Scan(&at.ID, &at.AgentID, &at.ToolID, &treatment, &at.AllowWhenUntrusted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent tool %s/%s: %w", agentID, toolName, err)
	}
	at.ToolResultTreatment = common.Treatment(treatment)
	return at, nil
}

// ConnectedToolNames returns the names of tools already reachable via the
// agent's MCP-connected servers. Auto-discovery must not re-register
// these.
func (s *Store) ConnectedToolNames(ctx context.Context, agentID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tools t
		 JOIN agent_mcp_servers ams ON ams.mcp_server_id = t.mcp_server_id
		 WHERE ams.agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connected tools: %w", err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[name] = true
	}
	return names, rows.Err()
}
