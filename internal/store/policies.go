package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InvocationPolicy is an externally-authored rule evaluated against a
// tool call's arguments before the call is allowed.
type InvocationPolicy struct {
	ID           string
	AgentToolID  string
	ArgumentName string
	Operator     string
	Value        string
	Action       string
	Reason       string
}

// TrustedDataPolicy is an externally-authored rule evaluated against a
// tool result to override the default trust treatment.
type TrustedDataPolicy struct {
	ID            string
	AgentToolID   string
	AttributePath string
	Operator      string
	Value         string
	Action        string
	Reason        string
}

// InvocationPolicies returns the invocation policies for an agent-tool
// pairing, ordered by creation time. Evaluation order is significant:
// first true match per policy class determines the action.
func (s *Store) InvocationPolicies(ctx context.Context, agentToolID string) ([]InvocationPolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_tool_id, argument_name, operator, value, action, reason
		 FROM tool_invocation_policies
		 WHERE agent_tool_id = ?
		 ORDER BY created_at, id`, agentToolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invocation policies: %w", err)
	}
	defer rows.Close()

	var policies []InvocationPolicy
	for rows.Next() {
		var p InvocationPolicy
		var reason sql.NullString
		if err := rows.Scan(&p.ID, &p.AgentToolID, &p.ArgumentName, &p.Operator, &p.Value, &p.Action, &reason); err != nil {
			return nil, err
		}
		p.Reason = reason.String
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// TrustedDataPolicies returns the trusted-data policies for an agent-tool
// pairing, ordered by creation time.
func (s *Store) TrustedDataPolicies(ctx context.Context, agentToolID string) ([]TrustedDataPolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_tool_id, attribute_path, operator, value, action, reason
		 FROM trusted_data_policies
		 WHERE agent_tool_id = ?
		 ORDER BY created_at, id`, agentToolID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trusted data policies: %w", err)
	}
	defer rows.Close()

	var policies []TrustedDataPolicy
	for rows.Next() {
		var p TrustedDataPolicy
		var reason sql.NullString
		if err := rows.Scan(&p.ID, &p.AgentToolID, &p.AttributePath, &p.Operator, &p.Value, &p.Action, &reason); err != nil {
			return nil, err
		}
		p.Reason = reason.String
		policies = append(policies, p)
	}
	return policies, rows.Err()
}
