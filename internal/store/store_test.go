package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/agent-gateway/internal/common"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAgent(t *testing.T, s *Store, id, name string) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO agents (id, name) VALUES (?, ?)`, id, name)
	require.NoError(t, err)
}

// =============================================================================
// AGENT / PRICE READS
// =============================================================================

func TestAgent_WithLabels(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "agent-1", "billing-bot")
	_, err := s.db.Exec(`INSERT INTO agent_labels (agent_id, key, value) VALUES (?, ?, ?)`, "agent-1", "team", "billing")
	require.NoError(t, err)

	a, err := s.Agent(ctx, "agent-1")

	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "billing-bot", a.Name)
	assert.Equal(t, map[string]string{"team": "billing"}, a.Labels)
}

func TestAgent_UnknownReturnsNil(t *testing.T) {
	s := openTestStore(t)

	a, err := s.Agent(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestTokenPrice_MissingIsNilNotError(t *testing.T) {
	s := openTestStore(t)

	p, err := s.TokenPrice(context.Background(), "openai", "gpt-4o")

	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestTokenPrice_Lookup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO token_prices (provider, model, price_per_million_input, price_per_million_output)
		 VALUES (?, ?, ?, ?)`, "openai", "gpt-4o", 2.5, 10.0)
	require.NoError(t, err)

	p, err := s.TokenPrice(ctx, "openai", "gpt-4o")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 2.5, p.PricePerMillionInput)
	assert.Equal(t, 10.0, p.PricePerMillionOutput)
}

func TestTokenPrice_NegativePriceRejectedBySchema(t *testing.T) {
	s := openTestStore(t)

	_, err := s.db.Exec(
		`INSERT INTO token_prices (provider, model, price_per_million_input, price_per_million_output)
		 VALUES (?, ?, ?, ?)`, "openai", "gpt-4o", -1.0, 10.0)

	assert.Error(t, err)
}

// =============================================================================
// TOOL REGISTRY WRITES
// =============================================================================

func TestBulkInsertTools_IdempotentByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tools := []Tool{{Name: "search"}, {Name: "fetch"}}
	require.NoError(t, s.BulkInsertTools(ctx, tools))

	first, err := s.ToolByName(ctx, "search")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Racing inserts of the same name must leave a single row with the
	// original id.
	require.NoError(t, s.BulkInsertTools(ctx, []Tool{{Name: "search", Description: "changed"}}))

	again, err := s.ToolByName(ctx, "search")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Empty(t, again.Description)
}

func TestBulkLinkAgentTools_IdempotentPairing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "agent-1", "bot")
	require.NoError(t, s.BulkInsertTools(ctx, []Tool{{Name: "search"}}))

	require.NoError(t, s.BulkLinkAgentTools(ctx, "agent-1", []string{"search"}, common.TreatmentUntrusted))

	at, err := s.AgentToolByName(ctx, "agent-1", "search")
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, common.TreatmentUntrusted, at.ToolResultTreatment)

	// Re-linking with a different treatment must not alter the existing
	// pairing.
	require.NoError(t, s.BulkLinkAgentTools(ctx, "agent-1", []string{"search"}, common.TreatmentTrusted))

	again, err := s.AgentToolByName(ctx, "agent-1", "search")
	require.NoError(t, err)
	assert.Equal(t, at.ID, again.ID)
	assert.Equal(t, common.TreatmentUntrusted, again.ToolResultTreatment)
}

func TestSetAllowWhenUntrusted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "agent-1", "bot")
	require.NoError(t, s.BulkInsertTools(ctx, []Tool{{Name: "search"}}))
	require.NoError(t, s.BulkLinkAgentTools(ctx, "agent-1", []string{"search"}, common.TreatmentUntrusted))

	at, err := s.AgentToolByName(ctx, "agent-1", "search")
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.False(t, at.AllowWhenUntrusted)

	require.NoError(t, s.SetAllowWhenUntrusted(ctx, "agent-1", "search", true))

	at, err = s.AgentToolByName(ctx, "agent-1", "search")
	require.NoError(t, err)
	assert.True(t, at.AllowWhenUntrusted)

	// Unknown pairings are an error, not a silent no-op.
	assert.Error(t, s.SetAllowWhenUntrusted(ctx, "agent-1", "ghost", true))
}

func TestAgentToolByName_UnknownPairingIsNil(t *testing.T) {
	s := openTestStore(t)

	at, err := s.AgentToolByName(context.Background(), "agent-1", "ghost")

	require.NoError(t, err)
	assert.Nil(t, at)
}

func TestConnectedToolNames(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedAgent(t, s, "agent-1", "bot")
	_, err := s.db.Exec(`INSERT INTO mcp_servers (id, name) VALUES ('srv-1', 'files')`)
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO agent_mcp_servers (agent_id, mcp_server_id) VALUES ('agent-1', 'srv-1')`)
	require.NoError(t, err)
	require.NoError(t, s.BulkInsertTools(ctx, []Tool{
		{Name: "read_file", MCPServerID: "srv-1"},
		{Name: "loose_tool"},
	}))

	names, err := s.ConnectedToolNames(ctx, "agent-1")

	require.NoError(t, err)
	assert.True(t, names["read_file"])
	assert.False(t, names["loose_tool"])
}

// =============================================================================
// POLICY READS
// =============================================================================

func TestInvocationPolicies_OrderedByCreation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO tool_invocation_policies (id, agent_tool_id, argument_name, operator, value, action, created_at)
		 VALUES
		   ('p2', 'at-1', 'path', 'equal', '/b', 'block', '2026-01-02'),
		   ('p1', 'at-1', 'path', 'equal', '/a', 'allow', '2026-01-01')`)
	require.NoError(t, err)

	policies, err := s.InvocationPolicies(ctx, "at-1")

	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, "p1", policies[0].ID)
	assert.Equal(t, "p2", policies[1].ID)
}

func TestTrustedDataPolicies_Load(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(
		`INSERT INTO trusted_data_policies (id, agent_tool_id, attribute_path, operator, value, action, reason)
		 VALUES ('t1', 'at-1', 'status', 'equal', 'ok', 'mark_as_trusted', 'healthy payloads only')`)
	require.NoError(t, err)

	policies, err := s.TrustedDataPolicies(ctx, "at-1")

	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "status", policies[0].AttributePath)
	assert.Equal(t, "healthy payloads only", policies[0].Reason)
}

// =============================================================================
// INTERACTION LOG
// =============================================================================

func TestSaveInteraction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := &Interaction{
		Kind:     KindOpenAIChatCompletions,
		AgentID:  "agent-1",
		Model:    "gpt-4o",
		Request:  json.RawMessage(`{"messages":[]}`),
		Response: json.RawMessage(`{"id":"r1"}`),
	}
	require.NoError(t, s.SaveInteraction(ctx, in))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM interactions WHERE kind = ?`,
		string(KindOpenAIChatCompletions)).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSaveInteraction_RejectsUnknownKind(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveInteraction(context.Background(), &Interaction{
		Kind:    InteractionKind("mistral:chat"),
		Request: json.RawMessage(`{}`),
	})

	assert.Error(t, err)
}

func TestSaveInteraction_RejectsInvalidJSON(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveInteraction(context.Background(), &Interaction{
		Kind:    KindAnthropicMessages,
		Request: json.RawMessage(`{broken`),
	})
	assert.Error(t, err)

	err = s.SaveInteraction(context.Background(), &Interaction{
		Kind:             KindAnthropicMessages,
		Request:          json.RawMessage(`{}`),
		ProcessedRequest: json.RawMessage(`{broken`),
	})
	assert.Error(t, err)
}

func TestInteractionKind_Valid(t *testing.T) {
	assert.True(t, KindOpenAIChatCompletions.Valid())
	assert.True(t, KindAnthropicMessages.Valid())
	assert.True(t, KindGeminiGenerateContent.Valid())
	assert.False(t, InteractionKind("").Valid())
	assert.False(t, InteractionKind("openai").Valid())
}
