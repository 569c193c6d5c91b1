// Package store provides durable persistence over SQLite.
//
// DESIGN: The store is the single serialization point of the gateway. The
// pipeline only reads agent/tool/policy/pricing records at request time;
// the tool registry writes through idempotent, constraint-backed bulk
// inserts (ON CONFLICT DO NOTHING) so that concurrent requests observing
// the same new tool never produce duplicate rows. No application-level
// locking is used anywhere.
//
// Agents, MCP server wiring, policies and prices are authored externally
// (admin surface is out of scope); this package reads them and owns only
// the rows the registry and the interaction log produce.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/trustgate/agent-gateway/internal/common"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc/sqlite serializes writes internally; a single connection
	// avoids SQLITE_BUSY under concurrent request handling.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_labels (
	agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	key      TEXT NOT NULL,
	value    TEXT NOT NULL,
	PRIMARY KEY (agent_id, key)
);

CREATE TABLE IF NOT EXISTS mcp_servers (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_mcp_servers (
	agent_id      TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	mcp_server_id TEXT NOT NULL REFERENCES mcp_servers(id) ON DELETE CASCADE,
	PRIMARY KEY (agent_id, mcp_server_id)
);

CREATE TABLE IF NOT EXISTS tools (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	description       TEXT,
	parameters_schema TEXT,
	catalog_id        TEXT,
	mcp_server_id     TEXT,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS agent_tools (
	id                     TEXT PRIMARY KEY,
	agent_id               TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	tool_id                TEXT NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
	tool_result_treatment  TEXT NOT NULL DEFAULT 'untrusted',
	allow_when_untrusted   INTEGER NOT NULL DEFAULT 0,
	created_at             TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (agent_id, tool_id)
);

CREATE TABLE IF NOT EXISTS tool_invocation_policies (
	id            TEXT PRIMARY KEY,
	agent_tool_id TEXT NOT NULL REFERENCES agent_tools(id) ON DELETE CASCADE,
	argument_name TEXT NOT NULL,
	operator      TEXT NOT NULL,
	value         TEXT NOT NULL,
	action        TEXT NOT NULL,
	reason        TEXT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trusted_data_policies (
	id             TEXT PRIMARY KEY,
	agent_tool_id  TEXT NOT NULL REFERENCES agent_tools(id) ON DELETE CASCADE,
	attribute_path TEXT NOT NULL,
	operator       TEXT NOT NULL,
	value          TEXT NOT NULL,
	action         TEXT NOT NULL,
	reason         TEXT,
	created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS token_prices (
	provider                 TEXT NOT NULL,
	model                    TEXT NOT NULL,
	price_per_million_input  REAL NOT NULL CHECK (price_per_million_input >= 0),
	price_per_million_output REAL NOT NULL CHECK (price_per_million_output >= 0),
	PRIMARY KEY (provider, model)
);

CREATE TABLE IF NOT EXISTS interactions (
	id                TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	agent_id          TEXT,
	model             TEXT,
	request           TEXT NOT NULL,
	processed_request TEXT,
	response          TEXT,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

func (s *Store) bootstrap() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	return nil
}

// =============================================================================
// RECORD TYPES
// =============================================================================

// Agent is an externally-authored agent profile, read-only to the core.
type Agent struct {
	ID     string
	Name   string
	Labels map[string]string
}

// Tool is a durable tool record. Identity (name) is immutable once
// created; metadata is mutable.
type Tool struct {
	ID               string
	Name             string
	Description      string
	ParametersSchema string
	CatalogID        string
	MCPServerID      string
}

// AgentTool joins an agent to a tool and carries the trust configuration
// for that pairing.
type AgentTool struct {
	ID                  string
	AgentID             string
	ToolID              string
	ToolResultTreatment common.Treatment
	AllowWhenUntrusted  bool
}

// TokenPrice is the per-model price table row, used only for cost
// estimation.
type TokenPrice struct {
	Provider              string
	Model                 string
	PricePerMillionInput  float64
	PricePerMillionOutput float64
}

// =============================================================================
// AGENT / PRICE READS
// =============================================================================

// Agent loads an agent profile with its labels. Returns nil when the
// agent does not exist.
func (s *Store) Agent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{ID: id, Labels: make(map[string]string)}

	err := s.db.QueryRowContext(ctx, `SELECT name FROM agents WHERE id = ?`, id).Scan(&a.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load agent %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM agent_labels WHERE agent_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load agent labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		a.Labels[k] = v
	}
	return a, rows.Err()
}

// TokenPrice looks up the price row for a provider/model pair. A missing
// price is not an error: it returns (nil, nil) and savings are reported
// as unknown downstream.
func (s *Store) TokenPrice(ctx context.Context, provider, model string) (*TokenPrice, error) {
	p := &TokenPrice{Provider: provider, Model: model}
	err := s.db.QueryRowContext(ctx,
		`SELECT price_per_million_input, price_per_million_output
		 FROM token_prices WHERE provider = ? AND model = ?`,
		provider, model,
	).Scan(&p.PricePerMillionInput, &p.PricePerMillionOutput)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token price: %w", err)
	}
	return p, nil
}
