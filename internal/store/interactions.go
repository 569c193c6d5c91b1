package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InteractionKind discriminates the stored request/response schema.
// The kind is an explicit tag, not a loose field: SaveInteraction rejects
// records whose kind is not one of the defined variants, so a Gemini
// payload can never be stored under an OpenAI discriminant.
type InteractionKind string

const (
	KindOpenAIChatCompletions InteractionKind = "openai:chatCompletions"
	KindAnthropicMessages     InteractionKind = "anthropic:messages"
	KindGeminiGenerateContent InteractionKind = "gemini:generateContent"
)

// Valid reports whether k is a defined interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case KindOpenAIChatCompletions, KindAnthropicMessages, KindGeminiGenerateContent:
		return true
	}
	return false
}

// Interaction is the stored record of one LLM exchange. Request holds the
// raw inbound body, ProcessedRequest the post-normalization/compression
// body when the pipeline modified it, and Response the upstream reply.
type Interaction struct {
	ID               string
	Kind             InteractionKind
	AgentID          string
	Model            string
	Request          json.RawMessage
	ProcessedRequest json.RawMessage
	Response         json.RawMessage
}

// SaveInteraction persists one exchange. The record must carry a valid
// kind and a JSON request body matching it; a nil ProcessedRequest means
// the pipeline passed the request through untouched.
func (s *Store) SaveInteraction(ctx context.Context, in *Interaction) error {
	if !in.Kind.Valid() {
		return fmt.Errorf("invalid interaction kind %q", in.Kind)
	}
	if len(in.Request) == 0 || !json.Valid(in.Request) {
		return fmt.Errorf("interaction request must be valid JSON")
	}
	if len(in.ProcessedRequest) > 0 && !json.Valid(in.ProcessedRequest) {
		return fmt.Errorf("interaction processed request must be valid JSON")
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	var processed, response any
	if len(in.ProcessedRequest) > 0 {
		processed = string(in.ProcessedRequest)
	}
	if len(in.Response) > 0 {
		response = string(in.Response)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, kind, agent_id, model, request, processed_request, response)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, string(in.Kind), in.AgentID, in.Model, string(in.Request), processed, response)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}
	return nil
}
