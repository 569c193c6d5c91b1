// Package tokens provides token counting, price lookup and per-request
// savings accounting for the compression pipeline.
//
// DESIGN: Counting delegates to a provider tokenizer. OpenAI models
// resolve their own tiktoken encoding; Anthropic and Gemini fall back to
// cl100k_base: the counts feed savings estimates, never billing, so an
// approximation is acceptable there.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/trustgate/agent-gateway/internal/store"
)

// fallbackEncoding is used when a model has no tiktoken encoding of its
// own (non-OpenAI models, unknown models).
const fallbackEncoding = "cl100k_base"

// Counter counts tokens with per-model tokenizers. Encodings are cached:
// tiktoken initialization is expensive and encoders are safe for
// concurrent use.
type Counter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the token count of text under the model's tokenizer.
func (c *Counter) Count(text, model string) int {
	if text == "" {
		return 0
	}
	enc := c.encoding(model)
	if enc == nil {
		return 0
	}
	return len(enc.Encode(text, nil, nil))
}

func (c *Counter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			log.Error().Err(err).Str("model", model).Msg("tokens: no tokenizer available")
			return nil
		}
	}
	c.encodings[model] = enc
	return enc
}

// Savings returns the estimated money saved by shrinking a payload from
// tokensBefore to tokensAfter, priced at the model's per-token output
// price. Returns nil when no tokens were saved or no price is on file :
// absence of a price is a legitimate "unknown", not an error.
func Savings(tokensBefore, tokensAfter int, price *store.TokenPrice) *float64 {
	if tokensAfter >= tokensBefore {
		return nil
	}
	if price == nil {
		return nil
	}
	saved := float64(tokensBefore-tokensAfter) * price.PricePerMillionOutput / 1_000_000
	return &saved
}

// Aggregator accumulates compression accounting across the tool results
// of one request.
type Aggregator struct {
	toolResultCount   int
	totalTokensBefore int
	totalTokensAfter  int
}

// Add records one tool result's before/after counts.
func (a *Aggregator) Add(tokensBefore, tokensAfter int) {
	a.toolResultCount++
	a.totalTokensBefore += tokensBefore
	a.totalTokensAfter += tokensAfter
}

// Stats is the per-request accounting summary. Totals are nil when zero
// tool results were present, distinguishing "no tool results" from
// "zero savings".
type Stats struct {
	ToolResultCount   int  `json:"tool_result_count"`
	TotalTokensBefore *int `json:"total_tokens_before"`
	TotalTokensAfter  *int `json:"total_tokens_after"`
}

// Stats returns the aggregated summary.
func (a *Aggregator) Stats() Stats {
	if a.toolResultCount == 0 {
		return Stats{}
	}
	before, after := a.totalTokensBefore, a.totalTokensAfter
	return Stats{
		ToolResultCount:   a.toolResultCount,
		TotalTokensBefore: &before,
		TotalTokensAfter:  &after,
	}
}
