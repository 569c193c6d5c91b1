// Pipeline orchestration: the transformation every request passes through.
//
// DESIGN: Stages run strictly in order because each stage's output is the
// next stage's input: trust classification must precede compression, and
// persistence must reflect the agent state at decision time:
//
//	adapter.ToCommon → policy classification → compression → adapter.ApplyToolResults
//
// Every malformed-input path degrades instead of failing: clients never
// see internal normalization errors, only the provider's own response or
// a (possibly degraded-fidelity) normalized result.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/trustgate/agent-gateway/internal/adapters"
	"github.com/trustgate/agent-gateway/internal/common"
	"github.com/trustgate/agent-gateway/internal/config"
	"github.com/trustgate/agent-gateway/internal/discovery"
	"github.com/trustgate/agent-gateway/internal/policy"
	"github.com/trustgate/agent-gateway/internal/store"
	"github.com/trustgate/agent-gateway/internal/tokens"
	"github.com/trustgate/agent-gateway/internal/toon"
)

// tokenCounter abstracts the tokenizer so tests can substitute a
// deterministic implementation.
type tokenCounter interface {
	Count(text, model string) int
}

// Pipeline wires the per-request transformation stages together.
type Pipeline struct {
	cfg       *config.Config
	store     *store.Store
	policies  *policy.Engine
	discovery *discovery.Registry
	counter   tokenCounter
}

// NewPipeline creates the request pipeline.
func NewPipeline(cfg *config.Config, st *store.Store) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		policies:  policy.NewEngine(st),
		discovery: discovery.New(st, cfg.Pipeline.Discovery.BuiltinTools),
		counter:   tokens.NewCounter(),
	}
}

// ProcessRequest runs the request-side stages and returns the body to
// forward upstream. On any internal failure the original body is
// returned: pipeline liveness beats strict validation.
func (p *Pipeline) ProcessRequest(ctx context.Context, pctx *PipelineContext) []byte {
	messages, err := pctx.Adapter.ToCommon(pctx.OriginalRequest)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(pctx.Provider)).
			Msg("pipeline: normalization failed, forwarding original body")
		return pctx.OriginalRequest
	}

	if p.cfg.Pipeline.Discovery.Enabled {
		p.discoverTools(ctx, pctx)
	}

	updates := p.processToolResults(ctx, pctx, messages)
	if len(updates) == 0 {
		return pctx.OriginalRequest
	}

	processed, err := pctx.Adapter.ApplyToolResults(pctx.OriginalRequest, updates)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: failed to apply tool results, forwarding original body")
		return pctx.OriginalRequest
	}

	pctx.ProcessedRequest = processed
	return processed
}

// processToolResults classifies every tool result and compresses the
// trusted ones. Returns the tool-call id → new content update map for
// the adapter to merge back.
func (p *Pipeline) processToolResults(ctx context.Context, pctx *PipelineContext, messages []common.Message) map[string]string {
	var agg tokens.Aggregator
	updates := make(map[string]string)

	for _, msg := range messages {
		if msg.Role != common.RoleTool {
			continue
		}
		for _, result := range msg.ToolCalls {
			record := p.processOneResult(ctx, pctx, result, &agg, updates)
			pctx.Results = append(pctx.Results, record)
		}
	}

	pctx.Stats = agg.Stats()
	p.computeSavings(ctx, pctx)
	return updates
}

// processOneResult runs trust classification and (for trusted results)
// compression for a single tool result.
func (p *Pipeline) processOneResult(ctx context.Context, pctx *PipelineContext, result common.ToolResult, agg *tokens.Aggregator, updates map[string]string) ToolResultRecord {
	record := ToolResultRecord{
		ToolCallID: result.ID,
		ToolName:   result.Name,
		Treatment:  common.TreatmentUntrusted,
	}

	// Error results are rendered as error strings; their content is not
	// used for trust evaluation or compression.
	if result.IsError {
		return record
	}

	treatment, err := p.policies.Classify(ctx, pctx.AgentID(), result)
	if err != nil {
		log.Warn().Err(err).Str("tool", result.Name).Msg("pipeline: classification failed, treating as untrusted")
		treatment = common.TreatmentUntrusted
	}
	record.Treatment = treatment

	if !p.cfg.Pipeline.Compression.Enabled {
		return record
	}

	// Untrusted and dual-LLM results skip aggressive transformation:
	// they feed audit and sanitization, not the compressed context.
	if treatment != common.TreatmentTrusted {
		return record
	}

	raw := renderContent(result.Content)
	if len(raw) < p.cfg.Pipeline.Compression.MinBytes {
		return record
	}

	compressed, ok := toon.Compress(raw)
	if !ok {
		// Not structured data: leaves content unchanged and does not
		// count toward savings.
		return record
	}

	before := p.counter.Count(raw, pctx.Model)
	after := p.counter.Count(compressed, pctx.Model)
	record.TokensBefore = before

	// An encoding that does not shrink the token count is discarded; the
	// stats then reflect the content actually forwarded.
	if after >= before {
		record.TokensAfter = before
		agg.Add(before, before)
		return record
	}

	record.TokensAfter = after
	agg.Add(before, after)
	record.Compressed = true
	updates[result.ID] = compressed
	return record
}

// computeSavings prices the aggregate token delta. A missing price row
// reports nil savings: unknown, not zero.
func (p *Pipeline) computeSavings(ctx context.Context, pctx *PipelineContext) {
	stats := pctx.Stats
	if stats.TotalTokensBefore == nil || stats.TotalTokensAfter == nil {
		return
	}

	price, err := p.store.TokenPrice(ctx, string(pctx.Provider), pctx.Model)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: token price lookup failed")
		return
	}
	pctx.SavedUSD = tokens.Savings(*stats.TotalTokensBefore, *stats.TotalTokensAfter, price)
}

// discoverTools persists tools newly observed in the request history.
func (p *Pipeline) discoverTools(ctx context.Context, pctx *PipelineContext) {
	calls := pctx.Adapter.ExtractToolCalls(pctx.OriginalRequest)
	if len(calls) == 0 {
		return
	}
	if _, err := p.discovery.Persist(ctx, pctx.AgentID(), calls); err != nil {
		log.Warn().Err(err).Msg("pipeline: tool discovery failed")
	}
}

// CheckInvocations evaluates tool-invocation policies against the calls
// the model proposed in its response. Decisions are surfaced to the
// caller; blocked calls are logged and never silently dropped. When the
// request carried untrusted tool results, pairings whose configuration
// does not allow usage alongside untrusted data are blocked.
func (p *Pipeline) CheckInvocations(ctx context.Context, pctx *PipelineContext, responseBody []byte) []InvocationOutcome {
	calls := pctx.Adapter.ExtractToolCalls(responseBody)
	if len(calls) == 0 {
		return nil
	}

	untrustedData := false
	for _, r := range pctx.Results {
		if r.Treatment == common.TreatmentUntrusted {
			untrustedData = true
			break
		}
	}

	outcomes := make([]InvocationOutcome, 0, len(calls))
	for _, call := range calls {
		decision, err := p.policies.CheckInvocation(ctx, pctx.AgentID(), call, untrustedData)
		if err != nil {
			log.Warn().Err(err).Str("tool", call.Name).Msg("pipeline: invocation check failed, allowing")
			decision = policy.Decision{Action: policy.ActionAllow}
		}
		outcomes = append(outcomes, InvocationOutcome{Call: call, Decision: decision})
	}
	return outcomes
}

// RecordInteraction persists the exchange. Partial records (e.g. a
// cancelled upstream call) are still saved with what was captured.
func (p *Pipeline) RecordInteraction(ctx context.Context, pctx *PipelineContext, responseBody []byte) error {
	kind, err := interactionKind(pctx.Provider)
	if err != nil {
		return err
	}

	in := &store.Interaction{
		Kind:     kind,
		AgentID:  pctx.AgentID(),
		Model:    pctx.Model,
		Request:  json.RawMessage(pctx.OriginalRequest),
		Response: json.RawMessage(responseBody),
	}
	if pctx.ProcessedRequest != nil {
		in.ProcessedRequest = json.RawMessage(pctx.ProcessedRequest)
	}
	return p.store.SaveInteraction(ctx, in)
}

// interactionKind maps a provider onto its interaction discriminant.
func interactionKind(provider adapters.Provider) (store.InteractionKind, error) {
	switch provider {
	case adapters.ProviderOpenAI:
		return store.KindOpenAIChatCompletions, nil
	case adapters.ProviderAnthropic:
		return store.KindAnthropicMessages, nil
	case adapters.ProviderGemini:
		return store.KindGeminiGenerateContent, nil
	}
	return "", fmt.Errorf("no interaction kind for provider %q", provider)
}

// renderContent flattens tool-result content to the string fed to the
// compressor and the tokenizer.
func renderContent(content any) string {
	if content == nil {
		return ""
	}
	if s, ok := content.(string); ok {
		return s
	}
	b, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(b)
}
