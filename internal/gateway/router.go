// HTTP surface: versioned provider routes and the proxy handler.
//
// DESIGN: Requests are served under /v1/{provider}/..., where everything
// after the provider segment is forwarded verbatim to the configured
// upstream. The gateway never masks upstream failures: provider error
// responses pass through unchanged with the active span marked.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/trustgate/agent-gateway/internal/adapters"
	"github.com/trustgate/agent-gateway/internal/config"
	"github.com/trustgate/agent-gateway/internal/monitoring"
	"github.com/trustgate/agent-gateway/internal/store"
)

// Header names.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderAgentID      = "X-Agent-ID"
	HeaderBlockedTools = "X-Policy-Blocked-Tools"
)

// routePrefix is the versioned path prefix all provider routes live under.
const routePrefix = "/v1/"

// geminiModelRe pulls the model out of Gemini URL paths
// (.../models/{model}:generateContent).
var geminiModelRe = regexp.MustCompile(`models/([^/:]+):`)

// Gateway is the HTTP front of the pipeline.
type Gateway struct {
	cfg      *config.Config
	registry *adapters.Registry
	pipeline *Pipeline
	store    *store.Store
	client   *http.Client
}

// New creates a gateway over the given config and store.
func New(cfg *config.Config, st *store.Store) *Gateway {
	return &Gateway{
		cfg:      cfg,
		registry: adapters.NewRegistry(),
		pipeline: NewPipeline(cfg, st),
		store:    st,
		client:   &http.Client{}, // per-request timeouts come from the inbound context
	}
}

// Handler returns the full middleware-wrapped handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(routePrefix, g.handleProxy)
	mux.HandleFunc("/healthz", g.handleHealth)

	var h http.Handler = mux
	h = g.loggingMiddleware(h)
	h = g.panicRecovery(h)
	return h
}

// Server builds the http.Server from config.
func (g *Gateway) Server() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", g.cfg.Server.Port),
		Handler:      g.Handler(),
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
	}
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleProxy runs one LLM call through the pipeline and the upstream.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	providerName, rest := splitProviderPath(r.URL.Path)
	adapter := g.registry.Get(providerName)
	if adapter == nil {
		g.writeError(w, fmt.Sprintf("unknown provider %q", providerName), http.StatusNotFound)
		return
	}
	providerCfg, ok := g.cfg.Providers[providerName]
	if !ok {
		g.writeError(w, fmt.Sprintf("provider %q not configured", providerName), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.writeError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		// A mid-read client abort is a bad request, not an oversize body.
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	pctx := NewPipelineContext(adapter.Provider(), adapter, body, r.URL.Path)
	pctx.Model = extractModel(adapter, body, rest)
	pctx.Stream = isStreaming(body, rest)

	if agentID := r.Header.Get(HeaderAgentID); agentID != "" {
		agent, err := g.store.Agent(r.Context(), agentID)
		if err != nil {
			log.Warn().Err(err).Str("agent_id", agentID).Msg("gateway: agent lookup failed")
		}
		pctx.Agent = agent
	}

	// One span per LLM call, closed on every exit path.
	call := monitoring.LLMCall{
		RouteCategory: "llm_proxy",
		Provider:      providerName,
		Model:         pctx.Model,
		Stream:        pctx.Stream,
	}
	if pctx.Agent != nil {
		call.AgentID = pctx.Agent.ID
		call.AgentName = pctx.Agent.Name
		call.AgentLabels = pctx.Agent.Labels
	}
	ctx, span := monitoring.StartLLMSpan(r.Context(), call)
	var spanErr error
	defer func() { monitoring.EndLLMSpan(span, spanErr) }()

	forwardBody := g.pipeline.ProcessRequest(ctx, pctx)

	resp, err := g.forward(r.WithContext(ctx), providerCfg.Upstream, rest, forwardBody)
	if err != nil {
		// Cancellation and network failures: span marked, registry writes
		// that already committed stay (idempotent by name).
		spanErr = err
		g.writeError(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if pctx.Stream {
		g.relayStream(w, resp)
		g.record(ctx, pctx, nil)
		return
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		spanErr = err
		g.writeError(w, "failed to read upstream response", http.StatusBadGateway)
		return
	}

	pctx.Usage = pctx.Adapter.ExtractUsage(respBody)
	monitoring.RecordLLMUsage(span, pctx.Usage.InputTokens, pctx.Usage.OutputTokens, pctx.Usage.TotalTokens)

	if resp.StatusCode >= 400 {
		// Provider errors surface unchanged; the span is marked but the
		// response is not suppressed.
		spanErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
	} else {
		outcomes := g.pipeline.CheckInvocations(ctx, pctx, respBody)
		if blocked := blockedToolNames(outcomes); len(blocked) > 0 {
			w.Header().Set(HeaderBlockedTools, strings.Join(blocked, ","))
		}
	}

	g.record(ctx, pctx, respBody)
	g.logExchange(pctx, resp.StatusCode)

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}

// forward sends the (possibly processed) body to the provider upstream,
// bound to the inbound request's context so client aborts cancel the
// upstream call.
func (g *Gateway) forward(r *http.Request, upstream, rest string, body []byte) (*http.Response, error) {
	url := strings.TrimRight(upstream, "/") + "/" + rest
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header)
	req.Header.Del("Accept-Encoding") // let the transport negotiate
	req.ContentLength = int64(len(body))

	return g.client.Do(req)
}

// relayStream copies a streaming upstream response through, flushing per
// chunk. Streamed exchanges skip response-side processing.
func (g *Gateway) relayStream(w http.ResponseWriter, resp *http.Response) {
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// record persists the interaction; persistence failures are logged, not
// surfaced to the client.
func (g *Gateway) record(ctx context.Context, pctx *PipelineContext, respBody []byte) {
	if err := g.pipeline.RecordInteraction(ctx, pctx, respBody); err != nil {
		log.Error().Err(err).Msg("gateway: failed to record interaction")
	}
}

func (g *Gateway) logExchange(pctx *PipelineContext, status int) {
	ev := log.Info().
		Str("provider", string(pctx.Provider)).
		Str("model", pctx.Model).
		Int("status", status).
		Int("tool_results", pctx.Stats.ToolResultCount)
	if pctx.Usage.TotalTokens > 0 {
		ev = ev.Int("input_tokens", pctx.Usage.InputTokens).
			Int("output_tokens", pctx.Usage.OutputTokens).
			Int("total_tokens", pctx.Usage.TotalTokens)
	}
	if pctx.Stats.TotalTokensBefore != nil {
		ev = ev.Int("tokens_before", *pctx.Stats.TotalTokensBefore).
			Int("tokens_after", *pctx.Stats.TotalTokensAfter)
	}
	if pctx.SavedUSD != nil {
		ev = ev.Float64("saved_usd", *pctx.SavedUSD)
	}
	ev.Msg("llm exchange")
}

// =============================================================================
// HELPERS
// =============================================================================

// splitProviderPath splits /v1/{provider}/{rest...} into its parts.
func splitProviderPath(path string) (provider, rest string) {
	trimmed := strings.TrimPrefix(path, routePrefix)
	if idx := strings.Index(trimmed, "/"); idx != -1 {
		return trimmed[:idx], trimmed[idx+1:]
	}
	return trimmed, ""
}

// extractModel gets the model from the body, falling back to the URL
// path for Gemini-style routes.
func extractModel(adapter adapters.Adapter, body []byte, rest string) string {
	if model := adapter.ExtractModel(body); model != "" {
		return model
	}
	if m := geminiModelRe.FindStringSubmatch(rest); m != nil {
		return m[1]
	}
	return ""
}

// isStreaming detects streaming requests: a stream flag in the body or a
// Gemini streaming route.
func isStreaming(body []byte, rest string) bool {
	if gjson.GetBytes(body, "stream").Bool() {
		return true
	}
	return strings.Contains(rest, ":streamGenerateContent")
}

// blockedToolNames collects the names of calls a policy blocked.
func blockedToolNames(outcomes []InvocationOutcome) []string {
	var blocked []string
	for _, o := range outcomes {
		if !o.Decision.Allowed() {
			blocked = append(blocked, o.Call.Name)
		}
	}
	return blocked
}

// copyHeaders copies all values, skipping hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		switch strings.ToLower(k) {
		case "connection", "keep-alive", "transfer-encoding", "upgrade", "host", "content-length":
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// writeError writes a JSON error response.
func (g *Gateway) writeError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
