package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithRequestIDContext(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger := New(LoggerConfig{Level: "verbose"})
	require.NotNil(t, logger)
	assert.Equal(t, zerolog.InfoLevel, logger.zl.GetLevel())
}

func TestNew_ParsesLevel(t *testing.T) {
	logger := New(LoggerConfig{Level: "debug"})
	assert.Equal(t, zerolog.DebugLevel, logger.zl.GetLevel())
}

func TestLLMSpan(t *testing.T) {
	ctx, span := StartLLMSpan(context.Background(), LLMCall{
		RouteCategory: "llm_proxy",
		Provider:      "openai",
		Model:         "gpt-4o",
		AgentID:       "agent-1",
		AgentName:     "bot",
		AgentLabels:   map[string]string{"team": "billing"},
	})

	require.NotNil(t, ctx)
	require.NotNil(t, span)

	// Both outcomes must be safe to record on the returned span.
	RecordLLMUsage(span, 21, 9, 30)
	EndLLMSpan(span, nil)

	_, span = StartLLMSpan(context.Background(), LLMCall{Provider: "gemini"})
	RecordLLMUsage(span, 0, 0, 0)
	EndLLMSpan(span, errors.New("upstream returned 500"))
}
