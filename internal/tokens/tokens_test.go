package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustgate/agent-gateway/internal/store"
)

func TestSavings(t *testing.T) {
	price := &store.TokenPrice{
		Provider:              "openai",
		Model:                 "gpt-4o",
		PricePerMillionInput:  2.5,
		PricePerMillionOutput: 10,
	}

	saved := Savings(1_000_000, 500_000, price)
	require.NotNil(t, saved)
	assert.InDelta(t, 5.0, *saved, 1e-9)
}

func TestSavings_NilWhenNoTokensSaved(t *testing.T) {
	price := &store.TokenPrice{PricePerMillionOutput: 10}

	assert.Nil(t, Savings(100, 100, price))
	assert.Nil(t, Savings(100, 150, price))
}

func TestSavings_NilWhenNoPriceOnFile(t *testing.T) {
	// A missing price is "unknown", not zero.
	assert.Nil(t, Savings(1000, 500, nil))
}

func TestAggregator(t *testing.T) {
	var agg Aggregator
	agg.Add(100, 40)
	agg.Add(50, 50)

	stats := agg.Stats()

	assert.Equal(t, 2, stats.ToolResultCount)
	require.NotNil(t, stats.TotalTokensBefore)
	require.NotNil(t, stats.TotalTokensAfter)
	assert.Equal(t, 150, *stats.TotalTokensBefore)
	assert.Equal(t, 90, *stats.TotalTokensAfter)
}

func TestAggregator_EmptyReportsNilTotals(t *testing.T) {
	// Zero tool results is distinct from zero savings.
	var agg Aggregator

	stats := agg.Stats()

	assert.Equal(t, 0, stats.ToolResultCount)
	assert.Nil(t, stats.TotalTokensBefore)
	assert.Nil(t, stats.TotalTokensAfter)
}

func TestCounter_EmptyText(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, 0, c.Count("", "gpt-4o"))
}
