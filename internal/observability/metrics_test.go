package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledCollectorIsSafe(t *testing.T) {
	c, err := NewMetricsCollector(MetricsConfig{})
	require.NoError(t, err)

	ctx := context.Background()
	c.RecordLLMRequest(ctx, "claude-sonnet-4-20250514", "success", time.Second, 100, 50, 0.01)
	c.RecordToolExecution(ctx, "get_content", "success", time.Millisecond)
	c.RecordBatchSubmitted(ctx, "restaurants", 5)
	c.RecordBatchEnded(ctx, "restaurants", 5)
	require.NoError(t, c.Shutdown(ctx))
}

func TestEnabledCollectorRecords(t *testing.T) {
	c, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	defer func() { _ = c.Shutdown(context.Background()) }()

	ctx := context.Background()
	c.RecordLLMRequest(ctx, "claude-sonnet-4-20250514", "success", 2*time.Second, 1000, 200, 0.006)
	c.RecordLLMRequest(ctx, "claude-sonnet-4-20250514", "error", time.Second, 0, 0, 0)
	c.RecordToolExecution(ctx, "weather_lookup", "error", 30*time.Millisecond)
	c.RecordBatchSubmitted(ctx, "pois", 10)
	c.RecordBatchEnded(ctx, "pois", 9)
}
