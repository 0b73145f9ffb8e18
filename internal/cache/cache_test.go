package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopReportCacheAlwaysMisses(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, gen, "k", map[string]int{"a": 1}, time.Minute))

	var dest map[string]int
	hit, err := c.Get(ctx, gen, "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, dest)
	assert.NoError(t, c.Invalidate(ctx))
}

func TestEntryKeyIncludesGeneration(t *testing.T) {
	assert.Equal(t, "reports:3:summary:2026-07-01", entryKey("3", "summary:2026-07-01"))
}

func TestRedisReportCacheInvalidate(t *testing.T) {
	addr := os.Getenv("SCOOPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set SCOOPOS_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	c := NewRedisReportCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(ctx))

	type payload struct {
		Total string `json:"total"`
	}
	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, gen, "it-summary", payload{Total: "12.50"}, time.Minute))

	var got payload
	hit, err := c.Get(ctx, gen, "it-summary", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "12.50", got.Total)

	require.NoError(t, c.Invalidate(ctx))
	next, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, gen, next)
	hit, err = c.Get(ctx, next, "it-summary", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	// a report computed before the invalidation lands under the old
	// generation and stays invisible
	require.NoError(t, c.Set(ctx, gen, "it-summary", payload{Total: "1.00"}, time.Minute))
	hit, err = c.Get(ctx, next, "it-summary", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
