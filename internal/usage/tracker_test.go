package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostUSD(t *testing.T) {
	// 1M prompt tokens at 0.15 plus 1M completion tokens at 0.60.
	assert.InDelta(t, 0.75, CostUSD(1_000_000, 1_000_000), 1e-9)
	assert.Zero(t, CostUSD(0, 0))
}

func TestTrackerAggregates(t *testing.T) {
	tr := NewTracker()
	tr.Record("gemini-2.5-flash", "labeling", 1000, 200, 0)
	tr.Record("gemini-2.5-flash", "generation", 2000, 800, 500)
	tr.Record("gpt-4o-mini", "labeling", 500, 100, 0)

	snap := tr.Snapshot()
	assert.Equal(t, int64(3500), snap.Total.Prompt)
	assert.Equal(t, int64(1100), snap.Total.Completion)
	assert.Equal(t, int64(4600), snap.Total.Total)

	require.Contains(t, snap.ByModel, "gemini-2.5-flash")
	assert.Equal(t, int64(3000), snap.ByModel["gemini-2.5-flash"].Prompt)
	assert.Equal(t, int64(1500), snap.ByStage["labeling"].Prompt)
	assert.Equal(t, int64(2000), snap.ByStage["generation"].Prompt)
}

func TestTrackerCacheMetrics(t *testing.T) {
	tr := NewTracker()
	tr.Record("m", "s", 1000, 100, 0)
	tr.Record("m", "s", 1000, 100, 400)

	snap := tr.Snapshot()
	assert.Equal(t, int64(2), snap.Cache.TotalRequests)
	assert.Equal(t, int64(1), snap.Cache.CacheHitRequests)
	assert.InDelta(t, 50.0, snap.Cache.RequestHitRate, 1e-9)
	assert.InDelta(t, 20.0, snap.Cache.TokenCacheRate, 1e-9)
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Record("m", "s", 10, 10, 0)
	snap := tr.Snapshot()
	snap.ByModel["m"] = TokenCounts{Prompt: 999}
	assert.Equal(t, int64(10), tr.Snapshot().ByModel["m"].Prompt)
}
