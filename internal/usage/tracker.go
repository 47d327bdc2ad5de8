// Package usage accounts for model token consumption and cost. Every
// LLM call in the pipeline reports its token counts here, broken down
// by model and pipeline stage, and the tracker also keeps prompt-cache
// metrics for providers that return cached-token counts.
package usage

import (
	"sync"

	"go.uber.org/zap"

	"tonebridge/internal/logging"
)

// Cost per one million tokens for the analysis-class models the
// pipeline runs on.
const (
	promptCostPerMillion     = 0.15
	completionCostPerMillion = 0.60
)

// Monthly request volume assumptions for cost projection.
const (
	MonthlyRequestsMVP    = 1500
	MonthlyRequestsGrowth = 6000
	MonthlyRequestsMature = 20000
)

// CostUSD computes the dollar cost of a single call.
func CostUSD(promptTokens, completionTokens int) float64 {
	return (float64(promptTokens)*promptCostPerMillion +
		float64(completionTokens)*completionCostPerMillion) / 1_000_000
}

// TokenCounts holds prompt/completion sums for one breakdown key.
type TokenCounts struct {
	Prompt     int64 `json:"prompt"`
	Completion int64 `json:"completion"`
	Total      int64 `json:"total"`
}

func (tc *TokenCounts) add(prompt, completion int) {
	tc.Prompt += int64(prompt)
	tc.Completion += int64(completion)
	tc.Total += int64(prompt + completion)
}

// CacheMetrics summarizes prompt-cache behavior across all recorded
// calls. Rates are percentages.
type CacheMetrics struct {
	TotalRequests    int64   `json:"total_requests"`
	CacheHitRequests int64   `json:"cache_hit_requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CachedTokens     int64   `json:"cached_tokens"`
	RequestHitRate   float64 `json:"request_hit_rate"`
	TokenCacheRate   float64 `json:"token_cache_rate"`
}

// Snapshot is a copy of the tracker's aggregates.
type Snapshot struct {
	Total   TokenCounts            `json:"total"`
	ByModel map[string]TokenCounts `json:"by_model"`
	ByStage map[string]TokenCounts `json:"by_stage"`
	Cache   CacheMetrics           `json:"cache"`
	CostUSD float64                `json:"cost_usd"`
}

// Tracker aggregates token usage for the process lifetime.
type Tracker struct {
	mu      sync.Mutex
	total   TokenCounts
	byModel map[string]TokenCounts
	byStage map[string]TokenCounts

	totalRequests    int64
	cacheHitRequests int64
	cachedTokens     int64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byModel: make(map[string]TokenCounts),
		byStage: make(map[string]TokenCounts),
	}
}

// Record registers one finished model call.
func (t *Tracker) Record(model, stage string, promptTokens, completionTokens, cachedTokens int) {
	t.mu.Lock()
	t.total.add(promptTokens, completionTokens)

	m := t.byModel[model]
	m.add(promptTokens, completionTokens)
	t.byModel[model] = m

	s := t.byStage[stage]
	s.add(promptTokens, completionTokens)
	t.byStage[stage] = s

	t.totalRequests++
	if cachedTokens > 0 {
		t.cacheHitRequests++
		t.cachedTokens += int64(cachedTokens)
	}
	requestNo := t.totalRequests
	t.mu.Unlock()

	ratio := 0.0
	if promptTokens > 0 {
		ratio = float64(cachedTokens) / float64(promptTokens) * 100
	}
	logging.For(logging.CategoryUsage).Debug("model call recorded",
		zap.Int64("request", requestNo),
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
		zap.Int("cached_tokens", cachedTokens),
		zap.Float64("cache_ratio_pct", ratio))
}

// Snapshot returns a copy of the current aggregates.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		Total:   t.total,
		ByModel: make(map[string]TokenCounts, len(t.byModel)),
		ByStage: make(map[string]TokenCounts, len(t.byStage)),
		Cache: CacheMetrics{
			TotalRequests:    t.totalRequests,
			CacheHitRequests: t.cacheHitRequests,
			PromptTokens:     t.total.Prompt,
			CachedTokens:     t.cachedTokens,
		},
		CostUSD: CostUSD(int(t.total.Prompt), int(t.total.Completion)),
	}
	for k, v := range t.byModel {
		snap.ByModel[k] = v
	}
	for k, v := range t.byStage {
		snap.ByStage[k] = v
	}
	if t.totalRequests > 0 {
		snap.Cache.RequestHitRate = float64(t.cacheHitRequests) / float64(t.totalRequests) * 100
	}
	if t.total.Prompt > 0 {
		snap.Cache.TokenCacheRate = float64(t.cachedTokens) / float64(t.total.Prompt) * 100
	}
	return snap
}
