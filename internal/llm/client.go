// Package llm provides the model clients used by the pipeline: a fast
// analysis model for labeling and gating calls and a main model for
// final generation. Clients speak the provider HTTP APIs directly and
// expose a small interface so stages stay provider-agnostic.
package llm

import (
	"context"
	"time"
)

// Request is a single system+user completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON object response.
	JSONMode bool
}

// Result is a finished completion with token accounting.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// StreamEnd terminates a streaming call. Err is nil on success; token
// counts are zero when the provider omitted usage metadata.
type StreamEnd struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
	Err              error
}

// Client is the completion interface all pipeline stages consume.
type Client interface {
	// Complete performs a blocking completion.
	Complete(ctx context.Context, req Request) (*Result, error)

	// CompleteStream starts a streaming completion. Content deltas
	// arrive on the first channel until it closes; exactly one
	// StreamEnd follows on the second.
	CompleteStream(ctx context.Context, req Request) (<-chan string, <-chan StreamEnd)

	// Model returns the model identifier used for requests.
	Model() string
}

const (
	defaultTimeout     = 30 * time.Second
	minRequestInterval = 100 * time.Millisecond
	maxRetries         = 3
)

// backoff returns the sleep duration before retry attempt n (1-based).
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// ensureDeadline applies the client timeout when the caller did not
// set one. The returned cancel must always be called.
func ensureDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
