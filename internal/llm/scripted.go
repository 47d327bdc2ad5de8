package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a test double that replays queued responses in
// order. Streaming responses are split into fixed-size rune chunks.
type ScriptedClient struct {
	mu        sync.Mutex
	model     string
	responses []scriptedResponse
	calls     []Request
	chunkSize int
}

type scriptedResponse struct {
	result *Result
	err    error
}

// NewScriptedClient creates an empty scripted client.
func NewScriptedClient(model string) *ScriptedClient {
	return &ScriptedClient{model: model, chunkSize: 16}
}

// Model returns the scripted model name.
func (c *ScriptedClient) Model() string { return c.model }

// Queue appends a successful response with the given content.
func (c *ScriptedClient) Queue(content string) *ScriptedClient {
	return c.QueueResult(&Result{Content: content, PromptTokens: 10, CompletionTokens: 10})
}

// QueueResult appends a successful response with full token accounting.
func (c *ScriptedClient) QueueResult(res *Result) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{result: res})
	return c
}

// QueueError appends a failing response.
func (c *ScriptedClient) QueueError(err error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{err: err})
	return c
}

// Calls returns the requests seen so far.
func (c *ScriptedClient) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *ScriptedClient) next(req Request) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("scripted client: no response queued for call %d", len(c.calls))
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.result, nil
}

// Complete replays the next queued response.
func (c *ScriptedClient) Complete(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.next(req)
}

// CompleteStream replays the next queued response as a delta stream.
func (c *ScriptedClient) CompleteStream(ctx context.Context, req Request) (<-chan string, <-chan StreamEnd) {
	deltas := make(chan string, 100)
	done := make(chan StreamEnd, 1)

	res, err := c.next(req)
	go func() {
		defer close(done)
		defer close(deltas)
		if err != nil {
			done <- StreamEnd{Err: err}
			return
		}
		runes := []rune(res.Content)
		for i := 0; i < len(runes); i += c.chunkSize {
			end := i + c.chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			select {
			case deltas <- string(runes[i:end]):
			case <-ctx.Done():
				done <- StreamEnd{Err: ctx.Err()}
				return
			}
		}
		done <- StreamEnd{
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			CachedTokens:     res.CachedTokens,
		}
	}()

	return deltas, done
}
