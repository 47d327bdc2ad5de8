package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tonebridge/internal/logging"
)

// GeminiClient implements Client for the Gemini generateContent API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns sensible defaults for the given model.
func DefaultGeminiConfig(apiKey, model string) GeminiConfig {
	return GeminiConfig{
		APIKey:  apiKey,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Model:   model,
		Timeout: defaultTimeout,
	}
}

// NewGeminiClient creates a Gemini client with custom config.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Model returns the configured model identifier.
func (c *GeminiClient) Model() string { return c.model }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
	Error         *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *GeminiClient) buildRequest(req Request) geminiRequest {
	body := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: req.User}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.JSONMode {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}
	return body
}

// rateLimit enforces the minimum interval between requests.
func (c *GeminiClient) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < minRequestInterval {
		time.Sleep(minRequestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}

// Complete performs a blocking generateContent call with retries.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	ctx, cancel := ensureDeadline(ctx, c.httpClient.Timeout)
	defer cancel()

	log := logging.For(logging.CategoryLLM)
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	jsonData, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		c.rateLimit()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			log.Warn("gemini request retrying",
				zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 {
			return nil, fmt.Errorf("no candidates in response")
		}

		var content strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
		result := &Result{Content: content.String()}
		if parsed.UsageMetadata != nil {
			result.PromptTokens = parsed.UsageMetadata.PromptTokenCount
			result.CompletionTokens = parsed.UsageMetadata.CandidatesTokenCount
			result.CachedTokens = parsed.UsageMetadata.CachedContentTokenCount
		}
		return result, nil
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CompleteStream performs a streaming generateContent call. Deltas are
// sent as they arrive; one StreamEnd follows after the delta channel
// closes.
func (c *GeminiClient) CompleteStream(ctx context.Context, req Request) (<-chan string, <-chan StreamEnd) {
	deltas := make(chan string, 100)
	done := make(chan StreamEnd, 1)

	go func() {
		defer close(done)
		end := c.streamOnce(ctx, req, deltas)
		close(deltas)
		done <- end
	}()

	return deltas, done
}

func (c *GeminiClient) streamOnce(ctx context.Context, req Request, deltas chan<- string) StreamEnd {
	if c.apiKey == "" {
		return StreamEnd{Err: fmt.Errorf("gemini API key not configured")}
	}
	ctx, cancel := ensureDeadline(ctx, c.httpClient.Timeout)
	defer cancel()

	log := logging.For(logging.CategoryLLM)
	start := time.Now()
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)
	jsonData, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return StreamEnd{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff(attempt)):
			case <-ctx.Done():
				return StreamEnd{Err: ctx.Err()}
			}
		}
		c.rateLimit()

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return StreamEnd{Err: fmt.Errorf("failed to create request: %w", err)}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return StreamEnd{Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		end := c.scanStream(ctx, resp.Body, deltas)
		resp.Body.Close()
		if end.Err == nil {
			log.Debug("gemini stream completed",
				zap.String("model", c.model), zap.Duration("elapsed", time.Since(start)))
		}
		return end
	}
	return StreamEnd{Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

func (c *GeminiClient) scanStream(ctx context.Context, body io.Reader, deltas chan<- string) StreamEnd {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var end StreamEnd
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk geminiResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			end.Err = fmt.Errorf("API error: %s", chunk.Error.Message)
			return end
		}
		if chunk.UsageMetadata != nil {
			end.PromptTokens = chunk.UsageMetadata.PromptTokenCount
			end.CompletionTokens = chunk.UsageMetadata.CandidatesTokenCount
			end.CachedTokens = chunk.UsageMetadata.CachedContentTokenCount
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		for _, part := range chunk.Candidates[0].Content.Parts {
			if part.Text == "" {
				continue
			}
			select {
			case deltas <- part.Text:
			case <-ctx.Done():
				end.Err = ctx.Err()
				return end
			}
		}
	}
	if err := scanner.Err(); err != nil {
		end.Err = fmt.Errorf("stream error: %w", err)
	}
	return end
}
