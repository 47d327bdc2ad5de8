package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tonebridge/internal/config"
	"tonebridge/internal/domain"
	"tonebridge/internal/llm"
	"tonebridge/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// routedClient answers by system-prompt keyword so the concurrent
// situation call and the sequential stages can share one client
// without racing over a response queue.
type routedClient struct {
	mu     sync.Mutex
	routes map[string]string
	calls  []llm.Request
}

func newRoutedClient(routes map[string]string) *routedClient {
	return &routedClient{routes: routes}
}

func (c *routedClient) Model() string { return "gemini-2.5-flash-lite" }

func (c *routedClient) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	for key, content := range c.routes {
		if strings.Contains(req.System, key) {
			return &llm.Result{Content: content, PromptTokens: 10, CompletionTokens: 10}, nil
		}
	}
	return nil, fmt.Errorf("unrouted system prompt: %.40s", req.System)
}

func (c *routedClient) CompleteStream(ctx context.Context, req llm.Request) (<-chan string, <-chan llm.StreamEnd) {
	deltas := make(chan string, 1)
	done := make(chan llm.StreamEnd, 1)
	res, err := c.Complete(ctx, req)
	if err != nil {
		done <- llm.StreamEnd{Err: err}
	} else {
		deltas <- res.Content
		done <- llm.StreamEnd{PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens}
	}
	close(deltas)
	close(done)
	return deltas, done
}

// stalledClient blocks every call until its context expires.
type stalledClient struct{}

func (stalledClient) Model() string { return "stalled" }

func (stalledClient) Complete(ctx context.Context, _ llm.Request) (*llm.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledClient) CompleteStream(ctx context.Context, _ llm.Request) (<-chan string, <-chan llm.StreamEnd) {
	deltas := make(chan string)
	done := make(chan llm.StreamEnd, 1)
	go func() {
		<-ctx.Done()
		close(deltas)
		done <- llm.StreamEnd{Err: ctx.Err()}
		close(done)
	}()
	return deltas, done
}

// recordSink collects events for assertions.
type recordSink struct {
	mu     sync.Mutex
	names  []string
	events []any
}

func (s *recordSink) Emit(name string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.events = append(s.events, data)
}

func (s *recordSink) phases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for i, name := range s.names {
		if name == "phase" {
			out = append(out, s.events[i].(string))
		}
	}
	return out
}

func (s *recordSink) last(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.names) - 1; i >= 0; i-- {
		if s.names[i] == name {
			return s.events[i], true
		}
	}
	return nil, false
}

func (s *recordSink) deltaText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for i, name := range s.names {
		if name == "delta" {
			sb.WriteString(s.events[i].(string))
		}
	}
	return sb.String()
}

// requirePhaseOrder asserts the given phases appear in this relative
// order, ignoring any optional phases in between.
func requirePhaseOrder(t *testing.T, got []string, want ...string) {
	t.Helper()
	i := 0
	for _, phase := range got {
		if i < len(want) && phase == want[i] {
			i++
		}
	}
	require.Equal(t, len(want), i, "phase order mismatch: got %v, want subsequence %v", got, want)
}

const (
	situationRoute = "상황 분석 전문가"
	labelRoute     = "구조 분석 전문가"
	gateRoute      = "메타데이터 검증 전문가"
)

func defaultRoutes() map[string]string {
	return map[string]string{
		situationRoute: `{"facts": [{"content": "검토가 늦어지고 있다", "source": "검토가 늦어져서"}], "intent": "일정 안내"}`,
		labelRoute:     "T1|CORE_INTENT\nT2|APOLOGY\nT3|COURTESY\nSUMMARY: 검토 지연 사과와 일정 안내",
	}
}

func testPipeline(routes map[string]string, final llm.Client) *Pipeline {
	analysis := newRoutedClient(routes)
	return New(config.DefaultConfig(), analysis, analysis, final, usage.NewTracker())
}

func happyRequest() Request {
	return Request{
		Persona:  domain.PersonaBoss,
		Contexts: []domain.SituationContext{domain.ContextRequest},
		Tone:     domain.TonePolite,
		Text:     "검토가 늦어져서 죄송합니다. 내일 전달하겠습니다.",
		Topic:    domain.TopicOther,
		Purpose:  domain.PurposeInfoDelivery,
		Tier:     domain.TierPaid,
	}
}

const cleanOutput = "검토가 예상보다 늦어져 죄송합니다. 내일까지는 꼭 마무리하겠습니다."

func TestRunHappyPath(t *testing.T) {
	final := llm.NewScriptedClient("gemini-2.5-flash").Queue(cleanOutput)
	p := testPipeline(defaultRoutes(), final)
	sink := &recordSink{}

	err := p.Run(context.Background(), happyRequest(), sink)
	require.NoError(t, err)

	requirePhaseOrder(t, sink.phases(),
		"normalizing", "extracting", "identity_skipped", "segmenting",
		"labeling", "template_selecting", "context_gating_skipped",
		"redacting", "situation_analyzing", "generating", "validating", "complete")

	done, ok := sink.last("done")
	require.True(t, ok)
	assert.Equal(t, cleanOutput, done)
	assert.Equal(t, cleanOutput, sink.deltaText())

	sa, ok := sink.last("situationAnalysis")
	require.True(t, ok)
	assert.Equal(t, "일정 안내", sa.(situationEvent).Intent)

	sel, ok := sink.last("templateSelected")
	require.True(t, ok)
	assert.Equal(t, "T01_GENERAL", sel.(templateSelectedEvent).TemplateID)
	assert.False(t, sel.(templateSelectedEvent).MetadataOverridden)

	stats, ok := sink.last("stats")
	require.True(t, ok)
	se := stats.(statsEvent)
	assert.Zero(t, se.RetryCount)
	assert.True(t, se.SituationAnalysisFired)
	assert.False(t, se.IdentityBoosterFired)
	assert.Equal(t, "T01_GENERAL", se.ChosenTemplateID)
	assert.Positive(t, se.SegmentCount)

	usageEv, ok := sink.last("usage")
	require.True(t, ok)
	assert.Positive(t, usageEv.(usageEvent).TotalCostUSD)

	_, ok = sink.last("error")
	assert.False(t, ok)

	snap := p.Tracker().Snapshot()
	assert.Positive(t, snap.Total.Prompt)
}

func TestRunValidationRetry(t *testing.T) {
	bad := "다음과 같이 정리해 보았습니다. 검토가 늦어져 죄송합니다."
	final := llm.NewScriptedClient("gemini-2.5-flash").Queue(bad).Queue(cleanOutput)
	p := testPipeline(defaultRoutes(), final)
	sink := &recordSink{}

	err := p.Run(context.Background(), happyRequest(), sink)
	require.NoError(t, err)

	retry, ok := sink.last("retry")
	require.True(t, ok)
	assert.Equal(t, "validation_failed", retry)

	done, _ := sink.last("done")
	assert.Equal(t, cleanOutput, done)

	stats, _ := sink.last("stats")
	assert.Equal(t, 1, stats.(statsEvent).RetryCount)

	calls := final.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].User, "[시스템 검증 오류]")
	assert.InDelta(t, retryTemperature, calls[1].Temperature, 0.001)
}

func TestRunContextGateOverride(t *testing.T) {
	routes := defaultRoutes()
	routes[gateRoute] = `{"should_override": true, "confidence": 0.9,
		"inferred": {"topic": "REFUND_CANCEL", "purpose": "REFUND_REJECTION",
		"primary_context": "COMPLAINT", "template_id": "T11_REFUND_REJECTION"},
		"reasons": ["환불 거절 내용"]}`
	final := llm.NewScriptedClient("gemini-2.5-flash").Queue(cleanOutput)
	p := testPipeline(routes, final)
	sink := &recordSink{}

	req := happyRequest()
	req.Topic = ""
	req.Purpose = ""
	err := p.Run(context.Background(), req, sink)
	require.NoError(t, err)

	requirePhaseOrder(t, sink.phases(), "template_selecting", "context_gating", "redacting")

	sel, ok := sink.last("templateSelected")
	require.True(t, ok)
	assert.Equal(t, "T11_REFUND_REJECTION", sel.(templateSelectedEvent).TemplateID)
	assert.True(t, sel.(templateSelectedEvent).MetadataOverridden)

	stats, _ := sink.last("stats")
	assert.True(t, stats.(statsEvent).MetadataOverridden)
}

func TestRunLengthLimit(t *testing.T) {
	final := llm.NewScriptedClient("gemini-2.5-flash")
	p := testPipeline(defaultRoutes(), final)
	sink := &recordSink{}

	req := happyRequest()
	req.Tier = domain.TierFree
	req.Text = strings.Repeat("가", 301)
	err := p.Run(context.Background(), req, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "최대 300자")

	msg, ok := sink.last("error")
	require.True(t, ok)
	assert.Contains(t, msg.(string), "최대 300자")
	assert.Empty(t, final.Calls())
}

func TestRunGenerationFailure(t *testing.T) {
	final := llm.NewScriptedClient("gemini-2.5-flash").QueueError(fmt.Errorf("upstream 503"))
	p := testPipeline(defaultRoutes(), final)
	sink := &recordSink{}

	err := p.Run(context.Background(), happyRequest(), sink)
	require.Error(t, err)

	msg, ok := sink.last("error")
	require.True(t, ok)
	assert.Equal(t, GenericErrorMessage, msg)
	_, ok = sink.last("done")
	assert.False(t, ok)
}

func TestRunHonorsRequestBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.RequestTimeout = "50ms"
	final := llm.NewScriptedClient("gemini-2.5-flash")
	p := New(cfg, stalledClient{}, stalledClient{}, final, usage.NewTracker())
	sink := &recordSink{}

	start := time.Now()
	err := p.Run(context.Background(), happyRequest(), sink)
	require.Error(t, err)
	// The stalled analysis calls are cut off by the wall-clock budget,
	// not left to run until the per-call timeout.
	assert.Less(t, time.Since(start), 5*time.Second)

	msg, ok := sink.last("error")
	require.True(t, ok)
	assert.Equal(t, GenericErrorMessage, msg)
	_, ok = sink.last("done")
	assert.False(t, ok)
}

func TestTransformHappyPath(t *testing.T) {
	final := llm.NewScriptedClient("gemini-2.5-flash").Queue(cleanOutput)
	p := testPipeline(defaultRoutes(), final)

	res, err := p.Transform(context.Background(), happyRequest())
	require.NoError(t, err)
	assert.Equal(t, cleanOutput, res.TransformedText)
	assert.Zero(t, res.Stats.RetryCount)
	assert.Equal(t, "T01_GENERAL", res.Stats.ChosenTemplateID)
	assert.Positive(t, res.Stats.SegmentCount)
	assert.Positive(t, res.Stats.AnalysisPromptTokens)
}

func TestTransformRetriesOnRetryableWarning(t *testing.T) {
	routes := defaultRoutes()
	routes[labelRoute] = "T1|ACCOUNTABILITY\nT2|REQUEST\nSUMMARY: 실수 처리 요청"

	// First pass skips the internal-check section entirely.
	first := "실수가 있었던 점 죄송합니다. 빠르게 처리하겠습니다."
	second := "내부적으로 확인해 본 결과 누락이 있었습니다. 빠르게 처리하겠습니다."
	final := llm.NewScriptedClient("gemini-2.5-flash").Queue(first).Queue(second)
	p := testPipeline(routes, final)

	req := happyRequest()
	req.Text = "귀사 실수입니다. 처리 부탁드립니다."
	res, err := p.Transform(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.RetryCount)
	assert.Equal(t, second, res.TransformedText)

	calls := final.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].System, "[검증 재시도 지침]")
	assert.Contains(t, calls[1].User, "[시스템 검증 오류]")
	assert.InDelta(t, retryTemperature, calls[1].Temperature, 0.001)
}

func TestTransformLengthLimit(t *testing.T) {
	final := llm.NewScriptedClient("gemini-2.5-flash")
	p := testPipeline(defaultRoutes(), final)

	req := happyRequest()
	req.Tier = domain.TierFree
	req.Text = strings.Repeat("나", 500)
	_, err := p.Transform(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "최대 300자")
}
